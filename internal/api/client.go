// Package api talks to the trading backend over REST. It owns transport
// concerns only: auth header attachment, envelope unwrapping, per-class
// retry policies. What the results mean is the caller's business.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tradeboard/botclient/internal/domain"
	"github.com/tradeboard/botclient/pkg/credstore"
	"github.com/tradeboard/botclient/pkg/executor"
	"github.com/tradeboard/botclient/pkg/logger"
	"github.com/tradeboard/botclient/pkg/ratelimit"
)

// Client wraps the backend's status/trades/settings/order/session
// endpoints. Credentials come from the injected store on every call;
// nothing is cached here.
type Client struct {
	http    *resty.Client
	creds   credstore.Store
	limiter ratelimit.Limiter

	readPolicy   executor.Policy
	mutatePolicy executor.Policy
	fastPolicy   executor.Policy
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter throttles outbound requests.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithPolicies overrides the per-class retry policies (tests use short
// delays; production keeps the defaults).
func WithPolicies(read, mutate, fast executor.Policy) Option {
	return func(c *Client) {
		c.readPolicy = read
		c.mutatePolicy = mutate
		c.fastPolicy = fast
	}
}

// NewClient builds a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, creds credstore.Store, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(timeout),
		creds:        creds,
		limiter:      ratelimit.Unlimited{},
		readPolicy:   executor.ReadPolicy,
		mutatePolicy: executor.MutatePolicy,
		fastPolicy:   executor.FastPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doOnce performs exactly one attempt. Retrying is the executor's job.
func (c *Client) doOnce(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("X-Request-ID", uuid.NewString())
	if token, ok := c.creds.Get(); ok {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodGet:
		resp, err = req.Get(endpoint)
	case http.MethodPost:
		resp, err = req.Post(endpoint)
	case http.MethodPut:
		resp, err = req.Put(endpoint)
	case http.MethodDelete:
		resp, err = req.Delete(endpoint)
	default:
		return fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		var env envelope
		if uerr := unmarshalLoose(resp.Body(), &env); uerr == nil && env.Error != "" {
			apiErr.Message = env.Error
		}
		return apiErr
	}

	return unwrapEnvelope(resp.Body(), out)
}

// --- status / lists (read class, 3 attempts) ---

func (c *Client) GetStatus(ctx context.Context) (domain.BotStatus, error) {
	return executor.DoResult(ctx, c.readPolicy, func(ctx context.Context) (domain.BotStatus, error) {
		var out domain.BotStatus
		err := c.doOnce(ctx, http.MethodGet, "/bot/status", nil, &out)
		return out, err
	})
}

func (c *Client) GetSettings(ctx context.Context) (domain.Settings, error) {
	return executor.DoResult(ctx, c.readPolicy, func(ctx context.Context) (domain.Settings, error) {
		var out domain.Settings
		err := c.doOnce(ctx, http.MethodGet, "/bot/settings", nil, &out)
		return out, err
	})
}

func (c *Client) GetOpenTrades(ctx context.Context) ([]domain.Trade, error) {
	return executor.DoResult(ctx, c.readPolicy, func(ctx context.Context) ([]domain.Trade, error) {
		var out []domain.Trade
		err := c.doOnce(ctx, http.MethodGet, "/trades/open", nil, &out)
		return out, err
	})
}

func (c *Client) GetClosedTrades(ctx context.Context) ([]domain.Trade, error) {
	return executor.DoResult(ctx, c.readPolicy, func(ctx context.Context) ([]domain.Trade, error) {
		var out []domain.Trade
		err := c.doOnce(ctx, http.MethodGet, "/trades/closed", nil, &out)
		return out, err
	})
}

func (c *Client) GetSignals(ctx context.Context) ([]domain.Signal, error) {
	return executor.DoResult(ctx, c.readPolicy, func(ctx context.Context) ([]domain.Signal, error) {
		var out []domain.Signal
		err := c.doOnce(ctx, http.MethodGet, "/signals", nil, &out)
		return out, err
	})
}

// GetPortfolio is the first-paint read: one attempt, no backoff, and the
// caller's ctx can abort it mid-flight. Responsiveness beats completeness
// here; the poller will fill the gap on its next cycle.
func (c *Client) GetPortfolio(ctx context.Context) (domain.Portfolio, error) {
	return executor.DoResult(ctx, c.fastPolicy, func(ctx context.Context) (domain.Portfolio, error) {
		var out domain.Portfolio
		err := c.doOnce(ctx, http.MethodGet, "/portfolio", nil, &out)
		return out, err
	})
}

// --- orders (confirmation-bound, never auto-retried) ---

// PlaceOrder submits a draft and returns the server-issued confirmation.
// One attempt: a retry could mint a second pending confirmation server-side.
func (c *Client) PlaceOrder(ctx context.Context, draft domain.OrderDraft) (domain.Confirmation, error) {
	var out domain.Confirmation
	err := c.doOnce(ctx, http.MethodPost, "/orders", draft, &out)
	return out, err
}

// OrderResult is what a successful confirm yields: the created order and,
// when the fill was immediate, the resulting trade.
type OrderResult struct {
	Order *domain.Order `json:"order"`
	Trade *domain.Trade `json:"trade,omitempty"`
}

// ConfirmOrder echoes the confirmation token back to execute the order.
// Confirming a real-money order is never retried automatically.
func (c *Client) ConfirmOrder(ctx context.Context, token string) (OrderResult, error) {
	var out OrderResult
	err := c.doOnce(ctx, http.MethodPost, "/orders/confirm", map[string]string{"token": token}, &out)
	return out, err
}

// CancelConfirmation releases a pending confirmation server-side. Best
// effort; local state is already cleared by the time this is called.
func (c *Client) CancelConfirmation(ctx context.Context, token string) error {
	err := c.doOnce(ctx, http.MethodDelete, "/orders/confirm/"+token, nil, nil)
	if err != nil {
		logger.Warnf("api: cancel confirmation: %v", err)
	}
	return err
}

// --- trades (mutate class, 2 attempts) ---

func (c *Client) CloseTrade(ctx context.Context, tradeID string) (domain.Trade, error) {
	return executor.DoResult(ctx, c.mutatePolicy, func(ctx context.Context) (domain.Trade, error) {
		var out domain.Trade
		err := c.doOnce(ctx, http.MethodPost, "/trades/"+tradeID+"/close", nil, &out)
		return out, err
	})
}

// --- session / account (mutate class, 2 attempts) ---

type loginResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a session token and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	out, err := executor.DoResult(ctx, c.mutatePolicy, func(ctx context.Context) (loginResponse, error) {
		var out loginResponse
		err := c.doOnce(ctx, http.MethodPost, "/auth/login",
			map[string]string{"email": email, "password": password}, &out)
		return out, err
	})
	if err != nil {
		return err
	}
	if out.Token == "" {
		return &APIError{App: true, Message: "login response carried no token"}
	}
	return c.creds.Set(out.Token)
}

// Logout clears the stored token. The server call is best effort.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doOnce(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		logger.Debugf("api: logout call failed: %v", err)
	}
	return c.creds.Clear()
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return executor.Do(ctx, c.mutatePolicy, func(ctx context.Context) error {
		return c.doOnce(ctx, http.MethodPost, "/account/password",
			map[string]string{"current_password": current, "new_password": next}, nil)
	})
}

// Profile is the mutable account profile.
type Profile struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Timezone    string `json:"timezone,omitempty"`
}

func (c *Client) UpdateProfile(ctx context.Context, profile Profile) error {
	return executor.Do(ctx, c.mutatePolicy, func(ctx context.Context) error {
		return c.doOnce(ctx, http.MethodPut, "/account/profile", profile, nil)
	})
}

// Session describes one active login session.
type Session struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Current    bool      `json:"current"`
}

func (c *Client) GetSessions(ctx context.Context) ([]Session, error) {
	return executor.DoResult(ctx, c.mutatePolicy, func(ctx context.Context) ([]Session, error) {
		var out []Session
		err := c.doOnce(ctx, http.MethodGet, "/account/sessions", nil, &out)
		return out, err
	})
}
