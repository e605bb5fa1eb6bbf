package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tradeboard/botclient/internal/api"
	"github.com/tradeboard/botclient/internal/client"
	"github.com/tradeboard/botclient/internal/confirm"
	"github.com/tradeboard/botclient/internal/journal"
	"github.com/tradeboard/botclient/internal/stream"
	"github.com/tradeboard/botclient/pkg/config"
	"github.com/tradeboard/botclient/pkg/credstore"
	"github.com/tradeboard/botclient/pkg/logger"
	"github.com/tradeboard/botclient/pkg/ratelimit"
	"github.com/tradeboard/botclient/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml, .yml or .json)")
	email := flag.String("login", "", "login with this email (password read from TRADEBOARD_PASSWORD)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: 5,
		MaxAge:     14,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	creds, err := credstore.OpenBadger(cfg.CredentialDir)
	if err != nil {
		logrus.Fatalf("open credential store: %v", err)
	}

	var opts []api.Option
	if cfg.RateLimit > 0 {
		opts = append(opts, api.WithLimiter(ratelimit.NewTokenBucket(cfg.RateLimit, cfg.RateLimit)))
	}
	backend := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, creds, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *email != "" {
		password := os.Getenv("TRADEBOARD_PASSWORD")
		if password == "" {
			logrus.Fatal("login requested but TRADEBOARD_PASSWORD is not set")
		}
		if err := backend.Login(ctx, *email, password); err != nil {
			logrus.Fatalf("login: %v", err)
		}
		logrus.Infof("logged in as %s", *email)
	}
	if token, ok := creds.Get(); !ok {
		logrus.Warn("no stored session token; only public endpoints will work")
	} else if creds.IsExpired(token) {
		logrus.Warn("stored session token has expired; log in again with -login")
	}

	// the journal is best effort: refusing to trade because the local
	// audit file is unwritable would be backwards
	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		logrus.Warnf("open journal: %v (continuing without local audit trail)", err)
		jnl = nil
	}

	tc := client.New(client.Options{
		Backend:      backend,
		StreamURL:    cfg.WSURL,
		StreamConfig: stream.DefaultConfig(),
		PollInterval: cfg.PollInterval,
		Confirm:      confirm.Config{Window: cfg.ConfirmWindow},
		Journal:      jnl,
	})

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(context.Context) { tc.Stop() })
	mgr.OnShutdown(func(context.Context) { _ = creds.Close() })

	if err := tc.LoadPortfolio(ctx); err != nil {
		logrus.Warnf("initial portfolio fetch failed: %v", err)
	}
	tc.Start(ctx)
	if err := tc.ConnectStream(ctx); err != nil {
		logrus.Warnf("live channel unavailable, falling back to polling only: %v", err)
	}

	logrus.Infof("botclient running against %s (poll every %s)", cfg.APIBaseURL, cfg.PollInterval)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
}
