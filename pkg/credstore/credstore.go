// Package credstore owns the session token: persistence, retrieval and
// expiry evaluation. Components never read ambient globals for credentials;
// they hold a Store and go through it.
package credstore

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tradeboard/botclient/pkg/logger"
)

// Store is the credential interface shared by every component that
// attaches auth to outgoing calls.
type Store interface {
	// Set replaces the stored token wholesale.
	Set(token string) error
	// Get returns the token and whether one is present. It never fails:
	// storage faults degrade to "no token".
	Get() (string, bool)
	// Clear removes the token.
	Clear() error
	// IsExpired reports whether the given token (or the stored one when
	// none is given) should be treated as expired.
	IsExpired(token ...string) bool
}

const tokenKey = "session_token"

// BadgerStore persists the token in a badger KV directory.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens (or creates) the credential database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) Set(token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tokenKey), []byte(token))
	})
}

func (s *BadgerStore) Get() (string, bool) {
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tokenKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			logger.Warnf("credstore: read failed, treating as no token: %v", err)
		}
		return "", false
	}
	if out == "" {
		return "", false
	}
	return out, true
}

func (s *BadgerStore) Clear() error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(tokenKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (s *BadgerStore) IsExpired(token ...string) bool {
	return isExpired(s.pick(token), s.now)
}

func (s *BadgerStore) pick(token []string) string {
	if len(token) > 0 {
		return token[0]
	}
	t, _ := s.Get()
	return t
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu    sync.RWMutex
	token string
	Now   func() time.Time // overridable clock
}

func NewMemStore() *MemStore {
	return &MemStore{Now: time.Now}
}

func (s *MemStore) Set(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemStore) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func (s *MemStore) IsExpired(token ...string) bool {
	t := ""
	if len(token) > 0 {
		t = token[0]
	} else {
		t, _ = s.Get()
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return isExpired(t, now)
}

type claims struct {
	Exp json.Number `json:"exp"`
}

// isExpired decodes the middle segment of a three-segment signed token and
// checks its exp claim. Anything short of a decodable, strictly-future exp
// is treated as expired; a token we cannot read is a token we cannot trust.
func isExpired(token string, now func() time.Time) bool {
	if strings.TrimSpace(token) == "" {
		return true
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return true
	}
	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return true
	}
	exp, err := c.Exp.Int64()
	if err != nil || exp <= 0 {
		return true
	}
	return exp <= now().Unix()
}

// decodeSegment accepts both the unpadded URL alphabet used by JWTs and
// padded/standard variants some backends emit.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(seg)
}
