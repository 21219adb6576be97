// Package token issues short-lived bearer tokens that grant one user access
// to one system object.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/internal/logger"
)

// Defaults for NewStore.
const (
	DefaultTTL        = time.Hour
	DefaultMaxEntries = 100

	tokenBytes = 32
)

type entry struct {
	idUser         int64
	idSystemObject int64
	expiry         time.Time
}

// Store holds live tokens in memory.
//
// Expiry slides: every successful Validate pushes it to now+TTL. The entry
// cap is soft. Inserting at or above it sweeps expired entries but never
// evicts valid ones, so sustained load can exceed it.
type Store struct {
	mu         sync.Mutex
	tokens     map[string]*entry
	ttl        time.Duration
	maxEntries int
	clock      clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the inactivity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxEntries sets the soft cap that triggers a sweep.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// NewStore creates an empty token store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tokens:     make(map[string]*entry),
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate issues a token for (idUser, idSystemObject).
func (s *Store) Generate(idUser, idSystemObject int64) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if len(s.tokens) >= s.maxEntries {
		swept := s.sweepLocked(now)
		if swept > 0 {
			logger.Debug("Token store swept %d expired tokens", swept)
		}
	}

	s.tokens[token] = &entry{
		idUser:         idUser,
		idSystemObject: idSystemObject,
		expiry:         now.Add(s.ttl),
	}
	return token, nil
}

// Validate returns the user id bound to token when it is live and bound to
// idSystemObject, and extends its expiry. An expired token is deleted.
func (s *Store) Validate(token string, idSystemObject int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tokens[token]
	if !ok {
		return 0, false
	}

	now := s.clock.Now()
	if now.After(e.expiry) {
		delete(s.tokens, token)
		return 0, false
	}
	if e.idSystemObject != idSystemObject {
		return 0, false
	}

	e.expiry = now.Add(s.ttl)
	return e.idUser, true
}

// Revoke deletes token. Revoking an unknown token is a no-op.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// Len returns the number of stored tokens, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *Store) sweepLocked(now time.Time) int {
	swept := 0
	for token, e := range s.tokens {
		if now.After(e.expiry) {
			delete(s.tokens, token)
			swept++
		}
	}
	return swept
}
