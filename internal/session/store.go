// Package session holds the signed-in identity of the client: the current
// user and the access token, mirrored into a persisted key-value cache so
// that a restarted client can resume without logging in again.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gregriff/parley/internal/models"
)

// Keys under which the session is persisted. Both must be present and
// parseable for a rehydrate to succeed.
const (
	TokenKey = "access_token"
	UserKey  = "user"
)

// ErrCorrupt is wrapped by KV implementations whose backing data cannot be
// parsed.
var ErrCorrupt = errors.New("session: corrupt store")

// Session is the identity of the signed-in user.
type Session struct {
	UserID   string
	UserName string
	Token    string
}

// Store is the credential store. The zero value is not usable; create one
// with NewStore.
type Store struct {
	kv     KV
	logger *slog.Logger

	mu            sync.RWMutex
	user          models.User
	token         string
	authenticated bool

	subMu   sync.Mutex
	subs    map[int]func(Session, bool)
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recoverable problems.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a logged-out store persisting to kv.
func NewStore(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		subs:   make(map[int]func(Session, bool)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login records user and token as the current session. The token and user
// are written to the cache in one batch before memory is updated, so a
// failed write leaves the previous session untouched.
func (s *Store) Login(user models.User, token string) error {
	if token == "" {
		return errors.New("session: empty token")
	}
	if user.ID == "" {
		return errors.New("session: user without id")
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.SetAll(map[string]string{TokenKey: token, UserKey: string(data)}); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	s.mu.Lock()
	s.user, s.token, s.authenticated = user, token, true
	s.mu.Unlock()

	s.notify()
	return nil
}

// Logout clears the session from memory and from the cache. Memory is
// cleared even when the cache cannot be written.
func (s *Store) Logout() error {
	s.mu.Lock()
	s.user, s.token, s.authenticated = models.User{}, "", false
	s.mu.Unlock()

	s.notify()

	if err := s.kv.DeleteAll(TokenKey, UserKey); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// UpdateUser replaces the stored profile of the signed-in user.
func (s *Store) UpdateUser(user models.User) error {
	s.mu.RLock()
	authenticated := s.authenticated
	s.mu.RUnlock()
	if !authenticated {
		return errors.New("session: not logged in")
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}
	if err := s.kv.SetAll(map[string]string{UserKey: string(data)}); err != nil {
		return fmt.Errorf("persisting user: %w", err)
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()

	s.notify()
	return nil
}

// Rehydrate restores the session persisted by a previous process. Missing
// or malformed data leaves the store logged out and is not an error; only
// failures to reach the cache are returned.
func (s *Store) Rehydrate() (bool, error) {
	token, hasToken, err := s.kv.Get(TokenKey)
	if errors.Is(err, ErrCorrupt) {
		s.logger.Warn("discarding unreadable session cache", "error", err)
		return false, s.Logout()
	}
	if err != nil {
		return false, fmt.Errorf("reading token: %w", err)
	}

	raw, hasUser, err := s.kv.Get(UserKey)
	if err != nil {
		return false, fmt.Errorf("reading user: %w", err)
	}

	if !hasToken || !hasUser || token == "" {
		if hasToken || hasUser {
			s.logger.Info("discarding incomplete session cache")
			return false, s.Logout()
		}
		return false, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
		s.logger.Warn("discarding malformed session user", "error", err)
		return false, s.Logout()
	}

	s.mu.Lock()
	s.user, s.token, s.authenticated = user, token, true
	s.mu.Unlock()

	s.notify()
	return true, nil
}

// Current returns the signed-in session, if any.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked()
}

func (s *Store) currentLocked() (Session, bool) {
	if !s.authenticated {
		return Session{}, false
	}
	return Session{UserID: s.user.ID, UserName: s.user.Name, Token: s.token}, true
}

// Token returns the access token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the signed-in user.
func (s *Store) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.authenticated
}

// IsAuthenticated reports whether a session is present.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Subscribe registers fn to be called after every change to the session.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Session, bool)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	current, ok := s.Current()

	s.subMu.Lock()
	fns := make([]func(Session, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(current, ok)
	}
}
