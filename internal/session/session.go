// Package session holds the bearer credential and current-user identity,
// persists them, and drives the four-state authentication machine. A Session
// is an explicit object handed to its dependents; there is no package-level
// instance.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/metrics"
	"grocer-cli/internal/model"
	"grocer-cli/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

type State int

const (
	StateUnknown State = iota
	StateResolving
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "invalid"
	}
}

const msgLoginFailed = "Login failed. Please check credentials."

// Client is the slice of the gateway the session needs.
type Client interface {
	Login(ctx context.Context, username, password string) (string, error)
	Me(ctx context.Context) (model.User, error)
	SetToken(token string)
}

type Session struct {
	kv      store.KV
	client  Client
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	state   State
	token   string
	user    *model.User
	lastErr string
	subs    map[int]func(State)
	nextSub int
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func New(kv store.KV, client Client, opts ...Option) *Session {
	if kv == nil {
		kv = store.NewMemoryKV()
	}
	s := &Session{
		kv:     kv,
		client: client,
		log:    slog.Default(),
		now:    time.Now,
		state:  StateUnknown,
		subs:   map[int]func(State){},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns the resolved identity, or nil unless authenticated.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) Snapshot() model.Session {
	return model.Session{Token: s.Token(), User: s.User()}
}

// LastError is the failure reason of the most recent Login.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Subscribe registers fn for state transitions. fn runs on the goroutine
// that caused the transition, outside the session lock.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// transitionLocked sets the state and returns the listeners to notify, or nil
// when the state did not change.
func (s *Session) transitionLocked(next State) []func(State) {
	if s.state == next {
		return nil
	}
	s.state = next
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func notify(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}

// Restore seeds the session from durable storage before the first render
// decision. A stored token and user resume as authenticated; a token alone
// goes to resolving; an expired JWT is discarded without a network call.
func (s *Session) Restore(ctx context.Context) error {
	tok, hasTok, err := s.kv.Get(ctx, store.KeyAuthToken)
	if err != nil {
		return err
	}
	tok = strings.TrimSpace(tok)
	if !hasTok || tok == "" {
		s.Logout()
		return nil
	}
	if tokenExpired(tok, s.now()) {
		s.log.Info("stored token expired; signing out")
		s.Logout()
		return nil
	}

	var user *model.User
	if raw, ok, err := s.kv.Get(ctx, store.KeyUser); err == nil && ok {
		var u model.User
		if json.Unmarshal([]byte(raw), &u) == nil && u.ID != 0 && u.Username != "" {
			user = &u
		}
	}

	s.client.SetToken(tok)
	s.mu.Lock()
	s.token = tok
	s.user = user
	next := StateResolving
	if user != nil {
		next = StateAuthenticated
	}
	fns := s.transitionLocked(next)
	s.mu.Unlock()
	notify(fns, next)
	return nil
}

// Login exchanges credentials for a session. It reports success as a bool;
// the failure reason is available from LastError.
func (s *Session) Login(ctx context.Context, username, password string) bool {
	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()

	tok, err := s.client.Login(ctx, strings.TrimSpace(username), password)
	if err != nil {
		s.failLogin(loginMessage(err))
		return false
	}

	if err := s.kv.Set(ctx, store.KeyAuthToken, tok); err != nil {
		s.log.Warn("persist token failed", "err", err)
	}
	s.client.SetToken(tok)
	s.mu.Lock()
	s.token = tok
	s.user = nil
	fns := s.transitionLocked(StateResolving)
	s.mu.Unlock()
	notify(fns, StateResolving)

	if err := s.FetchAndSetUser(ctx); err != nil {
		s.mu.Lock()
		s.lastErr = loginMessage(err)
		s.mu.Unlock()
		return false
	}
	return true
}

func (s *Session) failLogin(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.Logout()
}

func loginMessage(err error) string {
	var ge *gateway.Error
	if errors.As(err, &ge) && ge.Status != 0 && strings.TrimSpace(ge.Message) != "" {
		return ge.Message
	}
	return msgLoginFailed
}

// FetchAndSetUser resolves the identity behind the current token. A token
// that cannot resolve to a user is not a session: any failure other than
// cancellation logs out.
func (s *Session) FetchAndSetUser(ctx context.Context) error {
	s.mu.Lock()
	tok := s.token
	var fns []func(State)
	if tok != "" && s.user == nil {
		fns = s.transitionLocked(StateResolving)
	}
	s.mu.Unlock()
	notify(fns, StateResolving)

	if tok == "" {
		s.Logout()
		return gateway.Precondition("Not signed in.", nil)
	}

	u, err := s.client.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		s.log.Info("identity resolution failed; signing out", "err", err)
		s.Logout()
		return err
	}

	s.mu.Lock()
	if s.token != tok {
		// Logged out (or re-logged in) while the request was in flight.
		s.mu.Unlock()
		return gateway.Precondition("Session changed while resolving identity.", nil)
	}
	s.user = &u
	fns = s.transitionLocked(StateAuthenticated)
	s.mu.Unlock()

	if raw, err := json.Marshal(u); err == nil {
		if err := s.kv.Set(ctx, store.KeyUser, string(raw)); err != nil {
			s.log.Warn("persist user failed", "err", err)
		}
	}
	notify(fns, StateAuthenticated)
	return nil
}

// Logout clears the credential, identity and persisted entries. Calling it
// again (or concurrently) after the first transition is a no-op.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.state == StateUnauthenticated && s.token == "" && s.user == nil {
		s.mu.Unlock()
		return
	}
	hadSession := s.token != "" || s.user != nil
	s.token = ""
	s.user = nil
	fns := s.transitionLocked(StateUnauthenticated)
	s.mu.Unlock()

	s.client.SetToken("")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.kv.Delete(ctx, store.KeyAuthToken, store.KeyUser); err != nil {
		s.log.Warn("clear persisted session failed", "err", err)
	}
	if hadSession {
		s.metrics.Logout()
	}
	notify(fns, StateUnauthenticated)
}

// HandleError logs out when err is an auth failure and reports whether it did.
func (s *Session) HandleError(err error) bool {
	if !gateway.IsAuth(err) {
		return false
	}
	s.Logout()
	return true
}

// tokenExpired reads the exp claim without verifying the signature. Opaque
// or exp-less tokens are left for the server to judge.
func tokenExpired(tok string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}
