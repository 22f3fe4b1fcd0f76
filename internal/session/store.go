// Package session holds the process-wide authentication state. All mutation
// goes through Store's own methods; every transition is persisted.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/nftmarket/internal/errs"
	"github.com/and161185/nftmarket/internal/limiter"
	"github.com/and161185/nftmarket/internal/model"
)

// StorageName is the fixed key of the persisted record.
const StorageName = "auth-storage"

// ErrNoRecord is returned by Persister.Load when nothing is stored.
var ErrNoRecord = errors.New("no persisted session")

// Persister is the durable storage port.
type Persister interface {
	Load(ctx context.Context, name string) (model.Session, error)
	Save(ctx context.Context, name string, s model.Session) error
	Clear(ctx context.Context, name string) error
}

// Authenticator is the subset of the API client the store calls.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*model.AuthEnvelope, error)
	Register(ctx context.Context, email, password string) (string, error)
}

// Store is the single writer of the session.
type Store struct {
	mu   sync.RWMutex
	cur  model.Session
	subs map[chan model.Session]struct{}

	auth Authenticator
	pers Persister
	lim  limiter.Limiter
	log  *zap.Logger
	now  func() time.Time
	wmu  sync.Mutex // serializes transitions with their persistence
}

// Option configures a Store.
type Option func(*Store)

// WithLimiter locks out an email after repeated rejected logins.
func WithLimiter(l limiter.Limiter) Option { return func(s *Store) { s.lim = l } }

// NewStore constructs an anonymous store.
func NewStore(auth Authenticator, pers Persister, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if pers == nil {
		pers = NewMemoryPersister()
	}
	s := &Store{
		auth: auth,
		pers: pers,
		log:  log,
		now:  time.Now,
		subs: map[chan model.Session]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore rehydrates the persisted record. A record whose access token has
// expired, or that names no user, is discarded and cleared.
func (s *Store) Restore(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	rec, err := s.pers.Load(ctx, StorageName)
	if errors.Is(err, ErrNoRecord) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !rec.IsAuthenticated || rec.Token == "" {
		s.set(anonymous())
		return nil
	}
	if rec.User == nil || rec.User.ID == "" {
		s.log.Info("persisted session has no user")
		s.set(anonymous())
		return s.pers.Clear(ctx, StorageName)
	}
	if exp, ok := tokenExpiry(rec.Token); ok && !s.now().Before(exp) {
		s.log.Info("persisted session expired", zap.Time("exp", exp))
		s.set(anonymous())
		return s.pers.Clear(ctx, StorageName)
	}
	s.set(rec)
	return nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.cur)
}

// Token returns the bearer token or "". It satisfies api.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Token
}

// IsAuthenticated reports the macro-state.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.IsAuthenticated
}

// UserID returns the authenticated user's id or "".
func (s *Store) UserID() model.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.cur.IsAuthenticated || s.cur.User == nil {
		return ""
	}
	return s.cur.User.ID
}

// Login authenticates with credentials. On any failure the store stays anonymous.
func (s *Store) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errors.New("empty email/password")
	}
	if s.lim != nil {
		ok, retry, err := s.lim.Allow(ctx, email)
		if err != nil {
			s.log.Warn("login limiter unavailable", zap.Error(err))
		} else if !ok {
			return fmt.Errorf("login: %w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
		}
	}
	env, err := s.auth.Login(ctx, email, password)
	if err != nil {
		if s.lim != nil && errors.Is(err, errs.ErrUnauthorized) {
			if blocked, _, ferr := s.lim.Failure(ctx, email); ferr == nil && blocked {
				s.log.Info("login locked out after repeated failures")
			}
		}
		return fmt.Errorf("login: %w", err)
	}
	if env == nil || env.AccessToken == "" || env.User == nil {
		return fmt.Errorf("login: %w", errs.ErrMalformedResponse)
	}
	if s.lim != nil {
		_ = s.lim.Success(ctx, email)
	}
	return s.adopt(ctx, env.User, env.AccessToken, true)
}

// Register creates an account. It does not authenticate: the backend requires
// email verification first.
func (s *Store) Register(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", errors.New("empty email/password")
	}
	msg, err := s.auth.Register(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	return msg, nil
}

// SetAuthData adopts a session without a password round trip. If the record
// cannot be persisted the session is still adopted in memory and the error
// is returned for the caller to report.
func (s *Store) SetAuthData(ctx context.Context, user *model.User, token string) error {
	return s.adopt(ctx, user, token, false)
}

// adopt switches to an authenticated session. With rollback set, a persist
// failure restores the previous session.
func (s *Store) adopt(ctx context.Context, user *model.User, token string, rollback bool) error {
	if user == nil || user.ID == "" || token == "" {
		return fmt.Errorf("set auth data: %w", errs.ErrMalformedResponse)
	}
	u := *user
	next := model.Session{User: &u, Token: token, IsAuthenticated: true}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	prev := s.Snapshot()
	s.set(next)
	if err := s.pers.Save(ctx, StorageName, next); err != nil {
		s.log.Warn("persist session", zap.Error(err))
		if rollback {
			s.set(prev)
		}
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Logout returns to anonymous and clears the persisted record unconditionally.
func (s *Store) Logout(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.set(anonymous())
	if err := s.pers.Clear(ctx, StorageName); err != nil {
		s.log.Warn("clear session", zap.Error(err))
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Subscribe delivers every new session state until cancel is called.
func (s *Store) Subscribe() (<-chan model.Session, func()) {
	ch := make(chan model.Session, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) set(next model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = next
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- copySession(next)
	}
}

func anonymous() model.Session { return model.Session{} }

func copySession(in model.Session) model.Session {
	out := in
	if in.User != nil {
		u := *in.User
		out.User = &u
	}
	return out
}

// tokenExpiry reads exp from a JWT without verifying it; the client holds no key.
func tokenExpiry(tok string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(tok, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
