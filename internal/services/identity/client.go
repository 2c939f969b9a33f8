package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 15 * time.Second

// Persister keeps copies of the session outside the store.
type Persister interface {
	Persist(ctx context.Context, s *models.Session)
	Forget(ctx context.Context)
}

// Config holds the configuration for a client.
type Config struct {
	Backend   Backend
	Store     *session.Store
	Origin    string
	Timeout   time.Duration
	Persister Persister
	JWTSecret string
	NowFunc   func() time.Time
}

// Client exposes the identity operations of one client context. Results from
// calls and events pushed by the backend both land in the same store.
type Client struct {
	backend   Backend
	store     *session.Store
	origin    string
	timeout   time.Duration
	persister Persister
	jwtSecret []byte
	now       func() time.Time

	refreshGroup singleflight.Group

	mu          sync.Mutex
	listeners   []func(models.AuthEvent)
	unsubscribe func()
}

// NewClient creates a client and subscribes it to the backend's events for its origin.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("identity backend is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	c := &Client{
		backend:   cfg.Backend,
		store:     cfg.Store,
		origin:    cfg.Origin,
		timeout:   timeout,
		persister: cfg.Persister,
		jwtSecret: []byte(cfg.JWTSecret),
		now:       now,
	}
	c.unsubscribe = cfg.Backend.OnAuthStateChange(cfg.Origin, c.handleEvent)
	return c, nil
}

// Close detaches the client from backend events.
func (c *Client) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// Store returns the session store the client writes to.
func (c *Client) Store() *session.Store {
	return c.store
}

// SignIn authenticates with email and password. The store holds the new
// session before SignIn returns.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var s *models.Session
	err := c.call(ctx, "sign in", func(ctx context.Context) error {
		var err error
		s, err = c.backend.SignInWithPassword(ctx, email, password)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.commit(ctx, s, false)
	return s, nil
}

// SignUp creates an account. It never establishes a session; the caller shows
// a verify-your-email state.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	return c.call(ctx, "sign up", func(ctx context.Context) error {
		_, err := c.backend.SignUp(ctx, email, password)
		return err
	})
}

// SignOut revokes the session on a best-effort basis and always clears the
// store and the persisted token copies. Calling it repeatedly is safe.
func (c *Client) SignOut(ctx context.Context) {
	epoch := c.store.Epoch()
	if cur := c.store.Current(); cur != nil && cur.AccessToken != "" {
		err := c.call(ctx, "sign out", func(ctx context.Context) error {
			return c.backend.SignOut(ctx, cur.AccessToken)
		})
		if err != nil {
			log.Warn().Err(err).Str("sid", c.origin).Msg("Backend sign-out failed, clearing local session anyway")
		}
	}
	// The backend's SignedOut event has already cleared everything.
	if c.store.Epoch() != epoch {
		return
	}
	c.store.Replace(nil)
	if c.persister != nil {
		c.persister.Forget(ctx)
	}
}

// Refresh exchanges the current refresh token for a new session. Concurrent
// callers share a single backend call, which outlives any one caller's
// context. A failure means the session cannot be recovered and the caller
// must sign out. A sign-out while the call is in flight wins.
func (c *Client) Refresh(ctx context.Context) (*models.Session, error) {
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		epoch := c.store.Epoch()
		cur := c.store.Current()
		if cur == nil || cur.RefreshToken == "" {
			return nil, apperrors.NewUnauthenticatedError("no session to refresh")
		}
		var s *models.Session
		err := c.call(shared, "refresh", func(ctx context.Context) error {
			var err error
			s, err = c.backend.RefreshSession(ctx, cur.RefreshToken)
			return err
		})
		if err != nil {
			return nil, err
		}
		if !c.commitSince(shared, epoch, s) {
			return nil, apperrors.NewUnauthenticatedError("signed out during refresh")
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Session), nil
}

// OnChange registers cb for every auth event the backend pushes for this client.
func (c *Client) OnChange(cb func(models.AuthEvent)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = append(c.listeners, cb)
	idx := len(c.listeners) - 1
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.listeners[idx] = nil
		})
	}
}

// ResetPassword sends a password reset email.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	return c.call(ctx, "password reset", func(ctx context.Context) error {
		return c.backend.ResetPasswordForEmail(ctx, email)
	})
}

// UpdatePassword changes the password of the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	cur := c.store.Current()
	if cur == nil {
		return apperrors.NewUnauthenticatedError("sign in to change your password")
	}
	return c.call(ctx, "password update", func(ctx context.Context) error {
		_, err := c.backend.UpdateUser(ctx, cur.AccessToken, password)
		return err
	})
}

// VerifyEmail completes an email confirmation link and signs the user in.
func (c *Client) VerifyEmail(ctx context.Context, tokenHash, verifyType string) (*models.Session, error) {
	var s *models.Session
	err := c.call(ctx, "email verification", func(ctx context.Context) error {
		var err error
		s, err = c.backend.VerifyEmail(ctx, tokenHash, verifyType)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.commit(ctx, s, false)
	return s, nil
}

// commit funnels a session into the store. guarded commits refuse sessions that
// expire before the current one. Returns false when nothing changed.
func (c *Client) commit(ctx context.Context, s *models.Session, guarded bool) bool {
	if s == nil {
		return false
	}
	if cur := c.store.Current(); cur != nil && cur.AccessToken == s.AccessToken && cur.User == s.User {
		return false
	}
	if guarded {
		if !c.store.ReplaceIfNewer(s) {
			return false
		}
	} else {
		c.store.Replace(s)
	}
	if c.persister != nil {
		c.persister.Persist(ctx, s)
	}
	return true
}

// commitSince commits a session obtained by a call that started at epoch. It
// reports false, leaving store and persisted copies signed out, when a
// sign-out happened in between.
func (c *Client) commitSince(ctx context.Context, epoch uint64, s *models.Session) bool {
	if s == nil {
		return true
	}
	if cur := c.store.Current(); cur != nil && cur.AccessToken == s.AccessToken && cur.User == s.User {
		return true
	}
	if !c.store.ReplaceIf(epoch, s) {
		return false
	}
	if c.persister != nil {
		c.persister.Persist(ctx, s)
		if c.store.Epoch() != epoch {
			c.persister.Forget(ctx)
		}
	}
	return true
}

func (c *Client) handleEvent(ev models.AuthEvent) {
	ctx := context.Background()
	switch ev.Type {
	case models.AuthEventSignedIn:
		c.commit(ctx, ev.Session, false)
	case models.AuthEventTokenRefreshed, models.AuthEventUserUpdated:
		if c.store.Current() != nil {
			c.commit(ctx, ev.Session, true)
		}
	case models.AuthEventSignedOut:
		if c.store.Current() != nil {
			c.store.Replace(nil)
			if c.persister != nil {
				c.persister.Forget(ctx)
			}
		}
	}

	c.mu.Lock()
	listeners := make([]func(models.AuthEvent), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, cb := range listeners {
		if cb != nil {
			cb(ev)
		}
	}
}

// call bounds fn by the client timeout, tags it with the origin and maps every
// failure onto the error taxonomy. Panics are downgraded to Unknown.
func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(WithOrigin(ctx, c.origin), c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("op", op).Msg("Identity backend panicked")
			err = apperrors.NewUnknownError(op+" failed unexpectedly", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := fn(ctx); err != nil {
		return classify(ctx, op, err)
	}
	return nil
}

func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewTimeoutError(op)
	}
	if domainErr, ok := apperrors.GetDomainError(err); ok {
		return domainErr
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return classifyBackend(op, backendErr)
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return apperrors.NewConnectionFailedError("identity backend", err)
	}
	return apperrors.NewUnknownError(op+" failed", err)
}

func classifyBackend(op string, err *BackendError) error {
	code := strings.ToLower(err.Code)
	msg := strings.ToLower(err.Message)

	switch {
	case code == "invalid_credentials" || strings.Contains(msg, "invalid login credentials"):
		return apperrors.NewInvalidCredentialsError(err)
	case code == "email_not_confirmed" || strings.Contains(msg, "email not confirmed"):
		return apperrors.NewEmailUnconfirmedError(err)
	case code == "user_already_exists" || code == "email_exists" || strings.Contains(msg, "already registered"):
		return apperrors.NewAlreadyRegisteredError(err)
	case code == "refresh_token_not_found" || code == "refresh_token_already_used" ||
		code == "session_not_found" || code == "bad_jwt" || err.Status == 401 ||
		strings.Contains(msg, "refresh token"):
		e := apperrors.NewUnauthenticatedError("session is no longer valid")
		e.Err = err
		return e
	case err.Status >= 500:
		return apperrors.NewConnectionFailedError("identity backend", err)
	default:
		return apperrors.NewUnknownError(op+" failed", err)
	}
}
