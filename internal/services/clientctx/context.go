// Package clientctx holds the per-browser state of the service. Each client
// context owns one session store with the identity client, lifecycle monitor,
// oracle controller and history book bound to it.
package clientctx

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	"github.com/esoteric-oracle/oracle-service/internal/core/docdb"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/history"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
	"github.com/esoteric-oracle/oracle-service/internal/services/lifecycle"
	"github.com/esoteric-oracle/oracle-service/internal/services/oracle"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

// Dependencies are the process-wide resources every client context shares.
type Dependencies struct {
	Backend      identity.Backend
	Tokens       *session.Tokens
	Activity     lifecycle.ActivityStore
	Completion   completion.Client
	Interactions docdb.InteractionsCollection
	Session      config.SessionConfig
	Identity     config.IdentityConfig
	Oracle       config.OracleConfig
	NowFunc      func() time.Time
}

func (d *Dependencies) validate() error {
	if d == nil {
		return fmt.Errorf("dependencies are required")
	}
	if d.Backend == nil {
		return fmt.Errorf("identity backend is required")
	}
	if d.Tokens == nil {
		return fmt.Errorf("token persistence is required")
	}
	if d.Activity == nil {
		return fmt.Errorf("activity store is required")
	}
	if d.Completion == nil {
		return fmt.Errorf("completion client is required")
	}
	if d.Interactions == nil {
		return fmt.Errorf("interactions collection is required")
	}
	return nil
}

// Context is the server-side state of one browser.
type Context struct {
	ID       string
	Store    *session.Store
	Identity *identity.Client
	Monitor  *lifecycle.Monitor
	Oracle   *oracle.Controller
	History  *history.Book

	tokens       *session.Tokens
	accessTTL    time.Duration
	loginLimiter *rate.Limiter
	now          func() time.Time

	base        context.Context
	mountMu     sync.Mutex
	unmount     func() // nil while no session is held
	closed      bool
	unsubscribe func()
	closeOnce   sync.Once

	mu            sync.Mutex
	lastSeen      time.Time
	notice        *lifecycle.Notice
	pendingReason models.LogoutReason
	failedRestore models.TokenPair
	lastPair      models.TokenPair
}

// newContext wires the per-client components. The monitor only polls while
// the store holds a session.
func newContext(base context.Context, id string, deps *Dependencies) (*Context, error) {
	now := deps.NowFunc
	if now == nil {
		now = time.Now
	}

	cc := &Context{
		ID:        id,
		Store:     session.NewStore(),
		base:      base,
		tokens:    deps.Tokens,
		accessTTL: deps.Session.AccessTokenTTL,
		now:       now,
		lastSeen:  now(),
	}
	cc.loginLimiter = newLoginLimiter(deps.Identity.LoginRate, deps.Identity.LoginBurst)

	idClient, err := identity.NewClient(&identity.Config{
		Backend:   deps.Backend,
		Store:     cc.Store,
		Origin:    id,
		Timeout:   deps.Identity.Timeout,
		Persister: &tokenPersister{tokens: deps.Tokens, contextID: id, ttl: deps.Session.AccessTokenTTL},
		JWTSecret: deps.Identity.JWTSecret,
		NowFunc:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}
	cc.Identity = idClient

	monitor, err := lifecycle.NewMonitor(&lifecycle.Config{
		ContextID:  id,
		Sessions:   cc.Store,
		Auth:       idClient,
		Activity:   deps.Activity,
		Notifier:   lifecycle.NotifierFunc(cc.notify),
		Thresholds: lifecycle.ThresholdsFromConfig(deps.Session),
		NowFunc:    now,
	})
	if err != nil {
		idClient.Close()
		return nil, fmt.Errorf("failed to create lifecycle monitor: %w", err)
	}
	cc.Monitor = monitor

	book, err := history.NewBook(deps.Interactions, deps.Oracle.HistoryLimit)
	if err != nil {
		idClient.Close()
		return nil, fmt.Errorf("failed to create history book: %w", err)
	}
	cc.History = book

	recorder, err := oracle.NewRetryingRecorder(book, deps.Oracle.PersistRetries, deps.Oracle.PersistBackoff)
	if err != nil {
		idClient.Close()
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}
	controller, err := oracle.NewController(&oracle.Config{
		Source:            deps.Completion,
		Recorder:          recorder,
		Sessions:          cc.Store,
		MaxQuestionLength: deps.Oracle.MaxQuestionLength,
		NowFunc:           now,
	})
	if err != nil {
		idClient.Close()
		return nil, fmt.Errorf("failed to create oracle controller: %w", err)
	}
	cc.Oracle = controller

	cc.unsubscribe = cc.Store.Subscribe(cc.sessionChanged)

	return cc, nil
}

func newLoginLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// sessionChanged runs inside Store.Replace. A signed-out pair must not come
// back through Restore from cookies the browser still holds.
func (c *Context) sessionChanged(s *models.Session) {
	c.mu.Lock()
	if s != nil {
		c.lastPair = s.Tokens()
		c.mu.Unlock()
		c.mountMonitor()
		return
	}
	c.failedRestore = c.lastPair
	c.lastPair = models.TokenPair{}
	c.mu.Unlock()

	c.unmountMonitor()
	c.Oracle.Cancel()
	c.History.Reset()
}

func (c *Context) mountMonitor() {
	c.mountMu.Lock()
	defer c.mountMu.Unlock()
	if c.closed || c.unmount != nil {
		return
	}
	// A new session starts from a clean slate, whatever the last one left.
	c.Monitor.Reset()
	c.unmount = c.Monitor.Mount(c.base)
}

func (c *Context) unmountMonitor() {
	c.mountMu.Lock()
	defer c.mountMu.Unlock()
	if c.unmount != nil {
		c.unmount()
		c.unmount = nil
	}
}

func (c *Context) notify(n lifecycle.Notice) {
	c.mu.Lock()
	switch n.Kind {
	case lifecycle.NoticeWarningCleared:
		c.notice = nil
	case lifecycle.NoticeLoggedOut:
		c.notice = &n
		c.pendingReason = n.Reason
	default:
		c.notice = &n
	}
	c.mu.Unlock()

	log.Info().Str("sid", c.ID).Str("notice", string(n.Kind)).Str("reason", string(n.Reason)).Msg("Session lifecycle notice")
}

// Touch marks the context as seen, keeping it from being swept.
func (c *Context) Touch() {
	c.mu.Lock()
	c.lastSeen = c.now()
	c.mu.Unlock()
}

// LastSeen returns when the context last served a request.
func (c *Context) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// AllowLogin reports whether another sign-in attempt is allowed now.
func (c *Context) AllowLogin() bool {
	return c.loginLimiter.Allow()
}

// Restore loads the persisted session into an empty store. A pair that
// already failed to restore is not retried.
func (c *Context) Restore(ctx context.Context, r *http.Request) *models.Session {
	if cur := c.Store.Current(); cur != nil {
		return cur
	}

	pair, source := c.tokens.Read(ctx, r, c.ID)
	if source == session.SourceNone {
		return nil
	}

	c.mu.Lock()
	failed := !c.failedRestore.IsZero() && c.failedRestore == pair
	c.mu.Unlock()
	if failed {
		return nil
	}

	s, err := c.Identity.Restore(ctx, pair)
	if err != nil {
		log.Info().Err(err).Str("sid", c.ID).Str("source", string(source)).Msg("Stored session could not be restored")
		c.mu.Lock()
		c.failedRestore = pair
		c.mu.Unlock()
		c.tokens.Clear(ctx, nil, c.ID)
		return nil
	}
	log.Debug().Str("sid", c.ID).Str("source", string(source)).Str("user_id", s.User.ID).Msg("Session restored")
	return s
}

// SyncCookies brings the response cookies in line with the store. It must run
// before the response body is written.
func (c *Context) SyncCookies(w http.ResponseWriter, r *http.Request) {
	cookies := c.tokens.Cookies()
	cur := c.Store.Current()
	pair, has := session.GetAuthTokens(r)

	if cur == nil {
		if has {
			cookies.ClearAuthCookies(w)
		}
		return
	}
	if !has || pair != cur.Tokens() {
		cookies.SetAuthCookies(w, cur.Tokens(), c.accessTTL)
	}

	if st := c.Monitor.Status(); st.LastActivity != nil {
		if seen, ok := session.GetLastActivity(r); !ok || seen.UnixMilli() != st.LastActivity.UnixMilli() {
			cookies.SetLastActivity(w, *st.LastActivity)
		}
	}
}

// SignOut ends the session at the user's request.
func (c *Context) SignOut(ctx context.Context) {
	c.mu.Lock()
	c.pendingReason = models.LogoutReasonSignedOut
	c.notice = nil
	c.mu.Unlock()
	c.Identity.SignOut(ctx)
}

// Notice returns the latest lifecycle notice that has not been cleared.
func (c *Context) Notice() *lifecycle.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return nil
	}
	n := *c.notice
	return &n
}

// PendingReason returns why the user was last signed out without consuming it.
func (c *Context) PendingReason() models.LogoutReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingReason
}

// TakePendingReason returns and clears the pending sign-out reason. The entry
// screen shows it once.
func (c *Context) TakePendingReason() models.LogoutReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	reason := c.pendingReason
	c.pendingReason = ""
	if reason != "" {
		c.notice = nil
	}
	return reason
}

// ClearPendingReason forgets the sign-out reason, e.g. after a new sign-in.
func (c *Context) ClearPendingReason() {
	c.mu.Lock()
	c.pendingReason = ""
	c.notice = nil
	c.mu.Unlock()
}

// Close stops the monitor, cancels the active query and detaches from backend events.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.mountMu.Lock()
		c.closed = true
		c.mountMu.Unlock()
		c.unmountMonitor()
		c.unsubscribe()
		c.Oracle.Close()
		c.Identity.Close()
	})
}

// tokenPersister keeps the fallback slot current. Cookies are written by
// SyncCookies on the next response.
type tokenPersister struct {
	tokens    *session.Tokens
	contextID string
	ttl       time.Duration
}

func (p *tokenPersister) Persist(ctx context.Context, s *models.Session) {
	p.tokens.Write(ctx, nil, p.contextID, s.Tokens(), p.ttl)
}

func (p *tokenPersister) Forget(ctx context.Context) {
	p.tokens.Clear(ctx, nil, p.contextID)
}
