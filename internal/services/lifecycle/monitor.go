// Package lifecycle watches a client context's session on two independent
// axes: time since the last user activity and time until the access token
// expires. Both are polled on a fixed interval.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// InactivityState is the position on the inactivity axis.
type InactivityState string

const (
	StateActive       InactivityState = "active"
	StateWarningShown InactivityState = "warning_shown"
	StateLoggedOut    InactivityState = "logged_out"
)

// NoticeKind identifies a user-facing lifecycle notification.
type NoticeKind string

const (
	NoticeInactivityWarning NoticeKind = "inactivity_warning"
	NoticeExpiryWarning     NoticeKind = "expiry_warning"
	NoticeWarningCleared    NoticeKind = "warning_cleared"
	NoticeLoggedOut         NoticeKind = "logged_out"
)

// Notice is delivered to the Notifier on every transition the user should see.
type Notice struct {
	Kind      NoticeKind          `json:"kind"`
	Reason    models.LogoutReason `json:"reason,omitempty"`
	Remaining time.Duration       `json:"-"`
	At        time.Time           `json:"at"`
}

// Notifier receives lifecycle notices. Notify is called without monitor locks held.
type Notifier interface {
	Notify(n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Authenticator is the part of the identity client the monitor drives.
type Authenticator interface {
	Refresh(ctx context.Context) (*models.Session, error)
	SignOut(ctx context.Context)
}

// SessionSource yields the current session snapshot.
type SessionSource interface {
	Current() *models.Session
}

// Thresholds configures both axes.
type Thresholds struct {
	InactivityWarning time.Duration
	InactivityLogout  time.Duration
	RefreshThreshold  time.Duration
	ExpiryWarning     time.Duration
	PollInterval      time.Duration
}

// ThresholdsFromConfig extracts the monitor thresholds from the session config.
func ThresholdsFromConfig(cfg config.SessionConfig) Thresholds {
	return Thresholds{
		InactivityWarning: cfg.InactivityWarning,
		InactivityLogout:  cfg.InactivityLogout,
		RefreshThreshold:  cfg.RefreshThreshold,
		ExpiryWarning:     cfg.ExpiryWarning,
		PollInterval:      cfg.PollInterval,
	}
}

// Config holds the configuration for a monitor.
type Config struct {
	ContextID  string
	Sessions   SessionSource
	Auth       Authenticator
	Activity   ActivityStore
	Notifier   Notifier
	Thresholds Thresholds
	NowFunc    func() time.Time
}

// Status is a snapshot of the monitor state.
type Status struct {
	Inactivity    InactivityState `json:"inactivity"`
	ExpiryWarning bool            `json:"expiryWarning"`
	LastActivity  *time.Time      `json:"lastActivity,omitempty"`
}

// Monitor runs the inactivity and expiry state machines for one client context.
// All transitions happen under mu, so overlapping ticks from several mounts
// never fire the same transition twice.
type Monitor struct {
	contextID string
	sessions  SessionSource
	auth      Authenticator
	activity  ActivityStore
	notifier  Notifier
	th        Thresholds
	now       func() time.Time

	mounted atomic.Int32

	mu                 sync.Mutex
	state              InactivityState
	trackedUser        string
	lastActivity       time.Time
	expiryWarned       bool
	refreshing         bool
	lastRefreshAttempt time.Time
	lastRefreshFailed  bool
	loggedOutToken     string
}

// NewMonitor creates a monitor.
func NewMonitor(cfg *Config) (*Monitor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if cfg.Activity == nil {
		return nil, fmt.Errorf("activity store is required")
	}
	th := cfg.Thresholds
	if th.InactivityWarning <= 0 || th.InactivityLogout <= th.InactivityWarning {
		return nil, fmt.Errorf("invalid inactivity thresholds: warning %s, logout %s", th.InactivityWarning, th.InactivityLogout)
	}
	if th.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}

	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(Notice) {})
	}

	return &Monitor{
		contextID: cfg.ContextID,
		sessions:  cfg.Sessions,
		auth:      cfg.Auth,
		activity:  cfg.Activity,
		notifier:  notifier,
		th:        th,
		now:       now,
		state:     StateActive,
	}, nil
}

// Mount starts polling on a ticker owned by this mount. The returned unmount
// stops that ticker only; it is idempotent and does not wait for a running tick.
func (m *Monitor) Mount(ctx context.Context) (unmount func()) {
	ctx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(m.th.PollInterval)
	m.mounted.Add(1)

	go func() {
		defer m.mounted.Add(-1)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Tick(ctx, m.now())
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// Mounted returns the number of running mounts.
func (m *Monitor) Mounted() int {
	return int(m.mounted.Load())
}

// Reset returns both axes to their initial state.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.resetLocked("")
	m.mu.Unlock()
}

// Tick evaluates both axes at now.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	cur := m.sessions.Current()
	if cur == nil {
		m.Reset()
		return
	}
	if m.checkInactivity(ctx, now, cur) {
		return
	}
	m.checkExpiry(ctx, now, cur)
}

// RecordActivity registers a qualifying user interaction and clears the
// inactivity warning.
func (m *Monitor) RecordActivity(ctx context.Context, now time.Time) error {
	if err := m.activity.Touch(ctx, m.contextID, now); err != nil {
		return err
	}

	m.mu.Lock()
	prev := m.state
	m.state = StateActive
	m.lastActivity = now
	m.mu.Unlock()

	if prev == StateWarningShown {
		m.notifier.Notify(Notice{Kind: NoticeWarningCleared, At: now})
	}
	return nil
}

// Continue dismisses the inactivity warning. It resets activity and leaves the
// token alone.
func (m *Monitor) Continue(ctx context.Context, now time.Time) error {
	return m.RecordActivity(ctx, now)
}

// Extend forces a refresh in answer to the expiry warning. A failure on an
// already expired session signs the user out.
func (m *Monitor) Extend(ctx context.Context, now time.Time) (*models.Session, error) {
	s, err := m.auth.Refresh(ctx)
	if err != nil {
		m.mu.Lock()
		m.lastRefreshFailed = true
		m.mu.Unlock()
		if cur := m.sessions.Current(); cur != nil && cur.IsExpired(now) {
			m.logout(ctx, now, cur, models.LogoutReasonExpired)
		}
		return nil, err
	}
	m.refreshSucceeded(now)
	return s, nil
}

// Status returns a snapshot of the monitor state.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{Inactivity: m.state, ExpiryWarning: m.expiryWarned}
	if !m.lastActivity.IsZero() {
		at := m.lastActivity
		st.LastActivity = &at
	}
	return st
}

// checkInactivity returns true when it signed the user out.
func (m *Monitor) checkInactivity(ctx context.Context, now time.Time, cur *models.Session) bool {
	last, ok, err := m.activity.Last(ctx, m.contextID)
	if err != nil {
		log.Warn().Err(err).Str("sid", m.contextID).Msg("Failed to read last activity, skipping inactivity check")
		return false
	}
	if !ok {
		last = now
		if err := m.activity.Touch(ctx, m.contextID, now); err != nil {
			log.Warn().Err(err).Str("sid", m.contextID).Msg("Failed to initialise activity")
		}
	}
	elapsed := now.Sub(last)

	m.mu.Lock()
	if m.trackedUser != cur.User.ID {
		m.resetLocked(cur.User.ID)
	}
	m.lastActivity = last

	var notice *Notice
	switch {
	case elapsed >= m.th.InactivityLogout:
		m.mu.Unlock()
		m.logout(ctx, now, cur, models.LogoutReasonTimeout)
		return true
	case elapsed >= m.th.InactivityWarning:
		if m.state == StateActive {
			m.state = StateWarningShown
			notice = &Notice{Kind: NoticeInactivityWarning, Remaining: m.th.InactivityLogout - elapsed, At: now}
		}
	case m.state != StateActive:
		// Activity was recorded elsewhere, e.g. by another instance.
		if m.state == StateWarningShown {
			notice = &Notice{Kind: NoticeWarningCleared, At: now}
		}
		m.state = StateActive
	}
	m.mu.Unlock()

	if notice != nil {
		m.notifier.Notify(*notice)
	}
	return false
}

func (m *Monitor) checkExpiry(ctx context.Context, now time.Time, cur *models.Session) {
	remaining := cur.Remaining(now)
	if remaining > m.th.RefreshThreshold {
		m.mu.Lock()
		wasWarned := m.expiryWarned
		m.expiryWarned = false
		m.lastRefreshFailed = false
		m.mu.Unlock()
		if wasWarned {
			m.notifier.Notify(Notice{Kind: NoticeWarningCleared, At: now})
		}
		return
	}

	m.mu.Lock()
	due := !m.refreshing && (m.lastRefreshAttempt.IsZero() || now.Sub(m.lastRefreshAttempt) >= m.th.PollInterval)
	if due {
		m.refreshing = true
		m.lastRefreshAttempt = now
	}
	failedBefore := m.lastRefreshFailed
	m.mu.Unlock()

	if !due {
		if failedBefore && cur.IsExpired(now) {
			m.logout(ctx, now, cur, models.LogoutReasonExpired)
			return
		}
		m.warnExpiry(now, remaining)
		return
	}

	_, err := m.auth.Refresh(ctx)

	m.mu.Lock()
	m.refreshing = false
	m.mu.Unlock()

	if err == nil {
		m.refreshSucceeded(now)
		return
	}

	m.mu.Lock()
	m.lastRefreshFailed = true
	m.mu.Unlock()

	latest := m.sessions.Current()
	if latest == nil {
		return
	}
	if latest.IsExpired(now) {
		log.Warn().Err(err).Str("sid", m.contextID).Msg("Refresh failed on expired session")
		m.logout(ctx, now, latest, models.LogoutReasonExpired)
		return
	}
	log.Warn().Err(err).Str("sid", m.contextID).Dur("remaining", remaining).Msg("Proactive refresh failed, retrying next tick")
	m.warnExpiry(now, remaining)
}

func (m *Monitor) warnExpiry(now time.Time, remaining time.Duration) {
	if remaining > m.th.ExpiryWarning {
		return
	}
	m.mu.Lock()
	if m.expiryWarned {
		m.mu.Unlock()
		return
	}
	m.expiryWarned = true
	m.mu.Unlock()

	m.notifier.Notify(Notice{Kind: NoticeExpiryWarning, Remaining: remaining, At: now})
}

func (m *Monitor) refreshSucceeded(now time.Time) {
	m.mu.Lock()
	wasWarned := m.expiryWarned
	m.expiryWarned = false
	m.lastRefreshFailed = false
	m.mu.Unlock()

	if wasWarned {
		m.notifier.Notify(Notice{Kind: NoticeWarningCleared, At: now})
	}
}

// logout signs cur out once, whatever the number of callers holding it.
func (m *Monitor) logout(ctx context.Context, now time.Time, cur *models.Session, reason models.LogoutReason) {
	m.mu.Lock()
	if cur.AccessToken == m.loggedOutToken {
		m.mu.Unlock()
		return
	}
	m.loggedOutToken = cur.AccessToken
	m.state = StateLoggedOut
	m.expiryWarned = false
	m.lastRefreshFailed = false
	m.mu.Unlock()

	// Signing out may stop the mount that is running this tick.
	ctx = context.WithoutCancel(ctx)
	log.Info().Str("sid", m.contextID).Str("reason", string(reason)).Msg("Signing out")
	m.auth.SignOut(ctx)
	if err := m.activity.Forget(ctx, m.contextID); err != nil {
		log.Warn().Err(err).Str("sid", m.contextID).Msg("Failed to clear activity")
	}
	m.notifier.Notify(Notice{Kind: NoticeLoggedOut, Reason: reason, At: now})
}

func (m *Monitor) resetLocked(userID string) {
	m.trackedUser = userID
	m.state = StateActive
	m.expiryWarned = false
	m.lastRefreshAttempt = time.Time{}
	m.lastRefreshFailed = false
	if userID == "" {
		m.lastActivity = time.Time{}
	}
}
