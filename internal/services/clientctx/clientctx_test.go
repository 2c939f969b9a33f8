package clientctx_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
	"github.com/esoteric-oracle/oracle-service/internal/services/lifecycle"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
	"github.com/esoteric-oracle/oracle-service/internal/testutil"
	"github.com/esoteric-oracle/oracle-service/internal/testutil/mocks"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	registry *clientctx.Registry
	backend  *mocks.MockIdentityBackend
	activity *lifecycle.MemoryActivityStore
	clock    *clock
}

func newFixture(t *testing.T, opts ...func(*clientctx.Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		backend:  mocks.NewMockIdentityBackend(),
		activity: lifecycle.NewMemoryActivityStore(),
		clock:    &clock{now: t0},
	}

	deps := &clientctx.Dependencies{
		Backend:      f.backend,
		Tokens:       session.NewTokens(session.NewCookiePolicy(false), nil),
		Activity:     f.activity,
		Completion:   mocks.NewFakeCompletion("The cards say yes."),
		Interactions: &mocks.MockInteractionsCollection{},
		Session: config.SessionConfig{
			InactivityWarning: 15 * time.Minute,
			InactivityLogout:  20 * time.Minute,
			RefreshThreshold:  30 * time.Minute,
			ExpiryWarning:     5 * time.Minute,
			PollInterval:      time.Hour,
			AccessTokenTTL:    time.Hour,
			ContextIdleTTL:    2 * time.Hour,
		},
		Identity: config.IdentityConfig{Timeout: time.Second, LoginRate: 1, LoginBurst: 2},
		Oracle:   config.OracleConfig{MaxQuestionLength: 100, HistoryLimit: 10},
		NowFunc:  f.clock.Now,
	}
	for _, opt := range opts {
		opt(deps)
	}
	registry, err := clientctx.NewRegistry(deps)
	require.NoError(t, err)
	f.registry = registry
	t.Cleanup(registry.Close)
	return f
}

func (f *fixture) resolve(t *testing.T) *clientctx.Context {
	t.Helper()
	cc, created, err := f.registry.Resolve("")
	require.NoError(t, err)
	require.True(t, created)
	return cc
}

func tokenRequest(pair models.TokenPair) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: pair.AccessToken})
	r.AddCookie(&http.Cookie{Name: session.RefreshTokenCookie, Value: pair.RefreshToken})
	return r
}

func restoredSession() *models.Session {
	s := testutil.NewTestSession(t0.Add(time.Hour))
	s.AccessToken = "access-2"
	s.RefreshToken = "refresh-2"
	return s
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := clientctx.NewRegistry(nil)
	assert.Error(t, err)

	_, err = clientctx.NewRegistry(&clientctx.Dependencies{})
	assert.EqualError(t, err, "identity backend is required")
}

func TestRegistry_Resolve(t *testing.T) {
	f := newFixture(t)

	cc := f.resolve(t)
	_, err := uuid.Parse(cc.ID)
	require.NoError(t, err)

	again, created, err := f.registry.Resolve(cc.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, cc, again)

	fresh, created, err := f.registry.Resolve("not-a-session-id")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "not-a-session-id", fresh.ID)

	known := uuid.NewString()
	revived, created, err := f.registry.Resolve(known)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, known, revived.ID)

	assert.Equal(t, 3, f.registry.Len())
}

func TestRegistry_SweepClosesIdleContexts(t *testing.T) {
	f := newFixture(t)
	idle := f.resolve(t)
	idle.Store.Replace(testutil.NewTestSession(t0.Add(3 * time.Hour)))
	require.Equal(t, 1, idle.Monitor.Mounted())

	f.clock.Advance(90 * time.Minute)
	busy := f.resolve(t)

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.registry.Sweep())

	_, ok := f.registry.Get(idle.ID)
	assert.False(t, ok)
	_, ok = f.registry.Get(busy.ID)
	assert.True(t, ok)

	assert.Eventually(t, func() bool { return idle.Monitor.Mounted() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_EvictsLeastRecentlySeenWhenFull(t *testing.T) {
	f := newFixture(t, func(d *clientctx.Dependencies) { d.Session.MaxContexts = 3 })

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.resolve(t).ID)
		f.clock.Advance(time.Second)
	}
	_, _, err := f.registry.Resolve(ids[2])
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	ids = append(ids, f.resolve(t).ID)

	assert.Equal(t, 3, f.registry.Len())
	for i, id := range ids {
		_, ok := f.registry.Get(id)
		assert.Equal(t, i == 2 || i == 4 || i == 5, ok, "context %d", i)
	}
}

func TestContext_MonitorRunsOnlyWhileSignedIn(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)
	assert.Equal(t, 0, cc.Monitor.Mounted())

	cc.Store.Replace(testutil.NewTestSession(t0.Add(3 * time.Hour)))
	cc.Store.Replace(testutil.NewTestSession(t0.Add(4 * time.Hour)))
	assert.Equal(t, 1, cc.Monitor.Mounted())

	cc.Store.Replace(nil)
	assert.Eventually(t, func() bool { return cc.Monitor.Mounted() == 0 }, time.Second, 5*time.Millisecond)

	cc.Close()
	cc.Store.Replace(testutil.NewTestSession(t0.Add(3 * time.Hour)))
	assert.Equal(t, 0, cc.Monitor.Mounted())
}

func TestRegistry_ClosedRejectsResolve(t *testing.T) {
	f := newFixture(t)
	f.registry.Close()

	_, _, err := f.registry.Resolve("")
	assert.Error(t, err)
}

func TestContext_RestoreFromCookies(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)
	f.backend.On("RefreshSession", mock.Anything, "refresh-1").Return(restoredSession(), nil).Once()

	s := cc.Restore(context.Background(), tokenRequest(models.TokenPair{AccessToken: "opaque", RefreshToken: "refresh-1"}))
	require.NotNil(t, s)
	assert.Equal(t, testutil.TestUserID, s.User.ID)
	assert.Equal(t, "access-2", cc.Store.Current().AccessToken)

	// A session in the store is returned without asking the backend again.
	assert.NotNil(t, cc.Restore(context.Background(), tokenRequest(models.TokenPair{AccessToken: "opaque", RefreshToken: "refresh-1"})))
	f.backend.AssertNumberOfCalls(t, "RefreshSession", 1)
}

func TestContext_FailedRestoreIsNotRetried(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)
	f.backend.On("RefreshSession", mock.Anything, "stale").
		Return(nil, &identity.BackendError{Status: 400, Code: "invalid_grant", Message: "Invalid Refresh Token"}).Once()

	pair := models.TokenPair{AccessToken: "opaque", RefreshToken: "stale"}
	assert.Nil(t, cc.Restore(context.Background(), tokenRequest(pair)))
	assert.Nil(t, cc.Restore(context.Background(), tokenRequest(pair)))

	f.backend.AssertNumberOfCalls(t, "RefreshSession", 1)
}

func TestContext_SignedOutTokensAreNotRestored(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)
	f.backend.On("RefreshSession", mock.Anything, "refresh-1").Return(restoredSession(), nil).Once()
	f.backend.On("SignOut", mock.Anything, "access-2").Return(nil).Once()

	require.NotNil(t, cc.Restore(context.Background(), tokenRequest(models.TokenPair{AccessToken: "opaque", RefreshToken: "refresh-1"})))

	cc.SignOut(context.Background())
	assert.Nil(t, cc.Store.Current())
	assert.Equal(t, models.LogoutReasonSignedOut, cc.PendingReason())

	// The browser still sends the cookies it held before the sign-out response.
	assert.Nil(t, cc.Restore(context.Background(), tokenRequest(models.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"})))
	f.backend.AssertNumberOfCalls(t, "RefreshSession", 1)
}

func TestContext_SyncCookies(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)

	t.Run("signed in without cookies sets them", func(t *testing.T) {
		cc.Store.Replace(testutil.NewTestSession(t0.Add(time.Hour)))
		w := httptest.NewRecorder()
		cc.SyncCookies(w, httptest.NewRequest(http.MethodGet, "/", nil))

		access := testutil.ResponseCookie(w, session.AccessTokenCookie)
		require.NotNil(t, access)
		assert.Equal(t, testutil.TestAccessToken, access.Value)
		assert.True(t, access.HttpOnly)
	})

	t.Run("matching cookies are left alone", func(t *testing.T) {
		w := httptest.NewRecorder()
		cc.SyncCookies(w, tokenRequest(models.TokenPair{AccessToken: testutil.TestAccessToken, RefreshToken: testutil.TestRefreshToken}))
		assert.Nil(t, testutil.ResponseCookie(w, session.AccessTokenCookie))
	})

	t.Run("signed out with cookies clears them", func(t *testing.T) {
		cc.Store.Replace(nil)
		w := httptest.NewRecorder()
		cc.SyncCookies(w, tokenRequest(models.TokenPair{AccessToken: "a", RefreshToken: "r"}))

		access := testutil.ResponseCookie(w, session.AccessTokenCookie)
		require.NotNil(t, access)
		assert.Less(t, access.MaxAge, 0)
	})
}

func TestContext_InactivityLogoutLeavesPendingReason(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)
	cc.Store.Replace(testutil.NewTestSession(t0.Add(3 * time.Hour)))
	f.backend.On("SignOut", mock.Anything, testutil.TestAccessToken).Return(nil).Once()

	require.NoError(t, cc.Monitor.RecordActivity(context.Background(), t0))
	cc.Monitor.Tick(context.Background(), t0.Add(16*time.Minute))
	require.NotNil(t, cc.Notice())
	assert.Equal(t, lifecycle.NoticeInactivityWarning, cc.Notice().Kind)

	cc.Monitor.Tick(context.Background(), t0.Add(21*time.Minute))
	assert.Nil(t, cc.Store.Current())
	assert.Equal(t, models.LogoutReasonTimeout, cc.TakePendingReason())
	assert.Equal(t, models.LogoutReason(""), cc.TakePendingReason())
	assert.Nil(t, cc.Notice())
	assert.Equal(t, lifecycle.StateLoggedOut, cc.Monitor.Status().Inactivity)

	cc.Store.Replace(testutil.NewTestSession(t0.Add(3 * time.Hour)))
	assert.Equal(t, lifecycle.StateActive, cc.Monitor.Status().Inactivity)
}

func TestContext_LoginRateLimit(t *testing.T) {
	f := newFixture(t)
	cc := f.resolve(t)

	assert.True(t, cc.AllowLogin())
	assert.True(t, cc.AllowLogin())
	assert.False(t, cc.AllowLogin())
}
