package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/api/guard"
	"github.com/esoteric-oracle/oracle-service/internal/api/handlers"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/api/routes"
	"github.com/esoteric-oracle/oracle-service/internal/config"
	"github.com/esoteric-oracle/oracle-service/internal/services/clientctx"
	"github.com/esoteric-oracle/oracle-service/internal/services/lifecycle"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
	"github.com/esoteric-oracle/oracle-service/internal/testutil"
	"github.com/esoteric-oracle/oracle-service/internal/testutil/mocks"
)

const testPassword = "hunter22"

type server struct {
	router       *gin.Engine
	backend      *mocks.MockIdentityBackend
	interactions *mocks.MockInteractionsCollection
	completion   *mocks.FakeCompletion
	cache        *mocks.MockCacheClient
	docdb        *mocks.MockDocDBClient
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		backend:      mocks.NewMockIdentityBackend(),
		interactions: &mocks.MockInteractionsCollection{},
		completion:   mocks.NewFakeCompletion("The stars ", "say yes."),
		cache:        mocks.NewMockCacheClient(),
		docdb:        mocks.NewMockDocDBClient(),
	}

	cookies := session.NewCookiePolicy(false)
	registry, err := clientctx.NewRegistry(&clientctx.Dependencies{
		Backend:      s.backend,
		Tokens:       session.NewTokens(cookies, nil),
		Activity:     lifecycle.NewMemoryActivityStore(),
		Completion:   s.completion,
		Interactions: s.interactions,
		Session: config.SessionConfig{
			InactivityWarning: 15 * time.Minute,
			InactivityLogout:  20 * time.Minute,
			RefreshThreshold:  30 * time.Minute,
			ExpiryWarning:     5 * time.Minute,
			PollInterval:      time.Hour,
			AccessTokenTTL:    time.Hour,
			ContextIdleTTL:    time.Hour,
		},
		Identity: config.IdentityConfig{Timeout: 10 * time.Second, LoginRate: 10, LoginBurst: 3},
		Oracle:   config.OracleConfig{MaxQuestionLength: 100, HistoryLimit: 20},
	})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	completionCfg := config.CompletionConfig{Type: "openai", APIKey: "sk-test", Model: "oracle-mini", HealthCheck: time.Second}
	s.router = testutil.SetupTestRouter()
	routes.SetupWithMiddleware(s.router, &routes.Config{
		HealthHandler:       handlers.NewHealthHandler(s.cache, s.docdb, s.completion, completionCfg),
		AuthHandler:         handlers.NewAuthHandler(cookies, nil),
		SessionHandler:      handlers.NewSessionHandler(nil),
		PreferencesHandler:  handlers.NewPreferencesHandler(cookies),
		OracleHandler:       handlers.NewOracleHandler(nil),
		InteractionsHandler: handlers.NewInteractionsHandler(),
		PagesHandler:        handlers.NewPagesHandler(),
		ClientContext:       middleware.NewClientContextMiddleware(registry, cookies),
		GuardRules:          guard.DefaultRules(),
	},
		middleware.NewLoggingMiddleware(),
		middleware.NewErrorMiddleware(),
		middleware.DefaultSecurityHeaders("", false),
		middleware.DefaultCORSConfig(nil),
	)
	return s
}

// browser keeps the cookies the server hands out, like a real cookie jar.
type browser struct {
	srv     *server
	cookies map[string]*http.Cookie
}

func (s *server) browser() *browser {
	return &browser{srv: s, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	jar := make([]*http.Cookie, 0, len(b.cookies))
	for _, c := range b.cookies {
		jar = append(jar, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	w := testutil.PerformRequest(b.srv.router, method, path, body, nil, jar...)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return w
}

// signIn logs the browser in as the test user.
func (b *browser) signIn(t *testing.T) {
	t.Helper()
	b.srv.backend.On("SignInWithPassword", mock.Anything, testutil.TestEmail, testPassword).
		Return(testutil.NewTestSession(time.Now().Add(time.Hour)), nil).Once()

	w := b.do(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email":    testutil.TestEmail,
		"password": testPassword,
	})
	testutil.AssertStatusCode(t, http.StatusOK, w)
}
