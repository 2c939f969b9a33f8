package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	domainerrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
	"github.com/esoteric-oracle/oracle-service/internal/testutil"
)

func TestLogin_SetsSessionCookies(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	srv.backend.On("SignInWithPassword", mock.Anything, testutil.TestEmail, testPassword).
		Return(testutil.NewTestSession(time.Now().Add(time.Hour)), nil).Once()

	w := b.do(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email":      testutil.TestEmail,
		"password":   testPassword,
		"rememberMe": true,
	})
	testutil.AssertStatusCode(t, http.StatusOK, w)

	var resp dto.SessionResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, testutil.TestUserID, resp.User.ID)
	assert.NotNil(t, resp.ExpiresAt)
	assert.NotNil(t, resp.LastActivity)

	access := testutil.ResponseCookie(w, session.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, testutil.TestAccessToken, access.Value)
	assert.True(t, access.HttpOnly)
	assert.NotNil(t, testutil.ResponseCookie(w, session.LastActivityCookie))
	assert.NotNil(t, testutil.ResponseCookie(w, session.ContextIDCookie))

	prefs := testutil.ResponseCookie(w, session.PreferencesCookie)
	require.NotNil(t, prefs)
	assert.False(t, prefs.HttpOnly)
	assert.Contains(t, prefs.Value, "rememberMe%22%3Atrue")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv := newServer(t)
	srv.backend.On("SignInWithPassword", mock.Anything, testutil.TestEmail, "wrong-password").
		Return(nil, &identity.BackendError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"})

	w := srv.browser().do(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email":    testutil.TestEmail,
		"password": "wrong-password",
	})
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)

	var resp middleware.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeInvalidCredentials, resp.Code)
	assert.Nil(t, testutil.ResponseCookie(w, session.AccessTokenCookie))
}

func TestLogin_Validation(t *testing.T) {
	srv := newServer(t)

	w := srv.browser().do(http.MethodPost, "/api/auth/login", map[string]interface{}{
		"email":    "not-an-email",
		"password": testPassword,
	})
	testutil.AssertStatusCode(t, http.StatusBadRequest, w)

	var resp middleware.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeValidation, resp.Code)
	srv.backend.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_RateLimitedPerClient(t *testing.T) {
	srv := newServer(t)
	srv.backend.On("SignInWithPassword", mock.Anything, testutil.TestEmail, "wrong-password").
		Return(nil, &identity.BackendError{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"})
	b := srv.browser()
	body := map[string]interface{}{"email": testutil.TestEmail, "password": "wrong-password"}

	for i := 0; i < 3; i++ {
		testutil.AssertStatusCode(t, http.StatusUnauthorized, b.do(http.MethodPost, "/api/auth/login", body))
	}

	w := b.do(http.MethodPost, "/api/auth/login", body)
	testutil.AssertStatusCode(t, http.StatusTooManyRequests, w)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	srv.backend.AssertNumberOfCalls(t, "SignInWithPassword", 3)

	// Another browser has its own budget.
	testutil.AssertStatusCode(t, http.StatusUnauthorized, srv.browser().do(http.MethodPost, "/api/auth/login", body))
}

func TestSignup(t *testing.T) {
	srv := newServer(t)
	srv.backend.On("SignUp", mock.Anything, "new@example.com", testPassword).
		Return(&identity.SignUpResult{}, nil).Once()

	w := srv.browser().do(http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email":    "new@example.com",
		"password": testPassword,
	})
	testutil.AssertStatusCode(t, http.StatusCreated, w)

	var resp dto.MessageResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, "Check your email for the confirmation link.", resp.Message)
	assert.Nil(t, testutil.ResponseCookie(w, session.AccessTokenCookie))
}

func TestSignup_AlreadyRegistered(t *testing.T) {
	srv := newServer(t)
	srv.backend.On("SignUp", mock.Anything, testutil.TestEmail, testPassword).
		Return(nil, &identity.BackendError{Status: 422, Code: "user_already_exists", Message: "User already registered"}).Once()

	w := srv.browser().do(http.MethodPost, "/api/auth/signup", map[string]interface{}{
		"email":    testutil.TestEmail,
		"password": testPassword,
	})
	testutil.AssertStatusCode(t, http.StatusConflict, w)
}

func TestLogout_ClearsCookiesAndLeavesReason(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)
	srv.backend.On("SignOut", mock.Anything, testutil.TestAccessToken).Return(nil).Once()

	w := b.do(http.MethodPost, "/api/auth/logout", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	var resp dto.MessageResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, "You have been successfully signed out.", resp.Message)

	access := testutil.ResponseCookie(w, session.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Less(t, access.MaxAge, 0)

	var page dto.PageResponse
	w = b.do(http.MethodGet, "/login", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	testutil.ParseJSONResponse(t, w, &page)
	assert.Equal(t, "signed_out", page.LogoutReason)
	assert.Equal(t, "You have been successfully signed out.", page.LogoutMessage)

	// The reason is shown once.
	page = dto.PageResponse{}
	testutil.ParseJSONResponse(t, b.do(http.MethodGet, "/login", nil), &page)
	assert.Empty(t, page.LogoutReason)
}

func TestLogout_BackendFailureStillSignsOut(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)
	srv.backend.On("SignOut", mock.Anything, testutil.TestAccessToken).
		Return(&identity.BackendError{Status: 500, Message: "upstream down"}).Once()

	testutil.AssertStatusCode(t, http.StatusOK, b.do(http.MethodPost, "/api/auth/logout", nil))

	var resp dto.SessionResponse
	testutil.ParseJSONResponse(t, b.do(http.MethodGet, "/api/session", nil), &resp)
	assert.False(t, resp.Authenticated)
	assert.Equal(t, "signed_out", resp.PendingReason)
}

func TestRefresh_WithoutSession(t *testing.T) {
	srv := newServer(t)

	w := srv.browser().do(http.MethodPost, "/api/auth/refresh", nil)
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)

	rotated := testutil.NewTestSession(time.Now().Add(2 * time.Hour))
	rotated.AccessToken = "access-token-2"
	rotated.RefreshToken = "refresh-token-2"
	srv.backend.On("RefreshSession", mock.Anything, testutil.TestRefreshToken).Return(rotated, nil).Once()

	w := b.do(http.MethodPost, "/api/auth/refresh", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	access := testutil.ResponseCookie(w, session.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-token-2", access.Value)
}

func TestUpdatePassword_RequiresSession(t *testing.T) {
	srv := newServer(t)

	w := srv.browser().do(http.MethodPost, "/api/auth/update-password", map[string]interface{}{"password": "n3w-secret"})
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	srv.backend.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestResetPassword(t *testing.T) {
	srv := newServer(t)
	srv.backend.On("ResetPasswordForEmail", mock.Anything, testutil.TestEmail).Return(nil).Once()

	w := srv.browser().do(http.MethodPost, "/api/auth/reset-password", map[string]interface{}{"email": testutil.TestEmail})
	testutil.AssertStatusCode(t, http.StatusOK, w)
	srv.backend.AssertExpectations(t)
}

func TestCallback(t *testing.T) {
	t.Run("signup link signs in", func(t *testing.T) {
		srv := newServer(t)
		srv.backend.On("VerifyEmail", mock.Anything, "hash-1", "signup").
			Return(testutil.NewTestSession(time.Now().Add(time.Hour)), nil).Once()
		b := srv.browser()

		w := b.do(http.MethodGet, "/auth/callback?token_hash=hash-1&type=signup", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
		assert.NotNil(t, testutil.ResponseCookie(w, session.AccessTokenCookie))

		var page dto.PageResponse
		testutil.ParseJSONResponse(t, b.do(http.MethodGet, "/", nil), &page)
		assert.Equal(t, "oracle", page.Screen)
	})

	t.Run("recovery link lands on profile", func(t *testing.T) {
		srv := newServer(t)
		srv.backend.On("VerifyEmail", mock.Anything, "hash-2", "recovery").
			Return(testutil.NewTestSession(time.Now().Add(time.Hour)), nil).Once()

		w := srv.browser().do(http.MethodGet, "/auth/callback?token_hash=hash-2&type=recovery", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/profile", w.Header().Get("Location"))
	})

	t.Run("off-site next is ignored", func(t *testing.T) {
		srv := newServer(t)
		srv.backend.On("VerifyEmail", mock.Anything, "hash-3", "email").
			Return(testutil.NewTestSession(time.Now().Add(time.Hour)), nil).Once()

		w := srv.browser().do(http.MethodGet, "/auth/callback?token_hash=hash-3&type=email&next=//evil.example", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	})

	t.Run("malformed link", func(t *testing.T) {
		srv := newServer(t)

		w := srv.browser().do(http.MethodGet, "/auth/callback?type=bogus", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?error=invalid_link", w.Header().Get("Location"))
	})

	t.Run("rejected token", func(t *testing.T) {
		srv := newServer(t)
		srv.backend.On("VerifyEmail", mock.Anything, "expired", "signup").
			Return(nil, &identity.BackendError{Status: 403, Code: "otp_expired", Message: "Token has expired"}).Once()

		w := srv.browser().do(http.MethodGet, "/auth/callback?token_hash=expired&type=signup", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?error=verification_failed", w.Header().Get("Location"))
	})
}
