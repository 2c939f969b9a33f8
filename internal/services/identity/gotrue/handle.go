// Package gotrue implements the identity backend against a GoTrue-compatible
// REST API (/auth/v1).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
)

// Config holds the configuration for the backend handle. It is fixed once the
// handle exists.
type Config struct {
	URL        string
	AnonKey    string
	SiteURL    string
	HTTPClient *http.Client
	Bus        *identity.Bus
	NowFunc    func() time.Time
}

// Handle is the process-wide connection to the identity backend.
type Handle struct {
	baseURL    string
	anonKey    string
	siteURL    string
	httpClient *http.Client
	bus        *identity.Bus
	now        func() time.Time
}

var _ identity.Backend = (*Handle)(nil)

var (
	sharedOnce   sync.Once
	sharedHandle *Handle
	sharedErr    error
)

// Shared returns the process-wide handle, creating it on first use. Later
// calls return the same handle and ignore cfg.
func Shared(cfg Config) (*Handle, error) {
	sharedOnce.Do(func() {
		sharedHandle, sharedErr = newHandle(cfg)
	})
	return sharedHandle, sharedErr
}

func newHandle(cfg Config) (*Handle, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("identity URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("identity anon key is required")
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid identity URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	bus := cfg.Bus
	if bus == nil {
		bus = identity.NewBus(nil, nil)
	}
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}

	return &Handle{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		siteURL:    strings.TrimRight(cfg.SiteURL, "/"),
		httpClient: httpClient,
		bus:        bus,
		now:        now,
	}, nil
}

// SignInWithPassword exchanges credentials for a session.
func (h *Handle) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	var resp sessionResponse
	body := map[string]string{"email": email, "password": password}
	if err := h.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}
	s, err := resp.toSession(h.now())
	if err != nil {
		return nil, err
	}
	h.publish(ctx, models.AuthEventSignedIn, s)
	return s, nil
}

// SignUp registers an account. The backend answers an existing, unconfirmed
// email with a user that has no identities; that case is reported as a conflict.
func (h *Handle) SignUp(ctx context.Context, email, password string) (*identity.SignUpResult, error) {
	path := "/signup"
	if h.siteURL != "" {
		path += "?redirect_to=" + url.QueryEscape(h.siteURL+"/auth/callback")
	}

	var raw json.RawMessage
	body := map[string]string{"email": email, "password": password}
	if err := h.do(ctx, http.MethodPost, path, "", body, &raw); err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sign-up response: %w", err)
	}
	if resp.AccessToken != "" {
		s, err := resp.toSession(h.now())
		if err != nil {
			return nil, err
		}
		return &identity.SignUpResult{User: s.User, Session: s}, nil
	}

	var user userResponse
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode sign-up user: %w", err)
	}
	if user.Identities != nil && len(user.Identities) == 0 {
		return nil, &identity.BackendError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}
	return &identity.SignUpResult{User: user.toRef()}, nil
}

// SignOut revokes the session behind accessToken.
func (h *Handle) SignOut(ctx context.Context, accessToken string) error {
	err := h.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
	// The local side is signed out whatever the backend said.
	h.publish(ctx, models.AuthEventSignedOut, nil)
	return err
}

// RefreshSession exchanges a refresh token for a new session.
func (h *Handle) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	var resp sessionResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := h.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}
	s, err := resp.toSession(h.now())
	if err != nil {
		return nil, err
	}
	h.publish(ctx, models.AuthEventTokenRefreshed, s)
	return s, nil
}

// GetUser returns the user behind accessToken, validating it on the way.
func (h *Handle) GetUser(ctx context.Context, accessToken string) (*models.UserRef, error) {
	var user userResponse
	if err := h.do(ctx, http.MethodGet, "/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	ref := user.toRef()
	return &ref, nil
}

// ResetPasswordForEmail sends a recovery email that lands on the update-password screen.
func (h *Handle) ResetPasswordForEmail(ctx context.Context, email string) error {
	path := "/recover"
	if h.siteURL != "" {
		path += "?redirect_to=" + url.QueryEscape(h.siteURL+"/auth/update-password")
	}
	return h.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdateUser sets a new password for the user behind accessToken.
func (h *Handle) UpdateUser(ctx context.Context, accessToken, password string) (*models.UserRef, error) {
	var user userResponse
	if err := h.do(ctx, http.MethodPut, "/user", accessToken, map[string]string{"password": password}, &user); err != nil {
		return nil, err
	}
	ref := user.toRef()
	h.publish(ctx, models.AuthEventUserUpdated, nil)
	return &ref, nil
}

// VerifyEmail redeems a confirmation token hash for a session.
func (h *Handle) VerifyEmail(ctx context.Context, tokenHash, verifyType string) (*models.Session, error) {
	if verifyType == "" {
		verifyType = "email"
	}
	var resp sessionResponse
	body := map[string]string{"token_hash": tokenHash, "type": verifyType}
	if err := h.do(ctx, http.MethodPost, "/verify", "", body, &resp); err != nil {
		return nil, err
	}
	s, err := resp.toSession(h.now())
	if err != nil {
		return nil, err
	}
	h.publish(ctx, models.AuthEventSignedIn, s)
	return s, nil
}

// OnAuthStateChange subscribes fn to events for origin.
func (h *Handle) OnAuthStateChange(origin string, fn func(models.AuthEvent)) func() {
	return h.bus.Subscribe(origin, fn)
}

func (h *Handle) publish(ctx context.Context, typ models.AuthEventType, s *models.Session) {
	h.bus.Publish(ctx, identity.OriginFrom(ctx), models.AuthEvent{Type: typ, Session: s, At: h.now().UTC()})
}

func (h *Handle) do(ctx context.Context, method, path, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", h.anonKey)
	bearer := h.anonKey
	if accessToken != "" {
		bearer = accessToken
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
