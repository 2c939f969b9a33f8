package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Cookie names shared with the browser.
const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	SessionStateCookie = "sb-session-state"
	LastActivityCookie = "last-activity"
	PreferencesCookie  = "user-preferences"
	ContextIDCookie    = "oracle-sid"
)

const (
	// DefaultAccessTokenMaxAge applies when the backend omits expires_in.
	DefaultAccessTokenMaxAge = time.Hour
	// DefaultRefreshTokenMaxAge is the refresh cookie lifetime.
	DefaultRefreshTokenMaxAge = 30 * 24 * time.Hour
	// DefaultActivityMaxAge is the last-activity cookie lifetime.
	DefaultActivityMaxAge = 24 * time.Hour
	// preferencesMaxAge is the user-preferences cookie lifetime.
	preferencesMaxAge = 365 * 24 * time.Hour
	// contextIDMaxAge is the client context cookie lifetime.
	contextIDMaxAge = 30 * 24 * time.Hour
)

// CookiePolicy carries the attributes every cookie is written with.
type CookiePolicy struct {
	Secure         bool
	RefreshMaxAge  time.Duration
	ActivityMaxAge time.Duration
}

// NewCookiePolicy returns a policy with default lifetimes.
func NewCookiePolicy(secure bool) CookiePolicy {
	return CookiePolicy{
		Secure:         secure,
		RefreshMaxAge:  DefaultRefreshTokenMaxAge,
		ActivityMaxAge: DefaultActivityMaxAge,
	}
}

func (p CookiePolicy) cookie(name, value string, maxAge time.Duration, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   p.Secure,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetAuthCookies writes both token cookies. ttl bounds the access token; zero uses the default.
func (p CookiePolicy) SetAuthCookies(w http.ResponseWriter, pair models.TokenPair, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultAccessTokenMaxAge
	}
	refreshMaxAge := p.RefreshMaxAge
	if refreshMaxAge <= 0 {
		refreshMaxAge = DefaultRefreshTokenMaxAge
	}
	http.SetCookie(w, p.cookie(AccessTokenCookie, pair.AccessToken, ttl, true))
	http.SetCookie(w, p.cookie(RefreshTokenCookie, pair.RefreshToken, refreshMaxAge, true))
}

// GetAuthTokens reads the token cookies. ok is false when neither is present.
func GetAuthTokens(r *http.Request) (models.TokenPair, bool) {
	var pair models.TokenPair
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		pair.AccessToken = c.Value
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		pair.RefreshToken = c.Value
	}
	return pair, !pair.IsZero()
}

// ClearAuthCookies expires every auth-related cookie.
func (p CookiePolicy) ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie, SessionStateCookie} {
		c := p.cookie(name, "", 0, true)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
	c := p.cookie(LastActivityCookie, "", 0, false)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// SetLastActivity writes the JS-readable activity timestamp in epoch milliseconds.
func (p CookiePolicy) SetLastActivity(w http.ResponseWriter, at time.Time) {
	maxAge := p.ActivityMaxAge
	if maxAge <= 0 {
		maxAge = DefaultActivityMaxAge
	}
	http.SetCookie(w, p.cookie(LastActivityCookie, strconv.FormatInt(at.UnixMilli(), 10), maxAge, false))
}

// GetLastActivity reads the activity cookie.
func GetLastActivity(r *http.Request) (time.Time, bool) {
	c, err := r.Cookie(LastActivityCookie)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(c.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// SetPreferences writes the JS-readable preference blob as URL-escaped JSON.
func (p CookiePolicy) SetPreferences(w http.ResponseWriter, prefs models.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	http.SetCookie(w, p.cookie(PreferencesCookie, url.QueryEscape(string(raw)), preferencesMaxAge, false))
	return nil
}

// GetPreferences reads the preference blob. Unreadable blobs count as absent.
func GetPreferences(r *http.Request) (models.Preferences, bool) {
	var prefs models.Preferences
	c, err := r.Cookie(PreferencesCookie)
	if err != nil {
		return prefs, false
	}
	raw, err := url.QueryUnescape(c.Value)
	if err != nil {
		return prefs, false
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return prefs, false
	}
	return prefs, true
}

// SetContextID writes the client context cookie.
func (p CookiePolicy) SetContextID(w http.ResponseWriter, id string) {
	http.SetCookie(w, p.cookie(ContextIDCookie, id, contextIDMaxAge, true))
}

// GetContextID reads the client context cookie.
func GetContextID(r *http.Request) string {
	c, err := r.Cookie(ContextIDCookie)
	if err != nil {
		return ""
	}
	return c.Value
}
