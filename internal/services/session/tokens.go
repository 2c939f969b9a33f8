package session

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Source names the slot a token pair was read from.
type Source string

const (
	SourceNone     Source = ""
	SourceCookie   Source = "cookie"
	SourceFallback Source = "fallback"
)

// Tokens applies the redundancy policy over the two token slots: writes go to
// both, reads prefer the cookie and fall back only on a miss. The slots are
// not kept strictly consistent.
type Tokens struct {
	cookies  CookiePolicy
	fallback FallbackStore
}

// NewTokens creates the policy. fallback may be nil, leaving cookies as the only slot.
func NewTokens(cookies CookiePolicy, fallback FallbackStore) *Tokens {
	return &Tokens{cookies: cookies, fallback: fallback}
}

// Cookies returns the cookie policy.
func (t *Tokens) Cookies() CookiePolicy {
	return t.cookies
}

// Write stores the pair in both slots. w may be nil when no response is at hand;
// the cookie slot is then synced on the next request.
func (t *Tokens) Write(ctx context.Context, w http.ResponseWriter, contextID string, pair models.TokenPair, ttl time.Duration) {
	if w != nil {
		t.cookies.SetAuthCookies(w, pair, ttl)
	}
	if t.fallback != nil {
		if err := t.fallback.Save(ctx, contextID, pair); err != nil {
			log.Warn().Err(err).Str("sid", contextID).Msg("Failed to write fallback tokens")
		}
	}
}

// Read returns the pair from the cookie slot, or from the fallback when the cookie misses.
func (t *Tokens) Read(ctx context.Context, r *http.Request, contextID string) (models.TokenPair, Source) {
	if r != nil {
		if pair, ok := GetAuthTokens(r); ok && pair.RefreshToken != "" {
			return pair, SourceCookie
		}
	}
	if t.fallback == nil {
		return models.TokenPair{}, SourceNone
	}
	pair, ok, err := t.fallback.Load(ctx, contextID)
	if err != nil {
		log.Warn().Err(err).Str("sid", contextID).Msg("Failed to read fallback tokens")
		return models.TokenPair{}, SourceNone
	}
	if !ok {
		return models.TokenPair{}, SourceNone
	}
	return pair, SourceFallback
}

// Clear empties both slots.
func (t *Tokens) Clear(ctx context.Context, w http.ResponseWriter, contextID string) {
	if w != nil {
		t.cookies.ClearAuthCookies(w)
	}
	if t.fallback != nil {
		if err := t.fallback.Clear(ctx, contextID); err != nil {
			log.Warn().Err(err).Str("sid", contextID).Msg("Failed to clear fallback tokens")
		}
	}
}
