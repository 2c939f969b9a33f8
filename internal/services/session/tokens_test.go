package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	rediscache "github.com/esoteric-oracle/oracle-service/internal/infrastructure/cache/redis"
	"github.com/esoteric-oracle/oracle-service/internal/pkg/encryption"
	"github.com/esoteric-oracle/oracle-service/internal/services/session"
)

func setupFallback(t *testing.T) (*miniredis.Miniredis, session.FallbackStore) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client, err := rediscache.NewClient(rediscache.Config{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	enc, err := encryption.NewAESEncryptor(key)
	require.NoError(t, err)

	store, err := session.NewFallbackStore(&session.FallbackConfig{CacheClient: client, Encryptor: enc})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, store
}

func TestNewFallbackStore_RequiresDependencies(t *testing.T) {
	_, err := session.NewFallbackStore(nil)
	assert.EqualError(t, err, "config is required")

	_, err = session.NewFallbackStore(&session.FallbackConfig{})
	assert.EqualError(t, err, "cache client is required")
}

func TestFallbackStore_SaveLoadClear(t *testing.T) {
	mr, store := setupFallback(t)
	ctx := context.Background()
	pair := models.TokenPair{AccessToken: "a", RefreshToken: "r"}

	require.NoError(t, store.Save(ctx, "sid-1", pair))

	raw, err := mr.Get("oracle:tokens:sid-1")
	require.NoError(t, err)
	assert.NotContains(t, raw, `"refresh_token"`)

	got, ok, err := store.Load(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pair, got)

	require.NoError(t, store.Clear(ctx, "sid-1"))
	_, ok, err = store.Load(ctx, "sid-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFallbackStore_CorruptEntryIsDropped(t *testing.T) {
	mr, store := setupFallback(t)
	require.NoError(t, mr.Set("oracle:tokens:sid-1", "garbage"))

	_, ok, err := store.Load(context.Background(), "sid-1")

	assert.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("oracle:tokens:sid-1"))
}

func TestTokens_ReadPrefersCookieAndFallsBackOnMiss(t *testing.T) {
	_, fallback := setupFallback(t)
	tokens := session.NewTokens(session.NewCookiePolicy(false), fallback)
	ctx := context.Background()

	stored := models.TokenPair{AccessToken: "stored-a", RefreshToken: "stored-r"}
	tokens.Write(ctx, nil, "sid-1", stored, 0)

	// Cookie slot present: the fallback is not consulted.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.AccessTokenCookie, Value: "cookie-a"})
	req.AddCookie(&http.Cookie{Name: session.RefreshTokenCookie, Value: "cookie-r"})
	pair, source := tokens.Read(ctx, req, "sid-1")
	assert.Equal(t, session.SourceCookie, source)
	assert.Equal(t, "cookie-a", pair.AccessToken)

	// Cookie slot blocked: the fallback answers.
	pair, source = tokens.Read(ctx, httptest.NewRequest(http.MethodGet, "/", nil), "sid-1")
	assert.Equal(t, session.SourceFallback, source)
	assert.Equal(t, stored, pair)
}

func TestTokens_WriteAndClearBothSlots(t *testing.T) {
	_, fallback := setupFallback(t)
	tokens := session.NewTokens(session.NewCookiePolicy(false), fallback)
	ctx := context.Background()
	pair := models.TokenPair{AccessToken: "a", RefreshToken: "r"}

	w := httptest.NewRecorder()
	tokens.Write(ctx, w, "sid-1", pair, 0)
	assert.NotNil(t, findCookie(w, session.AccessTokenCookie))

	w = httptest.NewRecorder()
	tokens.Clear(ctx, w, "sid-1")
	assert.Equal(t, -1, findCookie(w, session.RefreshTokenCookie).MaxAge)

	_, source := tokens.Read(ctx, httptest.NewRequest(http.MethodGet, "/", nil), "sid-1")
	assert.Equal(t, session.SourceNone, source)
}
