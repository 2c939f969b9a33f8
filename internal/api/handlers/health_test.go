package handlers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/testutil"
)

func TestHealth(t *testing.T) {
	t.Run("all components healthy", func(t *testing.T) {
		srv := newServer(t)
		srv.cache.On("Ping", mock.Anything).Return(nil)
		srv.docdb.On("Ping", mock.Anything).Return(nil)

		w := testutil.PerformRequest(srv.router, http.MethodGet, "/health", nil, nil)
		testutil.AssertStatusCode(t, http.StatusOK, w)

		var resp dto.HealthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "healthy", resp.Components["completion"])
		// Health checks never open a client context.
		assert.Empty(t, w.Header().Get("X-Session-ID"))
	})

	t.Run("completion outage does not fail health", func(t *testing.T) {
		srv := newServer(t)
		srv.cache.On("Ping", mock.Anything).Return(nil)
		srv.docdb.On("Ping", mock.Anything).Return(nil)
		srv.completion.PingFailsWith(errors.New("connection refused"))

		w := testutil.PerformRequest(srv.router, http.MethodGet, "/health", nil, nil)
		testutil.AssertStatusCode(t, http.StatusOK, w)

		var resp dto.HealthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		assert.Equal(t, "unhealthy", resp.Components["completion"])
	})

	t.Run("database outage", func(t *testing.T) {
		srv := newServer(t)
		srv.cache.On("Ping", mock.Anything).Return(nil)
		srv.docdb.On("Ping", mock.Anything).Return(errors.New("server selection timeout"))

		w := testutil.PerformRequest(srv.router, http.MethodGet, "/health", nil, nil)
		testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)

		var resp dto.HealthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Equal(t, "unhealthy", resp.Components["docdb"])
	})
}

func TestReadyAndLive(t *testing.T) {
	srv := newServer(t)
	srv.cache.On("Ping", mock.Anything).Return(errors.New("redis down"))

	w := testutil.PerformRequest(srv.router, http.MethodGet, "/ready", nil, nil)
	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.JSONEq(t, `{"status":"not ready","reason":"cache unavailable"}`, w.Body.String())

	w = testutil.PerformRequest(srv.router, http.MethodGet, "/live", nil, nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)
}

func TestOracleHealth(t *testing.T) {
	t.Run("available without a session", func(t *testing.T) {
		srv := newServer(t)

		w := srv.browser().do(http.MethodGet, "/api/oracle/health", nil)
		testutil.AssertStatusCode(t, http.StatusOK, w)

		var resp dto.OracleHealthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		assert.Equal(t, "ok", resp.Status)
		assert.True(t, resp.LLM.Configured)
		assert.True(t, resp.LLM.Available)
		assert.Equal(t, "oracle-mini", resp.LLM.Model)
		assert.Empty(t, resp.LLM.MissingVars)
		assert.NotContains(t, w.Body.String(), "sk-test")
	})

	t.Run("backend failing", func(t *testing.T) {
		srv := newServer(t)
		srv.completion.PingFailsWith(errors.New("401 invalid api key"))

		w := srv.browser().do(http.MethodGet, "/api/oracle/health", nil)
		testutil.AssertStatusCode(t, http.StatusInternalServerError, w)

		var resp dto.OracleHealthResponse
		testutil.ParseJSONResponse(t, w, &resp)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "401 invalid api key", resp.Message)
		assert.False(t, resp.LLM.Available)
	})
}
