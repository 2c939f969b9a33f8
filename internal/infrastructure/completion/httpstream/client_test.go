package httpstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
)

func readAll(t *testing.T, r completion.StreamReader) string {
	t.Helper()
	var out []byte
	for {
		data, err := r.Read()
		out = append(out, data...)
		if errors.Is(err, io.EOF) {
			return string(out)
		}
		require.NoError(t, err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)

	_, err = NewClient(&Config{})
	assert.EqualError(t, err, "completion URL is required")
}

func TestClient_StreamsChunkedBody(t *testing.T) {
	questions := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/plain", r.Header.Get("Accept"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body questionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		questions <- body.Question

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{"The stars ", "are aligned ", "in your favour."} {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
	}))
	defer server.Close()

	client, err := NewClient(&Config{URL: server.URL, APIKey: "secret"})
	require.NoError(t, err)
	defer client.Close()

	reader, err := client.Stream(context.Background(), &completion.Request{Question: "Will I travel?"})
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "The stars are aligned in your favour.", readAll(t, reader))
	assert.Equal(t, "Will I travel?", <-questions)
}

func TestClient_RejectedResponses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMessage string
	}{
		{
			name:        "json error field",
			status:      http.StatusUnauthorized,
			contentType: "application/json",
			body:        `{"error":"Authentication required","code":"UNAUTHENTICATED"}`,
			wantMessage: "Authentication required",
		},
		{
			name:        "json message field",
			status:      http.StatusInternalServerError,
			contentType: "application/json",
			body:        `{"message":"The spirits are silent"}`,
			wantMessage: "The spirits are silent",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			contentType: "text/plain",
			body:        "  upstream model overloaded\n",
			wantMessage: "upstream model overloaded",
		},
		{
			name:        "empty body falls back to generic message",
			status:      http.StatusServiceUnavailable,
			contentType: "text/plain",
			body:        "",
			wantMessage: "the oracle could not answer right now",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient(&Config{URL: server.URL})
			require.NoError(t, err)

			reader, err := client.Stream(context.Background(), &completion.Request{Question: "?"})
			require.Error(t, err)
			assert.Nil(t, reader)
			assert.True(t, errors.Is(err, apperrors.ErrBackendRejected))

			domainErr, ok := apperrors.GetDomainError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantMessage, domainErr.Message)
		})
	}
}

func TestClient_StreamConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(&Config{URL: url})
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), &completion.Request{Question: "?"})
	require.Error(t, err)
	assert.False(t, apperrors.IsDomainError(err))
}

func TestClient_Ping(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusMethodNotAllowed)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client, err := NewClient(&Config{URL: server.URL})
	require.NoError(t, err)

	assert.NoError(t, client.Ping(context.Background()))

	status.Store(http.StatusServiceUnavailable)
	assert.Error(t, client.Ping(context.Background()))
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "", errorText(nil))
	assert.Equal(t, "boom", errorText([]byte(`{"error":"boom","message":"ignored"}`)))
	assert.Equal(t, "{not json", errorText([]byte("{not json")))
}
