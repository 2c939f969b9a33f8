package handlers_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/handlers"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/api/stream"
	domainerrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/testutil"
)

func TestAsk_RequiresSession(t *testing.T) {
	srv := newServer(t)

	w := srv.browser().do(http.MethodPost, "/api/oracle", map[string]interface{}{"question": "Will it rain?"})
	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	assert.JSONEq(t, `{"error":"Authentication required","code":"UNAUTHENTICATED"}`, w.Body.String())
	assert.Empty(t, srv.completion.Asked())
}

func TestAsk_StreamsAnswer(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)

	var saved *models.OracleInteraction
	srv.interactions.On("Create", mock.Anything, mock.AnythingOfType("*models.OracleInteraction")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.OracleInteraction) }).
		Return(nil).Once()

	w := b.do(http.MethodPost, "/api/oracle", map[string]interface{}{"question": "  Will my garden bloom?  "})
	testutil.AssertStatusCode(t, http.StatusOK, w)

	assert.Equal(t, "The stars say yes.", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-transform", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get(handlers.QueryIDHeader))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	trailer := w.Result().Trailer
	assert.Equal(t, string(models.QueryCompleted), trailer.Get(stream.TrailerStatus))
	assert.Empty(t, trailer.Get(stream.TrailerError))

	assert.Equal(t, []string{"Will my garden bloom?"}, srv.completion.Asked())
	require.NotNil(t, saved)
	assert.Equal(t, testutil.TestUserID, saved.UserID)
	assert.Equal(t, "The stars say yes.", saved.Response)

	var snap struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Text   string `json:"text"`
	}
	w = b.do(http.MethodGet, "/api/oracle", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	testutil.ParseJSONResponse(t, w, &snap)
	assert.Equal(t, "completed", snap.Status)
	assert.Equal(t, "The stars say yes.", snap.Text)
}

func TestAsk_SaveFailureKeepsAnswer(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)
	srv.interactions.On("Create", mock.Anything, mock.Anything).Return(errors.New("write concern timeout"))

	w := b.do(http.MethodPost, "/api/oracle", map[string]interface{}{"question": "Is today lucky?"})
	testutil.AssertStatusCode(t, http.StatusOK, w)

	assert.Equal(t, "The stars say yes.", w.Body.String())
	trailer := w.Result().Trailer
	assert.Equal(t, string(models.QueryCompleted), trailer.Get(stream.TrailerStatus))
	assert.NotEmpty(t, trailer.Get(stream.TrailerError))
	assert.NotContains(t, trailer.Get(stream.TrailerError), "\n")
}

func TestAsk_ValidationFailsBeforeStreaming(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)

	w := b.do(http.MethodPost, "/api/oracle", map[string]interface{}{"question": strings.Repeat("why ", 40)})
	testutil.AssertStatusCode(t, http.StatusBadRequest, w)

	var resp middleware.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeValidation, resp.Code)
	assert.Equal(t, "question is too long", resp.Message)
	assert.Empty(t, srv.completion.Asked())
}

func TestAsk_MissingQuestion(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)

	w := b.do(http.MethodPost, "/api/oracle", map[string]interface{}{})
	testutil.AssertStatusCode(t, http.StatusBadRequest, w)
}

func TestAsk_BackendUnreachable(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)
	srv.completion.FailWith(errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"))

	w := b.do(http.MethodPost, "/api/oracle", map[string]interface{}{"question": "Will it rain?"})
	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)

	var resp middleware.ErrorResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.Equal(t, domainerrors.ErrCodeConnectionFailed, resp.Code)
}

func TestCancel_WithoutActiveQuery(t *testing.T) {
	srv := newServer(t)
	b := srv.browser()
	b.signIn(t)

	w := b.do(http.MethodGet, "/api/oracle", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = b.do(http.MethodDelete, "/api/oracle", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)

	var resp dto.CancelResponse
	testutil.ParseJSONResponse(t, w, &resp)
	assert.False(t, resp.Cancelled)
	assert.Empty(t, resp.QueryID)
}
