package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/esoteric-oracle/oracle-service/internal/api/dto"
	"github.com/esoteric-oracle/oracle-service/internal/api/middleware"
	"github.com/esoteric-oracle/oracle-service/internal/api/stream"
	"github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/oracle"
)

// QueryIDHeader carries the ID of the streamed query.
const QueryIDHeader = "X-Query-ID"

// OracleHandler streams answers from the oracle.
type OracleHandler struct {
	now func() time.Time
}

// NewOracleHandler creates a new OracleHandler.
func NewOracleHandler(now func() time.Time) *OracleHandler {
	if now == nil {
		now = time.Now
	}
	return &OracleHandler{now: now}
}

// queryEvent is one observer callback handed to the request goroutine.
type queryEvent struct {
	status models.QueryStatus
	text   string
	err    error
}

// Ask handles POST /api/oracle
// @Summary Ask the oracle
// @Description Streams the answer as chunked text/plain. The final status and any error arrive in the X-Oracle-Status and X-Oracle-Error trailers. Failures before the first byte are returned as JSON.
// @Tags Oracle
// @Accept json
// @Produce plain
// @Param request body dto.AskRequest true "Question"
// @Success 200 {string} string "Answer text"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse "Completion backend rejected the question"
// @Router /api/oracle [post]
func (h *OracleHandler) Ask(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}
	if _, ok := signedIn(c, cc); !ok {
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	logger := middleware.GetRequestLogger(c)
	if err := cc.Monitor.RecordActivity(c.Request.Context(), h.now()); err != nil {
		logger.Warn().Err(err).Msg("failed to record activity")
	}
	cc.SyncCookies(c.Writer, c.Request)

	events := make(chan queryEvent, 32)
	left := make(chan struct{})
	defer close(left)
	send := func(ev queryEvent) {
		select {
		case events <- ev:
		case <-left:
		}
	}

	q := cc.Oracle.Ask(req.Question, oracle.ObserverFuncs{
		Status: func(_ *oracle.Query, st models.QueryStatus) { send(queryEvent{status: st}) },
		Text:   func(_ *oracle.Query, increment, _ string) { send(queryEvent{text: increment}) },
		Error:  func(_ *oracle.Query, err error) { send(queryEvent{err: err}) },
	})
	c.Header(QueryIDHeader, q.ID)

	rs := &responseStream{c: c}
	for {
		select {
		case <-c.Request.Context().Done():
			q.Cancel()
			logger.Info().Str("query_id", q.ID).Msg("client disconnected, query cancelled")
			return
		case ev := <-events:
			if !rs.handle(ev) {
				q.Cancel()
				return
			}
		case <-q.Done():
			// Every callback ran before Done closed.
			for drained := false; !drained; {
				select {
				case ev := <-events:
					if !rs.handle(ev) {
						return
					}
				default:
					drained = true
				}
			}
			rs.finish(q)
			logger.Info().Str("query_id", q.ID).Str("status", string(q.Status())).Msg("oracle query finished")
			return
		}
	}
}

// responseStream turns query events into the HTTP response.
type responseStream struct {
	c       *gin.Context
	w       *stream.Writer
	lastErr error
}

// start commits the 200 response. It reports false when streaming is impossible.
func (rs *responseStream) start() bool {
	if rs.w != nil {
		return true
	}
	w, err := stream.NewWriter(rs.c.Writer)
	if err != nil {
		middleware.HandleError(rs.c, errors.NewInternalError("streaming not supported", err))
		return false
	}
	w.Start()
	rs.w = w
	return true
}

func (rs *responseStream) handle(ev queryEvent) bool {
	switch {
	case ev.err != nil:
		rs.lastErr = ev.err
	case ev.text != "":
		if !rs.start() {
			return false
		}
		if err := rs.w.WriteChunk(ev.text); err != nil {
			logger := middleware.GetRequestLogger(rs.c)
			logger.Debug().Err(err).Msg("stream write failed")
			return false
		}
	case ev.status == models.QueryStreaming:
		return rs.start()
	}
	return true
}

func (rs *responseStream) finish(q *oracle.Query) {
	status := q.Status()
	if rs.w == nil && status == models.QueryFailed {
		middleware.HandleError(rs.c, q.Err())
		return
	}
	if !rs.start() {
		return
	}

	err := rs.lastErr
	if status == models.QueryFailed {
		err = q.Err()
	}
	rs.w.Finish(string(status), errorMessage(err))
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if de, ok := errors.GetDomainError(err); ok {
		return de.Message
	}
	return err.Error()
}

// Cancel handles DELETE /api/oracle
// @Summary Cancel the active question
// @Tags Oracle
// @Produce json
// @Success 200 {object} dto.CancelResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/oracle [delete]
func (h *OracleHandler) Cancel(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	q := cc.Oracle.Current()
	resp := dto.CancelResponse{Cancelled: cc.Oracle.Cancel()}
	if resp.Cancelled && q != nil {
		resp.QueryID = q.ID
	}
	c.JSON(http.StatusOK, resp)
}

// Current handles GET /api/oracle
// @Summary Latest question
// @Description Returns the most recent query of this browser, if any
// @Tags Oracle
// @Produce json
// @Success 200 {object} oracle.Snapshot
// @Success 204 "No query yet"
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/oracle [get]
func (h *OracleHandler) Current(c *gin.Context) {
	cc, ok := clientContext(c)
	if !ok {
		return
	}

	q := cc.Oracle.Current()
	if q == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, q.Snapshot())
}
