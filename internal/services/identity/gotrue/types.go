package gotrue

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
)

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Identities []json.RawMessage `json:"identities"`
}

func (u userResponse) toRef() models.UserRef {
	return models.UserRef{ID: u.ID, Email: u.Email}
}

// toSession fills in expires_at from expires_in when the backend omits it.
func (r sessionResponse) toSession(now time.Time) (*models.Session, error) {
	if r.AccessToken == "" || r.RefreshToken == "" {
		return nil, fmt.Errorf("identity backend returned an incomplete session")
	}
	expiresAt := r.ExpiresAt
	if expiresAt == 0 {
		ttl := r.ExpiresIn
		if ttl == 0 {
			ttl = 3600
		}
		expiresAt = now.Add(time.Duration(ttl) * time.Second).Unix()
	}
	return &models.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         r.User.toRef(),
	}, nil
}

// errorResponse covers both error shapes GoTrue has used:
// {"error","error_description"} and {"code","error_code","msg"}.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func parseError(status int, body []byte) error {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &identity.BackendError{Status: status, Message: msg}
	}

	code := e.ErrorCode
	if code == "" {
		code = e.Error
	}
	msg := firstNonEmpty(e.Msg, e.ErrorDescription, e.Message, e.Error, http.StatusText(status))
	return &identity.BackendError{Status: status, Code: code, Message: msg}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
