package dto

import (
	"time"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/lifecycle"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse represents the signed-in user.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// NoticeResponse represents a pending lifecycle notice.
type NoticeResponse struct {
	Kind             string    `json:"kind"`
	Reason           string    `json:"reason,omitempty"`
	RemainingSeconds int64     `json:"remainingSeconds,omitempty"`
	At               time.Time `json:"at"`
}

// SessionResponse describes the session state of a client context.
type SessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *UserResponse   `json:"user,omitempty"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
	Inactivity    string          `json:"inactivity"`
	ExpiryWarning bool            `json:"expiryWarning"`
	LastActivity  *time.Time      `json:"lastActivity,omitempty"`
	Notice        *NoticeResponse `json:"notice,omitempty"`
	PendingReason string          `json:"pendingReason,omitempty"`
}

// InteractionResponse represents a saved question and answer.
type InteractionResponse struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
	IsFavorite bool      `json:"isFavorite"`
}

// InteractionsResponse lists interactions, newest first.
type InteractionsResponse struct {
	Interactions []InteractionResponse `json:"interactions"`
	Total        int                   `json:"total"`
}

// CancelResponse reports whether an active query was cancelled.
type CancelResponse struct {
	Cancelled bool   `json:"cancelled"`
	QueryID   string `json:"queryId,omitempty"`
}

// CompletionStatus describes the completion backend configuration. The API
// key is never included.
type CompletionStatus struct {
	Configured  bool     `json:"configured"`
	Available   bool     `json:"available"`
	Type        string   `json:"type"`
	APIBase     string   `json:"apiBase,omitempty"`
	Model       string   `json:"model,omitempty"`
	MissingVars []string `json:"missingVars"`
}

// OracleHealthResponse reports whether the completion backend can answer.
type OracleHealthResponse struct {
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	LLM       CompletionStatus `json:"llm"`
	Timestamp time.Time        `json:"timestamp"`
}

// PageResponse describes what a screen should render.
type PageResponse struct {
	Screen        string              `json:"screen"`
	User          *UserResponse       `json:"user,omitempty"`
	RedirectTo    string              `json:"redirectTo,omitempty"`
	LogoutReason  string              `json:"logoutReason,omitempty"`
	LogoutMessage string              `json:"logoutMessage,omitempty"`
	Preferences   *models.Preferences `json:"preferences,omitempty"`
}

// NewUserResponse converts a session user.
func NewUserResponse(s *models.Session) *UserResponse {
	if s == nil {
		return nil
	}
	return &UserResponse{ID: s.User.ID, Email: s.User.Email}
}

// NewNoticeResponse converts a lifecycle notice.
func NewNoticeResponse(n *lifecycle.Notice) *NoticeResponse {
	if n == nil {
		return nil
	}
	return &NoticeResponse{
		Kind:             string(n.Kind),
		Reason:           string(n.Reason),
		RemainingSeconds: int64(n.Remaining.Seconds()),
		At:               n.At,
	}
}

// NewInteractionResponse converts a stored interaction.
func NewInteractionResponse(it models.OracleInteraction) InteractionResponse {
	return InteractionResponse{
		ID:         it.ID,
		Question:   it.Question,
		Response:   it.Response,
		CreatedAt:  it.CreatedAt,
		IsFavorite: it.IsFavorite,
	}
}
