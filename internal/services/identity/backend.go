// Package identity wraps the identity backend for one client context and keeps
// that context's session store in step with it.
package identity

import (
	"context"
	"fmt"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// Backend is the identity/session backend. Implementations publish an AuthEvent
// tagged with the calling origin for each operation that changes the session.
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error)
	GetUser(ctx context.Context, accessToken string) (*models.UserRef, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdateUser(ctx context.Context, accessToken, password string) (*models.UserRef, error)
	VerifyEmail(ctx context.Context, tokenHash, verifyType string) (*models.Session, error)
	OnAuthStateChange(origin string, fn func(models.AuthEvent)) (unsubscribe func())
}

// SignUpResult describes a created account. Session is set only when the
// backend confirms email addresses automatically.
type SignUpResult struct {
	User    models.UserRef
	Session *models.Session
}

// BackendError is a rejection reported by the identity backend.
type BackendError struct {
	Status  int
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity backend %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity backend %d: %s", e.Status, e.Message)
}

type originKey struct{}

// WithOrigin tags ctx with the client context that issued a backend call.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin.
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}
