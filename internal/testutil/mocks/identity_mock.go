// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
	"github.com/esoteric-oracle/oracle-service/internal/services/identity"
)

// MockIdentityBackend is a mock implementation of identity.Backend.
// Subscriptions go to a real in-process bus so tests can push events.
type MockIdentityBackend struct {
	mock.Mock
	Bus *identity.Bus
}

// NewMockIdentityBackend creates a mock backend with an in-process bus.
func NewMockIdentityBackend() *MockIdentityBackend {
	return &MockIdentityBackend{Bus: identity.NewBus(nil, nil)}
}

// SignInWithPassword mocks the password grant.
func (m *MockIdentityBackend) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

// SignUp mocks account creation.
func (m *MockIdentityBackend) SignUp(ctx context.Context, email, password string) (*identity.SignUpResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.SignUpResult), args.Error(1)
}

// SignOut mocks revocation.
func (m *MockIdentityBackend) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

// RefreshSession mocks the refresh grant.
func (m *MockIdentityBackend) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

// GetUser mocks user lookup.
func (m *MockIdentityBackend) GetUser(ctx context.Context, accessToken string) (*models.UserRef, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRef), args.Error(1)
}

// ResetPasswordForEmail mocks the recovery email.
func (m *MockIdentityBackend) ResetPasswordForEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// UpdateUser mocks the password change.
func (m *MockIdentityBackend) UpdateUser(ctx context.Context, accessToken, password string) (*models.UserRef, error) {
	args := m.Called(ctx, accessToken, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserRef), args.Error(1)
}

// VerifyEmail mocks the confirmation exchange.
func (m *MockIdentityBackend) VerifyEmail(ctx context.Context, tokenHash, verifyType string) (*models.Session, error) {
	args := m.Called(ctx, tokenHash, verifyType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

// OnAuthStateChange subscribes to the mock's bus.
func (m *MockIdentityBackend) OnAuthStateChange(origin string, fn func(models.AuthEvent)) func() {
	return m.Bus.Subscribe(origin, fn)
}
