// Package models contains domain models for the Esoteric Oracle service.
package models

import "time"

// UserRef holds the identity attributes the screens need.
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated grant issued by the identity backend.
// A Session is never patched; a refresh produces a new value.
type Session struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    int64   `json:"expires_at"` // epoch seconds
	User         UserRef `json:"user"`
}

// ExpiryTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiryTime() time.Time {
	return time.Unix(s.ExpiresAt, 0).UTC()
}

// Remaining returns how long the access token stays valid after now.
// The result is negative once the session has expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiryTime().Sub(now)
}

// IsExpired checks if the access token has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiryTime())
}

// Tokens returns the token pair carried by the session.
func (s *Session) Tokens() TokenPair {
	return TokenPair{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
}

// TokenPair is the persisted form of a session.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IsZero reports whether both tokens are empty.
func (p TokenPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// AuthEventType identifies a change published by the identity backend.
type AuthEventType string

const (
	AuthEventSignedIn       AuthEventType = "SIGNED_IN"
	AuthEventSignedOut      AuthEventType = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventType = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventType = "USER_UPDATED"
)

// AuthEvent is a single auth state change. Session is nil for SignedOut.
type AuthEvent struct {
	Type    AuthEventType `json:"event"`
	Session *Session      `json:"session,omitempty"`
	At      time.Time     `json:"at"`
}

// LogoutReason tells the entry screen why the user was signed out.
type LogoutReason string

const (
	LogoutReasonExpired   LogoutReason = "expired"
	LogoutReasonTimeout   LogoutReason = "timeout"
	LogoutReasonSignedOut LogoutReason = "signed_out"
)

// Preferences is the JS-readable preference blob.
type Preferences struct {
	Theme      string `json:"theme,omitempty"`
	RememberMe bool   `json:"rememberMe"`
	Language   string `json:"language,omitempty"`
}
