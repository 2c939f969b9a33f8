// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// LoginRequest represents the request body for signing in.
type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// SignupRequest represents the request body for registering.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// ResetPasswordRequest asks for a password reset email.
type ResetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// UpdatePasswordRequest sets a new password for the signed-in user.
type UpdatePasswordRequest struct {
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// CallbackQuery holds the parameters of an email link.
type CallbackQuery struct {
	TokenHash string `form:"token_hash" binding:"required"`
	Type      string `form:"type" binding:"required,oneof=signup email recovery invite magiclink email_change"`
	Next      string `form:"next"`
}

// AskRequest represents the request body for asking the oracle.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// FavoriteRequest marks or unmarks an interaction as favorite.
type FavoriteRequest struct {
	Favorite *bool `json:"favorite" binding:"required"`
}

// ListInteractionsQuery holds the history filters.
type ListInteractionsQuery struct {
	Search    string `form:"search" binding:"max=200"`
	Favorites bool   `form:"favorites"`
}

// PreferencesRequest replaces the preference blob.
type PreferencesRequest struct {
	Theme      string `json:"theme" binding:"omitempty,oneof=light dark system"`
	RememberMe bool   `json:"rememberMe"`
	Language   string `json:"language" binding:"omitempty,max=16"`
}
