package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/esoteric-oracle/oracle-service/internal/domain/errors"
	"github.com/esoteric-oracle/oracle-service/internal/domain/models"
)

// accessClaims are the access token claims the service relies on.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Restore rebuilds the session from a persisted token pair, e.g. after a
// restart or when a client context is first seen. Tokens are never trusted
// unverified: with a JWT secret the signature is checked locally, otherwise
// the backend vouches for them. Expired access tokens are refreshed.
func (c *Client) Restore(ctx context.Context, pair models.TokenPair) (*models.Session, error) {
	if pair.IsZero() {
		return nil, apperrors.NewUnauthenticatedError("no stored session")
	}
	epoch := c.store.Epoch()

	if pair.AccessToken != "" {
		claims, err := c.parseAccessToken(pair.AccessToken)
		if err == nil && claims.ExpiresAt != nil && c.now().Before(claims.ExpiresAt.Time) {
			s, err := c.sessionFromClaims(ctx, pair, claims)
			if err == nil {
				return c.restored(ctx, epoch, s)
			}
			if pair.RefreshToken == "" {
				return nil, err
			}
		}
	}

	if pair.RefreshToken == "" {
		return nil, apperrors.NewUnauthenticatedError("stored session has expired")
	}

	var s *models.Session
	err := c.call(ctx, "session restore", func(ctx context.Context) error {
		var err error
		s, err = c.backend.RefreshSession(ctx, pair.RefreshToken)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.restored(ctx, epoch, s)
}

func (c *Client) restored(ctx context.Context, epoch uint64, s *models.Session) (*models.Session, error) {
	if !c.commitSince(ctx, epoch, s) {
		return nil, apperrors.NewUnauthenticatedError("signed out during restore")
	}
	return s, nil
}

// parseAccessToken reads the claims. Without a secret the signature is not
// checked here; sessionFromClaims then asks the backend instead.
func (c *Client) parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if len(c.jwtSecret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("malformed access token: %w", err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	return claims, nil
}

func (c *Client) sessionFromClaims(ctx context.Context, pair models.TokenPair, claims *accessClaims) (*models.Session, error) {
	s := &models.Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    claims.ExpiresAt.Unix(),
		User:         models.UserRef{ID: claims.Subject, Email: claims.Email},
	}
	if len(c.jwtSecret) > 0 {
		return s, nil
	}

	var user *models.UserRef
	err := c.call(ctx, "session restore", func(ctx context.Context) error {
		var err error
		user, err = c.backend.GetUser(ctx, pair.AccessToken)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.User = *user
	return s, nil
}
