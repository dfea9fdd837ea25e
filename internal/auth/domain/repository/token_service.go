package repository

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and checks session tokens.
type TokenService interface {
	GenerateToken(ctx context.Context, userID, email, provider string) (token string, expiresAt time.Time, err error)
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the session token claims.
type Claims struct {
	UserID   string `json:"userID"`
	Email    string `json:"email"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// IdentityClaims are the claims of an ID token issued by a federated provider.
type IdentityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
