package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// represents JWT claims for a platform user
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
