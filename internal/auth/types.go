package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes carried by operator tokens
const (
	ScopeRead     = "read"
	ScopeOperator = "operator"
)

// DefaultTokenDuration is the lifetime of tokens minted by the admin tool
const DefaultTokenDuration = 24 * time.Hour

// Claims represents the JWT claims of an operator token
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// AllowsReset reports whether the token may mutate stream state
func (c *Claims) AllowsReset() bool {
	return c.Scope == ScopeOperator
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
)
