// Package auth verifies the bearer tokens presented at connection
// establishment. The relay treats verification as an opaque check: any
// Authenticator implementation can be injected.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication failure reasons, surfaced verbatim to rejected clients.
var (
	ErrNoToken      = errors.New("Authentication error: No token provided")
	ErrInvalidToken = errors.New("Authentication error: Invalid token")
)

// Authenticator verifies a bearer token and returns the user identity
// it was issued to.
type Authenticator interface {
	Verify(token string) (userID string, err error)
}

// Claims is the JWT payload carried by issued tokens.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// JWTAuthenticator issues and verifies HS256 tokens.
type JWTAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTAuthenticator creates an authenticator with a 24h token lifetime.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), ttl: 24 * time.Hour}
}

// Issue creates a signed token for userID.
func (a *JWTAuthenticator) Issue(userID string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify checks the signature and expiry of token and returns the
// embedded user identity.
func (a *JWTAuthenticator) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
