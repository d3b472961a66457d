// Package auth verifies the bearer tokens spec.md §6 treats as opaque:
// a JWT whose payload yields {userId, role} once verified against a
// shared secret. Adapted from cloudvault's internal/middleware.Auth and
// tradeengine's internal/auth.Service.VerifyToken — the same
// parse-with-claims call, generalized to this platform's claim shape
// and moved out of the gin-coupled middleware into a plain verifier the
// HTTP edge (pkg/httpx) depends on through an interface.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cognitohub/platform/pkg/httpx"
)

// Claims is this platform's JWT payload, per spec.md §6.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier checks tokens against a shared HMAC secret. It implements
// httpx.TokenVerifier.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString, returning the caller's
// identity on success.
func (v *Verifier) Verify(tokenString string) (httpx.Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return httpx.Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return httpx.Claims{}, ErrInvalidToken
	}
	return httpx.Claims{UserID: claims.UserID, Role: claims.Role}, nil
}

// Issue mints a signed token for the given identity. Used by tests and
// by the service-to-service event ingress (spec.md §6) to mint
// short-lived internal tokens.
func (v *Verifier) Issue(userID, role string, claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: userID, Role: role, RegisteredClaims: claims})
	return token.SignedString(v.secret)
}
