// Package auth verifies handshake tokens issued by the external auth
// service. Verification is stateless: the token carries the identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every rejection reason (missing, malformed, expired,
// bad signature). Callers treat all of them as an authentication failure.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the verified subject of a token.
type Identity struct {
	UserID   string
	Username string
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates token, returning the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Subject, Username: c.Username}, nil
}

// Sign mints a token for id, valid for ttl. Used by local tooling and tests;
// production tokens come from the auth service with the same secret.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := &claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
