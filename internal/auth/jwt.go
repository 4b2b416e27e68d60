package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the token issuer name set on minted tokens.
const Issuer = "spendiq"

// MinSecretLength is the shortest HS256 secret accepted.
const MinSecretLength = 16

// Verifier resolves a bearer token to the caller's user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// HMACVerifier verifies HS256 tokens signed with a shared secret.
// The subject claim carries the user id.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given secret.
func NewHMACVerifier(secret string) (*HMACVerifier, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("NewHMACVerifier: secret must be at least %d bytes", MinSecretLength)
	}
	return &HMACVerifier{secret: []byte(secret)}, nil
}

// Verify implements Verifier. Every failure wraps domain.ErrUnauthenticated.
func (v *HMACVerifier) Verify(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// TokenIssuer mints HS256 tokens. It is used by the CLI and for local development.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates an issuer for the given secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("NewTokenIssuer: secret must be at least %d bytes", MinSecretLength)
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// Issue returns a signed token for userID that expires after ttl.
func (i *TokenIssuer) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("Issue: user ID is required")
	}
	if ttl <= 0 {
		return "", errors.New("Issue: ttl must be positive")
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    Issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("Issue: signing token: %w", err)
	}
	return signed, nil
}

var _ Verifier = (*HMACVerifier)(nil)
