// Package auth issues and verifies the bearer credentials presented by chat
// clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtime-chat/internal/models"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	// ErrMalformedSubject means the token verified but its subject is not a user id.
	ErrMalformedSubject = errors.New("malformed token subject")
)

// TokenManager signs and parses HMAC JWTs whose subject is the user id.
type TokenManager struct {
	secret []byte
	method jwt.SigningMethod
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager builds a TokenManager for an HMAC algorithm such as HS256.
func NewTokenManager(secret, algorithm string, expiry time.Duration) (*TokenManager, error) {
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported token algorithm %q", algorithm)
	}
	return &TokenManager{secret: []byte(secret), method: method, expiry: expiry, now: time.Now}, nil
}

// Issue returns a signed access token for userID.
func (m *TokenManager) Issue(userID int) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
}

// ParseSubject verifies the token and returns the user id it was issued for.
func (m *TokenManager) ParseSubject(token string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{m.method.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedSubject, claims.Subject)
	}
	return userID, nil
}

// UserLookup loads users by id.
type UserLookup interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
}

// Verifier resolves bearer tokens to existing users.
type Verifier struct {
	tokens *TokenManager
	users  UserLookup
}

func NewVerifier(tokens *TokenManager, users UserLookup) *Verifier {
	return &Verifier{tokens: tokens, users: users}
}

// ResolveUser returns the user the token belongs to. Errors from the user
// lookup (such as a not-found sentinel) are returned unchanged.
func (v *Verifier) ResolveUser(ctx context.Context, token string) (models.User, error) {
	userID, err := v.tokens.ParseSubject(token)
	if err != nil {
		return models.User{}, err
	}
	return v.users.GetUser(ctx, userID)
}
