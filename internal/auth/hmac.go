package auth

import (
	"context"
	"errors"
	"fmt"
	"ht2peer/internal/domain"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	ErrExpiredToken = fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
)

// Claims is the part of a token payload the server relies on.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// TokenVerifier resolves a bearer token to the player it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// tokenClaims accepts "userId" from issuers that do not set "sub".
type tokenClaims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// HMACTokenVerifier validates HS256 tokens. The player id is read from
// "sub", falling back to "userId". Tokens without "exp" never expire.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the verifier clock.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}

func (v *HMACTokenVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	var tc tokenClaims
	_, err := jwt.ParseWithClaims(token, &tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(tc.Subject)
	if subject == "" {
		subject = strings.TrimSpace(tc.UserID)
	}
	if subject == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Subject: subject}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}

// Sign issues a token for subject that expires after ttl. A zero ttl issues
// a token without expiry.
func (v *HMACTokenVerifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
