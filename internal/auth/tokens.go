// Package auth identifies the caller of a request. Callers log in with
// email and password and receive an HS256 token whose subject is their user
// id, sent back either as a bearer header or as the session cookie. Logout
// denylists the token's jti until it would have expired.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrEmptySecret  = errors.New("auth: empty jwt secret")
)

// Caller is the authenticated identity attached to a request.
type Caller struct {
	UserID string

	// TokenID and ExpiresAt describe the token the caller presented; logout
	// uses them to denylist it.
	TokenID   string
	ExpiresAt time.Time
}

// Tokens issues and parses bearer tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time

	revoked Revocations
	log     *slog.Logger
}

// NewTokens returns a Tokens signing with secret.
func NewTokens(secret, issuer string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Tokens{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithRevocations makes Authenticate consult rv and enables Revoke. A
// denylist that cannot be read is logged and skipped.
func (t *Tokens) WithRevocations(rv Revocations, log *slog.Logger) *Tokens {
	if log == nil {
		log = slog.Default()
	}
	t.revoked = rv
	t.log = log
	return t
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue returns a signed token for userID.
func (t *Tokens) Issue(userID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates raw and returns its caller. Any failure is ErrInvalidToken.
func (t *Tokens) Parse(raw string) (Caller, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		// reject alg:none and asymmetric algorithms
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return Caller{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Caller{}, ErrInvalidToken
	}
	c := Caller{UserID: claims.Subject, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		c.ExpiresAt = claims.ExpiresAt.Time
	}
	return c, nil
}

// Authenticate parses raw and rejects tokens revoked by logout.
func (t *Tokens) Authenticate(ctx context.Context, raw string) (Caller, error) {
	c, err := t.Parse(raw)
	if err != nil {
		return Caller{}, err
	}
	if t.revoked == nil || c.TokenID == "" {
		return c, nil
	}
	revoked, err := t.revoked.Revoked(ctx, c.TokenID)
	if err != nil {
		// fail open, like the login throttle
		t.log.Warn("token denylist unavailable", slog.String("error", err.Error()))
		return c, nil
	}
	if revoked {
		return Caller{}, ErrInvalidToken
	}
	return c, nil
}

// Revoke denylists the token c presented until it expires. Tokens without a
// jti, or a Tokens without a denylist, have nothing to revoke.
func (t *Tokens) Revoke(ctx context.Context, c Caller) error {
	if t.revoked == nil || c.TokenID == "" {
		return nil
	}
	return t.revoked.Revoke(ctx, c.TokenID, c.ExpiresAt)
}
