// Package signedurl issues and verifies short-lived, user-bound URLs.
//
// A signed URL carries its resource in the path and three query parameters:
//
//	/stream/hls/movies/{uuid}/seg0.ts?expires=1700000000&user_id=42&signature=ab12...
//
// The signature is hex(HMAC-SHA256(secret, path + "?" + canonical)) where
// canonical is the sorted, encoded query without the signature itself, so
// changing the path, the user, the expiry or adding a parameter breaks it.
package signedurl

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query parameter names.
const (
	ParamUserID    = "user_id"
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

var (
	ErrMissingSignature = errors.New("signedurl: missing signature")
	ErrInvalidSignature = errors.New("signedurl: invalid signature")
	ErrExpired          = errors.New("signedurl: signature expired")
)

// Issuer builds signed URLs valid for a fixed TTL.
type Issuer struct {
	keys *Keyring
	ttl  time.Duration
	base string
	now  func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithBaseURL makes issued URLs absolute ("https://api.example.com").
func WithBaseURL(base string) IssuerOption {
	return func(i *Issuer) {
		i.base = strings.TrimRight(base, "/")
	}
}

// WithIssuerClock overrides time.Now.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer returns an Issuer signing with keys. ttl must be positive.
func NewIssuer(keys *Keyring, ttl time.Duration, opts ...IssuerOption) *Issuer {
	i := &Issuer{keys: keys, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL reports the validity window of issued URLs.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs escapedPath plus params for userID. params is not modified;
// any user_id, expires or signature entries in it are replaced.
func (i *Issuer) Issue(escapedPath string, params url.Values, userID string) (string, error) {
	if escapedPath == "" || !strings.HasPrefix(escapedPath, "/") {
		return "", fmt.Errorf("signedurl: path %q must be absolute", escapedPath)
	}
	if userID == "" {
		return "", errors.New("signedurl: user id must not be empty")
	}

	q := make(url.Values, len(params)+2)
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	q.Del(ParamSignature)
	q.Set(ParamUserID, userID)
	q.Set(ParamExpires, strconv.FormatInt(i.now().Add(i.ttl).Unix(), 10))

	canonical := q.Encode()
	sig := computeSig(i.keys.current(), escapedPath, canonical)

	return i.base + escapedPath + "?" + canonical + "&" + ParamSignature + "=" + sig, nil
}

// Claims is what a verified URL asserts.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
	Params    url.Values
}

// Verifier checks URLs produced by an Issuer sharing the same Keyring.
type Verifier struct {
	keys *Keyring
	now  func() time.Time
}

// NewVerifier returns a Verifier; now may be nil for time.Now.
func NewVerifier(keys *Keyring, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{keys: keys, now: now}
}

// Verify checks the signature of u, then its expiry. Only the path and
// query of u take part; scheme and host are ignored.
func (v *Verifier) Verify(u *url.URL) (Claims, error) {
	q := u.Query()
	sig := q.Get(ParamSignature)
	if sig == "" {
		return Claims{}, ErrMissingSignature
	}
	if len(q[ParamSignature]) != 1 {
		return Claims{}, ErrInvalidSignature
	}
	q.Del(ParamSignature)

	expected := computeSig(v.keys.current(), u.EscapedPath(), q.Encode())
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return Claims{}, ErrInvalidSignature
	}

	exp, err := strconv.ParseInt(q.Get(ParamExpires), 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}
	expiresAt := time.Unix(exp, 0)
	if !v.now().Before(expiresAt) {
		return Claims{}, ErrExpired
	}

	return Claims{UserID: q.Get(ParamUserID), ExpiresAt: expiresAt, Params: q}, nil
}

func computeSig(secret []byte, escapedPath, canonical string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(escapedPath))
	mac.Write([]byte{'?'})
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}
