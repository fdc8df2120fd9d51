package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"hls-gateway/internal/assets"
	"hls-gateway/internal/auth"
	"hls-gateway/internal/platform/metrics"
	"hls-gateway/internal/signedurl"
)

// Rejection reasons exported on hls_access_rejections_total.
const (
	reasonSignature       = "signature"
	reasonExpired         = "expired"
	reasonUserMismatch    = "user_mismatch"
	reasonUnauthenticated = "unauthenticated"
)

// signedRequest is the output of the signature stage.
type signedRequest struct {
	claims signedurl.Claims
}

// boundRequest is a signed request whose user matches the caller.
type boundRequest struct {
	signedRequest
	userID string
}

// located is a bound request whose file exists in the store.
type located struct {
	boundRequest
	ref      AssetRef
	filename string
	key      string
}

// Authorizer runs the segment access pipeline: signature, then caller
// binding, then existence. The first failing stage ends the request.
type Authorizer struct {
	verifier *signedurl.Verifier
	assets   assets.Store
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewAuthorizer wires an Authorizer. m may be nil.
func NewAuthorizer(v *signedurl.Verifier, st assets.Store, log *slog.Logger, m *metrics.Metrics) *Authorizer {
	return &Authorizer{verifier: v, assets: st, log: log, metrics: m}
}

// Authorize checks r for filename under ref.
func (a *Authorizer) Authorize(r *http.Request, ref AssetRef, filename string) (located, error) {
	sr, err := a.verifySignature(r)
	if err != nil {
		return located{}, err
	}
	caller, _ := auth.CallerFrom(r.Context())
	br, err := a.bindCaller(sr, caller)
	if err != nil {
		return located{}, err
	}
	return a.locate(r.Context(), br, ref, filename)
}

func (a *Authorizer) verifySignature(r *http.Request) (signedRequest, error) {
	claims, err := a.verifier.Verify(r.URL)
	if err != nil {
		reason := reasonSignature
		if errors.Is(err, signedurl.ErrExpired) {
			reason = reasonExpired
		}
		a.metrics.IncRejections(reason)
		a.log.Debug("segment signature rejected",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		return signedRequest{}, fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return signedRequest{claims: claims}, nil
}

func (a *Authorizer) bindCaller(sr signedRequest, caller auth.Caller) (boundRequest, error) {
	if caller.UserID == "" {
		a.metrics.IncRejections(reasonUnauthenticated)
		return boundRequest{}, ErrUnauthenticated
	}
	if sr.claims.UserID != caller.UserID {
		a.metrics.IncRejections(reasonUserMismatch)
		a.log.Info("segment url replayed by another user",
			slog.String("signed_for", sr.claims.UserID),
			slog.String("caller", caller.UserID))
		return boundRequest{}, fmt.Errorf("%w: user mismatch", ErrForbidden)
	}
	return boundRequest{signedRequest: sr, userID: caller.UserID}, nil
}

func (a *Authorizer) locate(ctx context.Context, br boundRequest, ref AssetRef, filename string) (located, error) {
	if !ref.Valid() || !validFilename(filename) {
		return located{}, fmt.Errorf("segment %s %q: %w", ref.LogID(), filename, ErrNotFound)
	}
	key := ref.FileKey(filename)
	ok, err := a.assets.Exists(ctx, key)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidKey) {
			return located{}, fmt.Errorf("key %s: %w", key, ErrNotFound)
		}
		a.log.Error("asset store exists failed",
			slog.String("asset", ref.LogID()),
			slog.String("path", a.assets.Path(key)),
			slog.String("error", err.Error()))
		return located{}, fmt.Errorf("exists %s: %w", key, err)
	}
	if !ok {
		return located{}, fmt.Errorf("segment %s: %w", key, ErrNotFound)
	}
	return located{boundRequest: br, ref: ref, filename: filename, key: key}, nil
}

func validFilename(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// contentTypeFor picks the manifest type for output.m3u8 and the segment
// type for everything else.
func contentTypeFor(filename string) string {
	if filename == ManifestName {
		return contentTypeManifest
	}
	return contentTypeSegment
}
