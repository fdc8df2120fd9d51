package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// Handler serves POST /auth/login and POST /auth/logout.
type Handler struct {
	users       Users
	tokens      *Tokens
	attempts    Attempts
	maxAttempts int
	log         *slog.Logger
}

// NewHandler wires the login endpoint. attempts may be nil to disable throttling.
func NewHandler(users Users, tokens *Tokens, attempts Attempts, log *slog.Logger) *Handler {
	return &Handler{
		users:       users,
		tokens:      tokens,
		attempts:    attempts,
		maxAttempts: DefaultMaxAttempts,
		log:         log,
	}
}

// Login checks credentials and returns a bearer token, also set as the
// session cookie. Five failures for the same email within the decay window
// answer 429 until the window lapses or a login succeeds.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	ctx := r.Context()

	if h.attempts != nil {
		n, err := h.attempts.Failures(ctx, email)
		if err != nil {
			// throttle store down: fail open
			h.log.Warn("login throttle unavailable", slog.String("error", err.Error()))
		} else if n >= h.maxAttempts {
			w.Header().Set("Retry-After", strconv.Itoa(int(DefaultDecay.Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again in 1 minute")
			return
		}
	}

	u, err := h.users.ByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		h.log.Error("user lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	var found *User
	if err == nil {
		found = &u
	}

	if !checkPassword(found, req.Password) {
		if h.attempts != nil {
			if err := h.attempts.RecordFailure(ctx, email); err != nil {
				h.log.Warn("record login failure", slog.String("error", err.Error()))
			}
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if h.attempts != nil {
		if err := h.attempts.Reset(ctx, email); err != nil {
			h.log.Warn("reset login attempts", slog.String("error", err.Error()))
		}
	}

	token, err := h.tokens.Issue(u.ID)
	if err != nil {
		h.log.Error("issue token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	setSessionCookie(w, token, h.tokens.TTL())
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.tokens.TTL().Seconds()),
	})
}

// Logout denylists the caller's token until it expires and clears the
// session cookie. It answers 200 for anonymous callers too, so repeating a
// logout is harmless. Routes must run Middleware first.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, ok := CallerFrom(r.Context()); ok {
		if err := h.tokens.Revoke(r.Context(), c); err != nil {
			h.log.Error("revoke token", slog.String("user_id", c.UserID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
		h.log.Info("logged out", slog.String("user_id", c.UserID))
	}
	clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
