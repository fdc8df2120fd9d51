package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"hls-gateway/internal/platform/logger"
)

var testNow = time.Unix(1_700_000_000, 0)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	tk, err := NewTokens("jwt-secret", "hls-gateway", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tk.now = func() time.Time { return testNow }
	return tk
}

func TestTokens_round_trip(t *testing.T) {
	tk := newTestTokens(t)
	raw, err := tk.Issue("42")
	if err != nil {
		t.Fatal(err)
	}
	c, err := tk.Parse(raw)
	if err != nil || c.UserID != "42" {
		t.Errorf("Parse: %+v %v", c, err)
	}
}

func TestTokens_rejects(t *testing.T) {
	tk := newTestTokens(t)

	t.Run("expired", func(t *testing.T) {
		raw, _ := tk.Issue("42")
		later := *tk
		later.now = func() time.Time { return testNow.Add(2 * time.Hour) }
		if _, err := later.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("wrong_issuer", func(t *testing.T) {
		other, _ := NewTokens("jwt-secret", "someone-else", time.Hour)
		other.now = tk.now
		raw, _ := other.Issue("42")
		if _, err := tk.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("wrong_secret", func(t *testing.T) {
		other, _ := NewTokens("other-secret", "hls-gateway", time.Hour)
		other.now = tk.now
		raw, _ := other.Issue("42")
		if _, err := tk.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("alg_none", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "hls-gateway",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tk.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, err := tk.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestNewTokens_empty_secret(t *testing.T) {
	if _, err := NewTokens("", "x", time.Hour); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestMiddleware_and_Require(t *testing.T) {
	tk := newTestTokens(t)
	r := chi.NewRouter()
	r.Use(Middleware(tk))
	r.With(Require).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		c, _ := CallerFrom(r.Context())
		_, _ = w.Write([]byte(c.UserID))
	})
	valid, _ := tk.Issue("7")

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "7"},
		{"missing", "", http.StatusForbidden, ""},
		{"bad_token", "Bearer nope", http.StatusForbidden, ""},
		{"wrong_scheme", "Basic " + valid, http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func newLoginRouter(t *testing.T, attempts Attempts) (*chi.Mux, *Tokens) {
	t.Helper()
	users := NewMemoryUsers(bcrypt.MinCost)
	if err := users.Add("42", "Alice@Example.com", "s3cret"); err != nil {
		t.Fatal(err)
	}
	tk := newTestTokens(t)
	h := NewHandler(users, tk, attempts, logger.Discard())
	r := chi.NewRouter()
	r.Post("/auth/login", h.Login)
	return r, tk
}

func postLogin(r http.Handler, email, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(loginRequest{Email: email, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLogin_success(t *testing.T) {
	r, tk := newLoginRouter(t, nil)
	rec := postLogin(r, " alice@example.com ", "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	c, err := tk.Parse(resp.Token)
	if err != nil || c.UserID != "42" {
		t.Errorf("token does not parse to user 42: %+v %v", c, err)
	}
	if resp.ExpiresIn != 3600 || resp.TokenType != "Bearer" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestLogin_bad_credentials(t *testing.T) {
	r, _ := newLoginRouter(t, nil)
	if rec := postLogin(r, "alice@example.com", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", rec.Code)
	}
	if rec := postLogin(r, "bob@example.com", "s3cret"); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown user: %d", rec.Code)
	}
	if rec := postLogin(r, "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body fields: %d", rec.Code)
	}
}

func TestLogin_throttle(t *testing.T) {
	att := NewMemoryAttempts(DefaultDecay)
	now := testNow
	att.now = func() time.Time { return now }
	r, _ := newLoginRouter(t, att)

	for i := 0; i < DefaultMaxAttempts; i++ {
		if rec := postLogin(r, "alice@example.com", "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: %d", i+1, rec.Code)
		}
	}
	rec := postLogin(r, "alice@example.com", "s3cret")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt should be throttled, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	// other emails are unaffected
	if rec := postLogin(r, "carol@example.com", "x"); rec.Code != http.StatusUnauthorized {
		t.Errorf("other email: %d", rec.Code)
	}

	now = now.Add(DefaultDecay)
	if rec := postLogin(r, "alice@example.com", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("after decay: %d", rec.Code)
	}
	if n, _ := att.Failures(context.Background(), "alice@example.com"); n != 0 {
		t.Errorf("success should reset failures, got %d", n)
	}
}

func TestLogin_success_resets_counter(t *testing.T) {
	att := NewMemoryAttempts(DefaultDecay)
	r, _ := newLoginRouter(t, att)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		postLogin(r, "alice@example.com", "wrong")
	}
	if rec := postLogin(r, "alice@example.com", "s3cret"); rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		postLogin(r, "alice@example.com", "wrong")
	}
	if rec := postLogin(r, "alice@example.com", "s3cret"); rec.Code != http.StatusOK {
		t.Errorf("counter was not reset by success: %d", rec.Code)
	}
}

type fakeRedis struct {
	redis.Cmdable
	vals    map[string]int
	expires map[string]time.Duration
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.Itoa(v), nil)
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.vals[key]++
	return redis.NewIntResult(int64(f.vals[key]), nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, d time.Duration) *redis.BoolCmd {
	f.expires[key] = d
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.vals, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisAttempts(t *testing.T) {
	f := &fakeRedis{vals: map[string]int{}, expires: map[string]time.Duration{}}
	a := NewRedisAttempts(f, DefaultDecay)
	ctx := context.Background()

	if n, err := a.Failures(ctx, "a@b.c"); err != nil || n != 0 {
		t.Fatalf("initial: %d %v", n, err)
	}
	_ = a.RecordFailure(ctx, "a@b.c")
	_ = a.RecordFailure(ctx, "a@b.c")
	if n, _ := a.Failures(ctx, "a@b.c"); n != 2 {
		t.Errorf("failures = %d", n)
	}
	if f.expires["login_attempts:a@b.c"] != time.Minute {
		t.Errorf("expiry not set: %v", f.expires)
	}
	_ = a.Reset(ctx, "a@b.c")
	if n, _ := a.Failures(ctx, "a@b.c"); n != 0 {
		t.Errorf("after reset = %d", n)
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, d time.Duration) *redis.StatusCmd {
	f.vals[key] = 1
	f.expires[key] = d
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.vals[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestTokens_carry_token_id(t *testing.T) {
	tk := newTestTokens(t)
	a, _ := tk.Issue("42")
	b, _ := tk.Issue("42")
	ca, err := tk.Parse(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, _ := tk.Parse(b)
	if ca.TokenID == "" || ca.TokenID == cb.TokenID {
		t.Errorf("token ids %q %q", ca.TokenID, cb.TokenID)
	}
	if !ca.ExpiresAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", ca.ExpiresAt)
	}
}

func newSessionRouter(t *testing.T, rv Revocations) (*chi.Mux, *Tokens) {
	t.Helper()
	users := NewMemoryUsers(bcrypt.MinCost)
	if err := users.Add("42", "alice@example.com", "s3cret"); err != nil {
		t.Fatal(err)
	}
	tk := newTestTokens(t).WithRevocations(rv, logger.Discard())
	h := NewHandler(users, tk, nil, logger.Discard())

	r := chi.NewRouter()
	r.Use(Middleware(tk))
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.With(Require).Get("/me", func(w http.ResponseWriter, r *http.Request) {
		c, _ := CallerFrom(r.Context())
		_, _ = w.Write([]byte(c.UserID))
	})
	return r, tk
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in %v", SessionCookie, rec.Header()["Set-Cookie"])
	return nil
}

func TestLogin_sets_session_cookie(t *testing.T) {
	r, tk := newLoginRouter(t, nil)
	rec := postLogin(r, "alice@example.com", "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	c := sessionCookie(t, rec)
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes %+v", c)
	}
	if c.MaxAge != int(time.Hour.Seconds()) {
		t.Errorf("MaxAge = %d", c.MaxAge)
	}
	if caller, err := tk.Parse(c.Value); err != nil || caller.UserID != "42" {
		t.Errorf("cookie token: %+v %v", caller, err)
	}
}

func TestMiddleware_session_cookie(t *testing.T) {
	r, tk := newSessionRouter(t, nil)
	valid, _ := tk.Issue("7")

	cases := []struct {
		name   string
		header string
		cookie string
		status int
	}{
		{"cookie_only", "", valid, http.StatusOK},
		{"bad_cookie", "", "nope", http.StatusForbidden},
		{"header_wins", "Bearer nope", valid, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestLogout_revokes_token(t *testing.T) {
	rv := NewMemoryRevocations()
	rv.now = func() time.Time { return testNow }
	r, _ := newSessionRouter(t, rv)

	login := postLogin(r, "alice@example.com", "s3cret")
	var resp loginResponse
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	cookie := sessionCookie(t, login)

	get := func(bearer string, ck *http.Cookie) int {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if ck != nil {
			req.AddCookie(ck)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := get(resp.Token, nil); code != http.StatusOK {
		t.Fatalf("before logout: %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if c := sessionCookie(t, rec); c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("cookie not cleared: %+v", c)
	}

	if code := get(resp.Token, nil); code != http.StatusForbidden {
		t.Errorf("bearer after logout: %d", code)
	}
	if code := get("", cookie); code != http.StatusForbidden {
		t.Errorf("cookie after logout: %d", code)
	}
	if rv.Prune() != 1 {
		t.Error("denylist entry dropped before the token expired")
	}

	again := httptest.NewRecorder()
	r.ServeHTTP(again, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if again.Code != http.StatusOK {
		t.Errorf("anonymous logout: %d", again.Code)
	}
}

type brokenRevocations struct{}

func (brokenRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	return errors.New("redis down")
}

func (brokenRevocations) Revoked(ctx context.Context, id string) (bool, error) {
	return false, errors.New("redis down")
}

func TestTokens_Authenticate_fails_open(t *testing.T) {
	tk := newTestTokens(t).WithRevocations(brokenRevocations{}, logger.Discard())
	raw, _ := tk.Issue("7")
	if c, err := tk.Authenticate(context.Background(), raw); err != nil || c.UserID != "7" {
		t.Errorf("Authenticate: %+v %v", c, err)
	}
}

func TestRedisRevocations(t *testing.T) {
	f := &fakeRedis{vals: map[string]int{}, expires: map[string]time.Duration{}}
	rv := NewRedisRevocations(f)
	rv.now = func() time.Time { return testNow }
	ctx := context.Background()

	if ok, err := rv.Revoked(ctx, "jti-1"); err != nil || ok {
		t.Fatalf("initial: %v %v", ok, err)
	}
	if err := rv.Revoke(ctx, "jti-1", testNow.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := rv.Revoked(ctx, "jti-1"); !ok {
		t.Error("jti-1 not revoked")
	}
	if f.expires["revoked_tokens:jti-1"] != 30*time.Minute {
		t.Errorf("ttl = %v", f.expires["revoked_tokens:jti-1"])
	}
	if err := rv.Revoke(ctx, "jti-2", testNow.Add(-time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.vals["revoked_tokens:jti-2"]; ok {
		t.Error("expired token should not be stored")
	}
}
