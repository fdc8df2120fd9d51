package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hls-gateway/internal/auth"
	"hls-gateway/internal/platform/config"
	"hls-gateway/internal/platform/limiter"
	"hls-gateway/internal/platform/logger"
	"hls-gateway/internal/platform/metrics"
	"hls-gateway/internal/platform/telemetry"
	"hls-gateway/internal/signedurl"
	"hls-gateway/internal/streaming"
)

const (
	serviceName     = "hls-gateway"
	shutdownTimeout = 10 * time.Second
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	shutdownTracing, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		os.Exit(1)
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		log.Error("backend init failed", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	keys, err := signedurl.NewKeyring(cfg.SigningKey)
	if err != nil {
		log.Error("SIGNING_KEY is required", "error", err)
		os.Exit(1)
	}
	issuer := signedurl.NewIssuer(keys, cfg.SignedURLTTL, signedurl.WithBaseURL(cfg.AppURL))
	verifier := signedurl.NewVerifier(keys, nil)

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		log.Error("AUTH_JWT_SECRET is required", "error", err)
		os.Exit(1)
	}
	tokens.WithRevocations(b.revocations, log)

	met := metrics.New()
	maintCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	go b.runMaintenance(maintCtx, cfg.MaintenanceInterval, log, met)
	svc := streaming.NewService(b.assets, b.catalog, b.views, issuer, log, met)
	authz := streaming.NewAuthorizer(verifier, b.assets, log, met)
	sh := streaming.NewHandler(svc, authz, b.assets, b.catalog, log, met)
	ah := auth.NewHandler(b.users, tokens, b.attempts, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetEpisodeCacheEntries(b.catalog.Len()) }).ServeHTTP(w, r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens))
		r.Post("/auth/login", ah.Login)
		r.Post("/auth/logout", ah.Logout)
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
			sh.Routes(r)
		})
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           telemetry.Wrap(r, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"asset_backend", cfg.AssetBackend,
		"catalog", b.catalogKind,
		"views", b.viewsKind,
		"signed_url_ttl", cfg.SignedURLTTL.String(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		rotateSigningKey(keys, log)
	}

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	stopMaintenance()
	b.sweep(shutdownCtx, log, met)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", "error", err)
	}

	log.Info("server stopped")
}

// rotateSigningKey re-reads .env and swaps the signing key. URLs signed
// with the previous key stop validating at once.
func rotateSigningKey(keys *signedurl.Keyring, log *slog.Logger) {
	if err := config.Reload(); err != nil {
		log.Warn("reload .env failed", "error", err)
	}
	if err := keys.Rotate(config.GetEnv("SIGNING_KEY", "")); err != nil {
		log.Warn("signing key not rotated", "error", err)
		return
	}
	log.Info("signing key rotated")
}
