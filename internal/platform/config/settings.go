package config

import "time"

// Defaults mirrored from the original deployment.
const (
	DefaultSignedURLTTL    = 190 * time.Minute
	DefaultTokenTTL        = 24 * time.Hour
	DefaultEpisodeCacheTTL = 10 * time.Minute
	DefaultMaintenance     = time.Minute
)

// Settings is the process configuration, read once at startup.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	// AppURL is prefixed to issued segment URLs; empty keeps them relative.
	AppURL       string
	SigningKey   string
	SignedURLTTL time.Duration

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	AssetBackend string // "disk" or "s3"
	AssetRoot    string
	S3Bucket     string
	S3Prefix     string
	S3Endpoint   string

	DatabaseURL     string
	RedisURL        string
	EpisodeCacheTTL time.Duration

	// MaintenanceInterval paces cache eviction, denylist pruning and folding
	// Redis view counters into the catalog.
	MaintenanceInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

// FromEnv collects Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		AppURL:       GetEnv("APP_URL", ""),
		SigningKey:   GetEnv("SIGNING_KEY", ""),
		SignedURLTTL: GetEnvDuration("SIGNED_URL_TTL", DefaultSignedURLTTL),

		JWTSecret: GetEnv("AUTH_JWT_SECRET", ""),
		JWTIssuer: GetEnv("AUTH_JWT_ISSUER", "hls-gateway"),
		TokenTTL:  GetEnvDuration("AUTH_TOKEN_TTL", DefaultTokenTTL),

		AssetBackend: GetEnv("ASSET_BACKEND", "disk"),
		AssetRoot:    GetEnv("ASSET_ROOT", "storage/private"),
		S3Bucket:     GetEnv("S3_BUCKET", ""),
		S3Prefix:     GetEnv("S3_PREFIX", ""),
		S3Endpoint:   GetEnv("S3_ENDPOINT", ""),

		DatabaseURL:     GetEnv("DATABASE_URL", ""),
		RedisURL:        GetEnv("REDIS_URL", ""),
		EpisodeCacheTTL: GetEnvDuration("EPISODE_CACHE_TTL", DefaultEpisodeCacheTTL),

		MaintenanceInterval: GetEnvDuration("MAINTENANCE_INTERVAL", DefaultMaintenance),

		RateLimitRPS:   GetEnvFloat("RATE_LIMIT_RPS", 200),
		RateLimitBurst: GetEnvInt("RATE_LIMIT_BURST", 400),
	}
}
