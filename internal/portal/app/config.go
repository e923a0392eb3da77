package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/totpx"
)

const (
	ChallengeStoreSQLite = "sqlite"
	ChallengeStoreRedis  = "redis"
)

var (
	ErrMissingSecrets     = errors.New("PORTAL_ACCESS_SECRET and PORTAL_REFRESH_SECRET are required in prod")
	ErrSharedSecrets      = errors.New("PORTAL_ACCESS_SECRET and PORTAL_REFRESH_SECRET must differ")
	ErrUnknownChallenge   = errors.New("PORTAL_CHALLENGE_STORE must be sqlite or redis")
	ErrMissingRedisURL    = errors.New("PORTAL_REDIS_URL is required when PORTAL_CHALLENGE_STORE=redis")
	ErrIncompleteBootstrap = errors.New("PORTAL_BOOTSTRAP_ADMIN_EMAIL and PORTAL_BOOTSTRAP_ADMIN_PASSWORD must be set together")
)

type Config struct {
	AccessSecret  string        // Required in prod: HMAC secret for access tokens
	RefreshSecret string        // Required in prod: HMAC secret for refresh tokens, distinct from AccessSecret
	AccessTTL     time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTTL    time.Duration // Optional: refresh token lifetime (default: 168h)
	Issuer        string        // Optional: iss claim and TOTP issuer (default: estate-portal)

	TOTPWindow      uint // Optional: accepted TOTP steps either side of now (default: 2)
	BackupCodeCount int  // Optional: backup codes per set (default: 8)

	DatabaseFile string // Optional: path to SQLite database file (default: ./portal.db)
	PepperFile   string // Optional: path to file containing the password pepper (default: ./pepper)

	ChallengeStore       string        // Optional: sqlite or redis (default: sqlite)
	RedisURL             string        // Required for the redis challenge store
	ChallengeTTL         time.Duration // Optional: pending login lifetime (default: 5m)
	ChallengeMaxAttempts int           // Optional: wrong codes before a pending login is dropped (default: 5)

	HeartbeatInterval time.Duration // Optional: realtime liveness sweep (default: 30s)
	AdminCacheTTL     time.Duration // Optional: broadcast audience cache (default: 30s)
	CookieSecure      bool          // Optional: Secure flag on the refresh cookie (default: true)
	AllowedOrigins    []string      // Optional: websocket origins; empty means same-origin only

	BootstrapAdminEmail    string // Optional: creates an admin when the user table is empty
	BootstrapAdminPassword string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the environment, after loading an optional .env file.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		AccessSecret:  os.Getenv("PORTAL_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("PORTAL_REFRESH_SECRET"),
		AccessTTL:     getEnvDurationOrDefault("PORTAL_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("PORTAL_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		Issuer:        getEnvOrDefault("PORTAL_ISSUER", "estate-portal"),

		TOTPWindow:      uint(getEnvIntOrDefault("PORTAL_TOTP_WINDOW", totpx.DefaultWindow)),
		BackupCodeCount: getEnvIntOrDefault("PORTAL_BACKUP_CODE_COUNT", cryptox.DefaultBackupCodeCount),

		DatabaseFile: getEnvOrDefault("PORTAL_DATABASE_FILE", "portal.db"),
		PepperFile:   getEnvOrDefault("PORTAL_PEPPER_FILE", "pepper"),

		ChallengeStore:       strings.ToLower(getEnvOrDefault("PORTAL_CHALLENGE_STORE", ChallengeStoreSQLite)),
		RedisURL:             os.Getenv("PORTAL_REDIS_URL"),
		ChallengeTTL:         getEnvDurationOrDefault("PORTAL_CHALLENGE_TTL", 5*time.Minute),
		ChallengeMaxAttempts: getEnvIntOrDefault("PORTAL_CHALLENGE_MAX_ATTEMPTS", 5),

		HeartbeatInterval: getEnvDurationOrDefault("PORTAL_HEARTBEAT_INTERVAL", 30*time.Second),
		AdminCacheTTL:     getEnvDurationOrDefault("PORTAL_ADMIN_CACHE_TTL", 30*time.Second),
		CookieSecure:      getEnvBoolOrDefault("PORTAL_COOKIE_SECURE", true),
		AllowedOrigins:    getEnvList("PORTAL_ALLOWED_ORIGINS"),

		BootstrapAdminEmail:    os.Getenv("PORTAL_BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("PORTAL_BOOTSTRAP_ADMIN_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate checks cross-field rules. Outside prod, missing token secrets are
// replaced with random ones that only live as long as the process.
func (c *Config) Validate(logger *slog.Logger) error {
	switch c.ChallengeStore {
	case ChallengeStoreSQLite:
	case ChallengeStoreRedis:
		if c.RedisURL == "" {
			return ErrMissingRedisURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChallenge, c.ChallengeStore)
	}

	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		return ErrIncompleteBootstrap
	}

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		if c.Env == "prod" {
			return ErrMissingSecrets
		}
		for _, secret := range []*string{&c.AccessSecret, &c.RefreshSecret} {
			if *secret != "" {
				continue
			}
			generated, err := cryptox.RandomSecret(cryptox.SecretSize)
			if err != nil {
				return err
			}
			*secret = generated
		}
		logger.Warn("token secrets not configured, using ephemeral secrets; sessions will not survive a restart")
	}
	if c.AccessSecret == c.RefreshSecret {
		return ErrSharedSecrets
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
