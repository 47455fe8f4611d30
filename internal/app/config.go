package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"medq/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	HTTPAddr            string
	DB                  db.Config
	SessionTTL          time.Duration
	AuthRateLimitPerMin int
	SeedFixtures        bool
	LogLevel            logrus.Level

	BootstrapUserPassword  string
	BootstrapAdminPassword string
}

// LoadDotEnv merges an optional .env file from the working directory into the
// environment. Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("ignoring unreadable .env file")
	}
}

// LoadConfig reads the environment after LoadDotEnv.
func LoadConfig() Config {
	LoadDotEnv()

	level, err := logrus.ParseLevel(EnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}

	return Config{
		AppEnv:                 EnvOrDefault("APP_ENV", "development"),
		HTTPAddr:               EnvOrDefault("HTTP_ADDR", ":3001"),
		DB: db.Config{
			DSN:             EnvOrDefault("DB_DSN", db.DefaultDSN),
			MaxOpenConns:    intOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    intOrDefault("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: time.Duration(intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
			PingTimeout:     time.Duration(intOrDefault("DB_PING_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		SessionTTL:             time.Duration(intOrDefault("SESSION_TTL_HOURS", 24)) * time.Hour,
		AuthRateLimitPerMin:    intOrDefault("AUTH_RATE_LIMIT_PER_MINUTE", 60),
		SeedFixtures:           boolOrDefault("SEED_FIXTURES", true),
		LogLevel:               level,
		BootstrapUserPassword:  os.Getenv("BOOTSTRAP_USER_PASSWORD"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}
}

// EnvOrDefault returns the trimmed value of key, or fallback when it is unset or blank.
func EnvOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(v))
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
