package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultHTTPAddr keeps the portal shell on loopback. The shell holds one
// process-wide session, so anyone who can reach it acts as the logged-in user.
const DefaultHTTPAddr = "127.0.0.1:3000"

type Config struct {
	APIBaseURL         string
	HTTPAddr           string
	RevalidateInterval time.Duration
	RequestTimeout     time.Duration
	RedisAddr          string
	RedisPassword      string
	CacheTTL           time.Duration
	StateDir           string
	LogLevel           string

	DevBackendAddr  string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SecureCookies   bool
}

// Load reads an optional .env file and then the process environment. Values
// already present in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		APIBaseURL:         strings.TrimRight(getenv("PORTAL_API_BASE_URL", "http://127.0.0.1:8080"), "/"),
		HTTPAddr:           getenv("PORTAL_HTTP_ADDR", DefaultHTTPAddr),
		RevalidateInterval: getenvDuration("PORTAL_REVALIDATE_INTERVAL", 5*time.Minute),
		RequestTimeout:     getenvDuration("PORTAL_REQUEST_TIMEOUT", 10*time.Second),
		RedisAddr:          getenv("REDIS_ADDR", ""),
		RedisPassword:      getenv("REDIS_PASSWORD", ""),
		CacheTTL:           getenvDuration("PORTAL_CACHE_TTL", 7*24*time.Hour),
		StateDir:           getenv("PORTAL_STATE_DIR", defaultStateDir()),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		DevBackendAddr:     getenv("DEVBACKEND_ADDR", ":8080"),
		JWTSecret:          getenv("JWT_SECRET", "dev-secret"),
		AccessTokenTTL:     getenvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:    getenvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		SecureCookies:      getenvBool("SECURE_COOKIES", false),
	}
}

// defaultStateDir is where the CLI keeps cookies and the user mirror between
// runs.
func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "deptportal")
	}
	return ".deptportal"
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
