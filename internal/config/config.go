package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr         string
	Env          string
	CORSOrigin   string
	StateFile    string
	DatabaseURL  string
	RedisURL     string
	Password     string
	PasswordHash string
	SessionTTL   time.Duration
	Users        []string
	// Rate limiting
	LoginAttempts     int
	LoginWindow       time.Duration
	APIRequestsPerMin int
	// Request body ceiling in bytes
	MaxBodyBytes int64
}

func Load() Config {
	return Config{
		Addr:              getenv("API_ADDR", ":8686"),
		Env:               getenv("GALLEY_ENV", "development"),
		CORSOrigin:        getenv("GALLEY_CORS_ORIGIN", "*"),
		StateFile:         getenv("GALLEY_STATE_FILE", "./data/galley.json"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		RedisURL:          getenv("REDIS_URL", ""),
		Password:          getenv("GALLEY_PASSWORD", "galley-dev-password"),
		PasswordHash:      getenv("GALLEY_PASSWORD_HASH", ""),
		SessionTTL:        time.Duration(getenvInt("GALLEY_SESSION_TTL_SECONDS", 604800)) * time.Second,
		Users:             splitUsers(getenv("GALLEY_USERS", "francisco,wife")),
		LoginAttempts:     getenvInt("GALLEY_LOGIN_ATTEMPTS", 5),
		LoginWindow:       time.Duration(getenvInt("GALLEY_LOGIN_WINDOW_SECONDS", 900)) * time.Second,
		APIRequestsPerMin: getenvInt("GALLEY_API_REQUESTS_PER_MINUTE", 100),
		MaxBodyBytes:      int64(getenvInt("GALLEY_MAX_BODY_BYTES", 10*1024)),
	}
}

func (c Config) Production() bool {
	return c.Env == "production"
}

func splitUsers(raw string) []string {
	var users []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name != "" {
			users = append(users, name)
		}
	}
	return users
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
