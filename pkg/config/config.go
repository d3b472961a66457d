// Package config loads environment-driven configuration for each service
// binary. Unlike the teacher's config.Get() singleton, there is no
// package-level instance: Load returns a struct the caller owns and passes
// down to constructors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds settings shared by every service in the platform. Individual
// binaries read the fields relevant to them; unused fields cost nothing.
type Config struct {
	Port string

	MongoURI string
	MongoDB  string
	RedisURL string
	NATSURL  string

	JWTSecret string

	AIEndpoint   string
	AIAPIKey     string
	AIModelLabel string
	AITimeout    time.Duration

	DailyLimitStudent  int
	DailyLimitTeacher  int
	DailyLimitAdmin    int

	MaxFeedItems  int
	MaxUploadSize int64

	AllowedOrigins []string

	Debug bool
}

// Load reads configuration from the environment, applying the defaults the
// teacher's cloudvault config.Load used for the fields shared with it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		MongoURI:     getEnv("MONGO_URI", ""),
		MongoDB:      getEnv("MONGO_DB", "cognitohub"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		AIEndpoint:   getEnv("AI_ENDPOINT", ""),
		AIAPIKey:     getEnv("AI_API_KEY", ""),
		AIModelLabel: getEnv("AI_MODEL_LABEL", "gemini-pro"),
		AITimeout:    getEnvDuration("AI_TIMEOUT", 15*time.Second),

		DailyLimitStudent: getEnvInt("DAILY_LIMIT_STUDENT", 5),
		DailyLimitTeacher: getEnvInt("DAILY_LIMIT_TEACHER", 20),
		DailyLimitAdmin:   getEnvInt("DAILY_LIMIT_ADMIN", 100),

		MaxFeedItems:  getEnvInt("MAX_FEED_ITEMS", 1000),
		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 10*1024*1024),

		Debug: getEnv("DEBUG", "") == "true",
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI must be set")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-only-secret-change-me"
	}

	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" {
		cfg.AllowedOrigins = []string{"*"}
	} else {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg, nil
}

// LimitForRole returns the daily generation quota for a role.
func (c *Config) LimitForRole(role string) int {
	switch role {
	case "Teacher":
		return c.DailyLimitTeacher
	case "Admin", "Moderator":
		return c.DailyLimitAdmin
	default:
		return c.DailyLimitStudent
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
