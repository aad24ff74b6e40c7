package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// DefaultReactionChoices are offered when REACTION_CHOICES is unset.
var DefaultReactionChoices = []string{"👍", "❤️", "😂", "🎉", "😮", "😢"}

// Config holds all environment configuration values for the dev backend.
// These values are loaded from a .env file at startup.
type Config struct {
	// ServerPort is the port the HTTP server listens on
	ServerPort string

	// CORSOrigins are the allowed browser origins
	CORSOrigins []string

	// RTDBAPIKey, when set, must be presented by realtime store clients
	RTDBAPIKey string

	// RTDBRequireAuth rejects realtime subscriptions before sign-in
	RTDBRequireAuth bool

	// ReactionChoices are the emoji offered on every message
	ReactionChoices []string

	// LongPollMax caps the wait a poll request may ask for
	LongPollMax time.Duration

	// CleanupInterval is how often idle realtime paths are pruned
	CleanupInterval time.Duration

	// CleanupIdle is how long an unsubscribed path survives
	CleanupIdle time.Duration

	LogLevel  string
	LogPretty bool

	// SeedDemo creates a demo thread at startup
	SeedDemo bool
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment variables.
// Falls back to sensible defaults if values are not set or invalid.
func Load() *Config {
	// Attempt to load .env file - not an error if it doesn't exist
	// as we may be running with real environment variables
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	return &Config{
		ServerPort:      getEnv("PORT", "8080"),
		CORSOrigins:     getList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		RTDBAPIKey:      getEnv("RTDB_API_KEY", ""),
		RTDBRequireAuth: getBool("RTDB_REQUIRE_AUTH", true),
		ReactionChoices: getList("REACTION_CHOICES", DefaultReactionChoices),
		LongPollMax:     getDuration("LONG_POLL_MAX", 25*time.Second),
		CleanupInterval: getDuration("CLEANUP_INTERVAL", time.Minute),
		CleanupIdle:     getDuration("CLEANUP_IDLE", 30*time.Minute),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getBool("LOG_PRETTY", false),
		SeedDemo:        getBool("SEED_DEMO", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getList splits a comma-separated variable, trimming whitespace
func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using default")
		return defaultValue
	}
	return b
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
		return defaultValue
	}
	return d
}
