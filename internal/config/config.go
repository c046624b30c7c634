package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Document store
	StoreBackend string // "postgres" | "redis"
	DatabaseURL  string
	RedisURL     string
	AccountID    string

	// Local snapshot store (unload recovery)
	SnapshotDBPath string

	// Session timing
	AutosaveIntervalSeconds  int
	StatusTickSeconds        int
	InactivityPollSeconds    int
	InactivityTimeoutMinutes int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:         getEnvOrDefault("PORT", "8080"),
		Env:          getEnvOrDefault("ENV", "development"),
		StoreBackend: getEnvOrDefault("STORE_BACKEND", "postgres"),
		DatabaseURL:  getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:     mustGetEnv("REDIS_URL"),
		AccountID:    getEnvOrDefault("ACCOUNT_ID", "default"),

		SnapshotDBPath: getEnvOrDefault("SNAPSHOT_DB_PATH", "./snapshots.db"),

		AutosaveIntervalSeconds:  getEnvAsIntOrDefault("AUTOSAVE_INTERVAL_SECONDS", 5),
		StatusTickSeconds:        getEnvAsIntOrDefault("STATUS_TICK_SECONDS", 2),
		InactivityPollSeconds:    getEnvAsIntOrDefault("INACTIVITY_POLL_SECONDS", 60),
		InactivityTimeoutMinutes: getEnvAsIntOrDefault("INACTIVITY_TIMEOUT_MINUTES", 10),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		panic("DATABASE_URL is required when STORE_BACKEND=postgres")
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
