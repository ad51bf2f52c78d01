package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort       int
	DataDir          string // Directory holding the active store and rotated files
	MaxDBSizeMB      int    // Rotation threshold for the active store file
	MaxRotatedFiles  int    // Rotated files kept beyond the active one
	RetentionDays    int    // Events older than this are purged by the sweeper
	RetentionCron    string // Cron expression for the retention sweep
	AllowedOrigin    string // CORS origin for the admin API
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("PORT", "8085"))
	if err != nil {
		return nil, err
	}
	maxSize, err := strconv.Atoi(getEnv("AUDIT_MAX_DB_SIZE_MB", "10"))
	if err != nil {
		return nil, err
	}
	maxRotated, err := strconv.Atoi(getEnv("AUDIT_MAX_ROTATED_FILES", "5"))
	if err != nil {
		return nil, err
	}
	retentionDays, err := strconv.Atoi(getEnv("AUDIT_RETENTION_DAYS", "90"))
	if err != nil {
		return nil, err
	}

	return &Config{
		ServerPort:      port,
		DataDir:         getEnv("AUDIT_DATA_DIR", defaultDataDir()),
		MaxDBSizeMB:     maxSize,
		MaxRotatedFiles: maxRotated,
		RetentionDays:   retentionDays,
		RetentionCron:   getEnv("AUDIT_RETENTION_CRON", "0 3 * * *"),
		AllowedOrigin:   getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}, nil
}

// defaultDataDir resolves the per-user application-data directory for
// the audit store, falling back to the working directory when the
// platform dir cannot be determined.
func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "./auditcore-data"
	}
	return filepath.Join(base, "auditcore")
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
