package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/elys-network/votesnap/internal/state"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EpochLength is the voting epoch; boundaries are multiples of it since the unix epoch.
	EpochLength time.Duration
	// SubmissionWindow is how long before each epoch boundary votes may be submitted.
	SubmissionWindow time.Duration
	// MaxPoolsLength is the number of top pools considered for submission.
	MaxPoolsLength int

	// SyncPageSize is the number of registry tokens scanned per sync.
	SyncPageSize int
	// NotifyPageSize is the number of active tokens claimed per notify.
	NotifyPageSize int
	// CheckpointBatchSize bounds the upstream checkpoints processed per fee catch-up call.
	CheckpointBatchSize int

	// TickInterval is the pause between two engine ticks.
	TickInterval time.Duration

	// WebPort is the port of the read-only HTTP API.
	WebPort string

	// DBEnabled turns on persistence of ticks, submissions, distributions and parameters.
	DBEnabled bool
	// Database is the Postgres connection configuration, used when DBEnabled is set.
	Database state.DBConfig

	// ParametersFile is an optional YAML file overriding the default protocol parameters.
	ParametersFile string

	// LogLevel is the zerolog level name (debug, info, warn, error).
	LogLevel string
	// LogFile is an optional file receiving a copy of every log line.
	LogFile string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Every variable has a default; malformed values are errors.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	epochSeconds, err := getEnvAsInt64OrDefault("EPOCH_SECONDS", 604800)
	if err != nil {
		return err
	}
	EpochLength = time.Duration(epochSeconds) * time.Second

	windowSeconds, err := getEnvAsInt64OrDefault("WINDOW_SECONDS", 3600)
	if err != nil {
		return err
	}
	SubmissionWindow = time.Duration(windowSeconds) * time.Second

	if MaxPoolsLength, err = getEnvAsIntOrDefault("MAX_POOLS_LENGTH", 10); err != nil {
		return err
	}
	if SyncPageSize, err = getEnvAsIntOrDefault("SYNC_PAGE_SIZE", 10); err != nil {
		return err
	}
	if NotifyPageSize, err = getEnvAsIntOrDefault("NOTIFY_PAGE_SIZE", 2); err != nil {
		return err
	}
	if CheckpointBatchSize, err = getEnvAsIntOrDefault("CHECKPOINT_BATCH_SIZE", 5); err != nil {
		return err
	}

	if TickInterval, err = getEnvAsDurationOrDefault("TICK_INTERVAL", time.Minute); err != nil {
		return err
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	if DBEnabled, err = getEnvAsBoolOrDefault("DB_ENABLED", false); err != nil {
		return err
	}
	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	ParametersFile = getEnvOrDefault("PARAMETERS_FILE", "")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	if err := loadAddressConfig(); err != nil {
		return err
	}

	if SubmissionWindow <= 0 || SubmissionWindow > EpochLength {
		return errors.New("WINDOW_SECONDS must be positive and not exceed EPOCH_SECONDS")
	}

	log.Debug().
		Dur("EpochLength", EpochLength).
		Dur("SubmissionWindow", SubmissionWindow).
		Int("MaxPoolsLength", MaxPoolsLength).
		Dur("TickInterval", TickInterval).
		Bool("DBEnabled", DBEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadDatabaseConfig() error {
	port, err := getEnvAsIntOrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	Database = state.DBConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     port,
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("DB_NAME", "votesnap"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return def
}

func getEnvAsInt64OrDefault(key string, def int64) (int64, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive integer, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsIntOrDefault(key string, def int) (int, error) {
	value, err := getEnvAsInt64OrDefault(key, int64(def))
	return int(value), err
}

func getEnvAsBoolOrDefault(key string, def bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsDurationOrDefault(key string, def time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return def, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
