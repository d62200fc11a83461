// Package config provides configuration management functionality.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// ScheduleDisabled turns the periodic sync off when used as SYNC_SCHEDULE.
const ScheduleDisabled = "off"

// scheduleParser accepts both 5 and 6 field specs plus descriptors like "@every 15m".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	ConfigFile     string // Optional YAML overlay, watched for changes
	LogLevel       string
	Port           int
	DevMode        bool
	MetricsEnabled bool
	SyncSchedule   string // cron spec, or "off"
	SecretKey      string // base64 AES-256 key used to seal broker credentials
	Broker         BrokerConfig
	Archive        ArchiveConfig

	// MaintenanceSchedule runs integrity checks, WAL checkpoints and backups
	MaintenanceSchedule string
}

// BrokerConfig holds broker API connection settings
type BrokerConfig struct {
	Name      string // Stored as Position.Source on synced rows
	BaseURL   string
	ClientID  string
	Timeout   time.Duration // Per-call bound for login and each fetch
	RateLimit time.Duration // Minimum spacing between requests
}

// ArchiveConfig holds raw snapshot archive settings
type ArchiveConfig struct {
	Keep            int // Raw snapshots kept in cache.db
	BackupKeep      int // Database backups kept in the bucket
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// RemoteEnabled reports whether snapshots are also uploaded to object storage.
func (a ArchiveConfig) RemoteEnabled() bool {
	return a.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := resolveDataDir(getEnv("FOLIO_DATA_DIR", "./data"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:        dataDir,
		ConfigFile:     getEnv("FOLIO_CONFIG_FILE", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("FOLIO_PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		SyncSchedule:   getEnv("SYNC_SCHEDULE", "@every 15m"),
		SecretKey:      getEnv("FOLIO_SECRET_KEY", ""),
		Broker: BrokerConfig{
			Name:      getEnv("BROKER_NAME", "broker"),
			BaseURL:   strings.TrimRight(getEnv("BROKER_BASE_URL", "https://api.robinhood.com"), "/"),
			ClientID:  getEnv("BROKER_CLIENT_ID", ""),
			Timeout:   getEnvAsDuration("BROKER_TIMEOUT", 30*time.Second),
			RateLimit: getEnvAsDuration("BROKER_RATE_LIMIT", 250*time.Millisecond),
		},
		Archive: ArchiveConfig{
			Keep:            getEnvAsInt("ARCHIVE_KEEP", 10),
			BackupKeep:      getEnvAsInt("BACKUP_KEEP", 7),
			Bucket:          getEnv("ARCHIVE_BUCKET", ""),
			Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
			Region:          getEnv("ARCHIVE_REGION", "auto"),
			AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		},
	}

	cfg.MaintenanceSchedule = getEnv("MAINTENANCE_SCHEDULE", "0 30 3 * * *")

	if cfg.ConfigFile != "" {
		overlay, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Apply(overlay)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Broker.Timeout <= 0 {
		return fmt.Errorf("broker timeout must be positive, got %s", c.Broker.Timeout)
	}
	if c.Archive.Keep < 1 {
		return fmt.Errorf("archive keep must be at least 1, got %d", c.Archive.Keep)
	}
	if c.Archive.BackupKeep < 1 {
		return fmt.Errorf("backup keep must be at least 1, got %d", c.Archive.BackupKeep)
	}
	if err := ValidateSchedule(c.SyncSchedule); err != nil {
		return err
	}
	if err := ValidateSchedule(c.MaintenanceSchedule); err != nil {
		return err
	}
	if c.SecretKey != "" {
		if _, err := c.SecretKeyBytes(); err != nil {
			return err
		}
	}
	if c.Archive.RemoteEnabled() && (c.Archive.AccessKeyID == "" || c.Archive.SecretAccessKey == "") {
		return fmt.Errorf("archive bucket %q configured without access keys", c.Archive.Bucket)
	}
	return nil
}

// SyncEnabled reports whether the periodic sync should be scheduled.
func (c *Config) SyncEnabled() bool {
	return c.SyncSchedule != "" && c.SyncSchedule != ScheduleDisabled
}

// SecretKeyBytes decodes the configured credential sealing key.
// Returns nil without error when no key is configured.
func (c *Config) SecretKeyBytes() ([]byte, error) {
	if c.SecretKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("FOLIO_SECRET_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("FOLIO_SECRET_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// ValidateSchedule checks a sync schedule spec. Empty and "off" are valid.
func ValidateSchedule(spec string) error {
	if spec == "" || spec == ScheduleDisabled {
		return nil
	}
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return nil
}

// ScheduleParser returns the cron parser used for sync schedules.
func ScheduleParser() cron.Parser {
	return scheduleParser
}

func resolveDataDir(dataDir string) (string, error) {
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return absDataDir, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
