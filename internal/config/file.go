package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileOverlay holds the runtime knobs that may be set from the YAML config file.
// Nil fields leave the environment value in place. Secrets never live here.
type FileOverlay struct {
	LogLevel      *string        `yaml:"log_level"`
	SyncSchedule  *string        `yaml:"sync_schedule"`
	BrokerTimeout *time.Duration `yaml:"broker_timeout"`
	ArchiveKeep   *int           `yaml:"archive_keep"`
}

// LoadFile reads and validates a YAML overlay.
func LoadFile(path string) (*FileOverlay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var overlay FileOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if overlay.SyncSchedule != nil {
		if err := ValidateSchedule(*overlay.SyncSchedule); err != nil {
			return nil, err
		}
	}
	if overlay.BrokerTimeout != nil && *overlay.BrokerTimeout <= 0 {
		return nil, fmt.Errorf("broker_timeout must be positive")
	}
	if overlay.ArchiveKeep != nil && *overlay.ArchiveKeep < 1 {
		return nil, fmt.Errorf("archive_keep must be at least 1")
	}

	return &overlay, nil
}

// Apply copies the non-nil overlay fields onto the config.
func (c *Config) Apply(o *FileOverlay) {
	if o == nil {
		return
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.SyncSchedule != nil {
		c.SyncSchedule = *o.SyncSchedule
	}
	if o.BrokerTimeout != nil {
		c.Broker.Timeout = *o.BrokerTimeout
	}
	if o.ArchiveKeep != nil {
		c.Archive.Keep = *o.ArchiveKeep
	}
}
