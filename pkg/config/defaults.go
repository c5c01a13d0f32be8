package config

import (
	"strings"
	"time"

	"github.com/posagent/posagentd/internal/bytesize"
)

// GetDefaultConfig returns a Config with every field set to its default
// value, suitable as the starter file posagentd init writes.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any zero-valued fields with sensible defaults.
// Explicit values from file or environment are preserved.
func ApplyDefaults(cfg *Config) {
	applyDeviceDefaults(&cfg.Device)
	applySerialDefaults(&cfg.Serial)
	applyNvrDefaults(&cfg.Nvr)
	applyQueueDefaults(&cfg.Queue)
	applyHealthDefaults(&cfg.Health)
	applyLoggingDefaults(&cfg.Logging)
}

func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.PosType == "" {
		cfg.PosType = "verifone-commander"
	}
	if cfg.ParserVersion == "" {
		cfg.ParserVersion = "1"
	}
}

func applySerialDefaults(cfg *SerialConfig) {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
}

func applyNvrDefaults(cfg *NvrConfig) {
	if cfg.BaseURL == "" {
		return
	}
	if cfg.Label == "" {
		cfg.Label = "register1"
	}
	if cfg.Duration == 0 {
		cfg.Duration = 60 * time.Second
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.DBPath == "" {
		cfg.DBPath = "/var/lib/posagent/queue"
	}
	if cfg.ByteCap == 0 {
		cfg.ByteCap = bytesize.ByteSize(256 * 1024 * 1024)
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 7 * 24 * time.Hour
	}
	if cfg.EvictionInterval == 0 {
		cfg.EvictionInterval = 60 * time.Second
	}
}

func applyHealthDefaults(cfg *HealthConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 9091
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}
