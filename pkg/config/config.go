// Package config loads and validates the agent's configuration from a
// YAML file, environment variables, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/posagent/posagentd/internal/bytesize"
)

// Config is the agent's complete configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (POSAGENT_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	Device   DeviceConfig   `mapstructure:"device" yaml:"device"`
	Serial   SerialConfig   `mapstructure:"serial" yaml:"serial"`
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`
	Nvr      NvrConfig      `mapstructure:"nvr" yaml:"nvr"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Health   HealthConfig   `mapstructure:"health" yaml:"health"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// DeviceConfig identifies this device and the POS terminal it's wired to.
type DeviceConfig struct {
	// IDOverride pins the device id instead of deriving it from the MAC
	// address and serial port.
	IDOverride    string `mapstructure:"id_override" yaml:"id_override,omitempty"`
	Name          string `mapstructure:"name" yaml:"name"`
	PosType       string `mapstructure:"pos_type" yaml:"pos_type"`
	ParserVersion string `mapstructure:"parser_version" yaml:"parser_version"`
	TerminalID    string `mapstructure:"terminal_id" yaml:"terminal_id"`
	StoreID       string `mapstructure:"store_id" yaml:"store_id,omitempty"`
	DrawerID      string `mapstructure:"drawer_id" yaml:"drawer_id,omitempty"`
	// BatchLines controls whether a transaction's lines are delivered as
	// one batched payload or one job per line.
	BatchLines bool `mapstructure:"batch_lines" yaml:"batch_lines"`
}

// SerialConfig configures the printer port.
type SerialConfig struct {
	// Port is an explicit device path. Empty means auto-detect.
	Port string `mapstructure:"port" yaml:"port,omitempty"`
	Baud int    `mapstructure:"baud" validate:"omitempty,gt=0" yaml:"baud"`
}

// UpstreamConfig points at the HTTP intake this agent delivers to.
type UpstreamConfig struct {
	LineURL    string `mapstructure:"line_url" validate:"required,url" yaml:"line_url"`
	SummaryURL string `mapstructure:"summary_url" validate:"required,url" yaml:"summary_url"`
}

// NvrConfig points at the NVR REST API and names the camera/label this
// agent's events are recorded under. BaseURL empty disables the video
// coordinator entirely.
type NvrConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"omitempty,url" yaml:"base_url,omitempty"`
	Camera     string        `mapstructure:"camera" yaml:"camera,omitempty"`
	Label      string        `mapstructure:"label" yaml:"label,omitempty"`
	Duration   time.Duration `mapstructure:"duration" yaml:"duration,omitempty"`
	RemoteRole string        `mapstructure:"remote_role" yaml:"remote_role,omitempty"`
}

// QueueConfig configures the durable outbound job queue.
type QueueConfig struct {
	DBPath  string            `mapstructure:"db_path" validate:"required" yaml:"db_path"`
	ByteCap bytesize.ByteSize `mapstructure:"byte_cap" yaml:"byte_cap,omitempty"`
	MaxAge  time.Duration     `mapstructure:"max_age" yaml:"max_age,omitempty"`
	// EvictionInterval is how often the queue sweeps for entries past
	// ByteCap/MaxAge.
	EvictionInterval time.Duration `mapstructure:"eviction_interval" yaml:"eviction_interval,omitempty"`
}

// HealthConfig configures the operator-facing /healthz and /metrics
// surface.
type HealthConfig struct {
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if configFileFound {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration, returning a user-facing error with
// remediation instructions if the config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Create one first:\n"+
				"  posagentd init\n\n"+
				"Or point at an existing file:\n"+
				"  posagentd start --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Create it with:\n"+
			"  posagentd init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: failed to write file: %w", err)
	}

	return nil
}

// InitConfig writes a starter configuration file at the default location
// (or the one force-overwritten) and returns the path it wrote.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config: file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}
	return path, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("POSAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: failed to read file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "posagent")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "posagent")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
