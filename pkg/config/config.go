// Package config provides configuration loading and validation for stackdev.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidCapacity    = errors.New("invalid stack capacity")
	ErrInvalidMemoryLimit = errors.New("invalid stack memory limit")
	ErrInvalidIsolation   = errors.New("invalid isolation mode")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidSampleRatio = errors.New("sample ratio must be within [0, 1]")
	ErrMissingMountpoint  = errors.New("fuse mountpoint is required when fuse is enabled")
	ErrFuseIsolation      = errors.New("fuse requires global isolation")
)

// Default configuration values.
const (
	defaultPort     = 8080
	defaultHost     = "127.0.0.1"
	defaultFSName   = "stackdev"
	defaultEnvFile  = ".env"
	envPrefix       = "STACKDEV"
	maxPort         = 65535
	logFormatJSON   = "json"
	logFormatText   = "text"
	defaultLogLevel = "info"
)

// Config holds all configuration for stackdev.
type Config struct {
	Stack     StackConfig     `mapstructure:"stack"     yaml:"stack"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	FUSE      FUSEConfig      `mapstructure:"fuse"      yaml:"fuse"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// StackConfig holds device and stack sizing.
type StackConfig struct {
	// MemoryLimit caps the bytes all stack buffers may hold ("64KiB", "1MB").
	// Empty means unlimited.
	MemoryLimit     string `mapstructure:"memory_limit"     yaml:"memory_limit"`
	Isolation       string `mapstructure:"isolation"        yaml:"isolation"`
	DefaultCapacity uint   `mapstructure:"default_capacity" yaml:"default_capacity"`
	MaxCapacity     uint   `mapstructure:"max_capacity"     yaml:"max_capacity"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"          yaml:"host"`
	CORSOrigins  []string      `mapstructure:"cors_origins"  yaml:"cors_origins"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"  yaml:"idle_timeout"`
	Port         int           `mapstructure:"port"          yaml:"port"`
	Enabled      bool          `mapstructure:"enabled"       yaml:"enabled"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// FUSEConfig holds device node configuration.
type FUSEConfig struct {
	Mountpoint string `mapstructure:"mountpoint" yaml:"mountpoint"`
	FSName     string `mapstructure:"fsname"     yaml:"fsname"`
	Enabled    bool   `mapstructure:"enabled"    yaml:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig holds tracing and metrics configuration.
type TelemetryConfig struct {
	Environment     string  `mapstructure:"environment"      yaml:"environment"`
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"    yaml:"otlp_endpoint"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"     yaml:"otlp_headers"`
	DiagnosticsAddr string  `mapstructure:"diagnostics_addr" yaml:"diagnostics_addr"`
	SampleRatio     float64 `mapstructure:"sample_ratio"     yaml:"sample_ratio"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"    yaml:"otlp_insecure"`
	Prometheus      bool    `mapstructure:"prometheus"       yaml:"prometheus"`
	DebugTrace      bool    `mapstructure:"debug_trace"      yaml:"debug_trace"`
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory, when present, is loaded into the
// environment first; variables already set win.
func LoadConfig(configPath string) (*Config, error) {
	err := LoadEnvFile(defaultEnvFile)
	if err != nil {
		return nil, err
	}

	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		expanded, expandErr := homedir.Expand(configPath)
		if expandErr != nil {
			return nil, fmt.Errorf("expand config path: %w", expandErr)
		}

		viperCfg.SetConfigFile(expanded)
	} else {
		viperCfg.SetConfigName("stackdev")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.config/stackdev")
		viperCfg.AddConfigPath("/etc/stackdev")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if config.FUSE.Mountpoint != "" {
		config.FUSE.Mountpoint, err = homedir.Expand(config.FUSE.Mountpoint)
		if err != nil {
			return nil, fmt.Errorf("expand fuse mountpoint: %w", err)
		}
	}

	validateErr := Validate(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}

// Default returns the configuration used when no file or env overrides it.
func Default() *Config {
	viperCfg := viper.New()
	setDefaults(viperCfg)

	var config Config

	// Defaults always decode.
	_ = viperCfg.Unmarshal(&config)

	return &config
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("stack.default_capacity", device.DefaultCapacity)
	viperCfg.SetDefault("stack.max_capacity", device.MaxCapacity)
	viperCfg.SetDefault("stack.memory_limit", "")
	viperCfg.SetDefault("stack.isolation", string(device.IsolationGlobal))

	viperCfg.SetDefault("server.enabled", true)
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.host", defaultHost)
	viperCfg.SetDefault("server.read_timeout", "10s")
	viperCfg.SetDefault("server.write_timeout", "10s")
	viperCfg.SetDefault("server.idle_timeout", "60s")
	viperCfg.SetDefault("server.cors_origins", []string{})

	viperCfg.SetDefault("fuse.enabled", false)
	viperCfg.SetDefault("fuse.mountpoint", "")
	viperCfg.SetDefault("fuse.fsname", defaultFSName)

	viperCfg.SetDefault("logging.level", defaultLogLevel)
	viperCfg.SetDefault("logging.format", logFormatText)

	viperCfg.SetDefault("telemetry.environment", "")
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.prometheus", true)
	viperCfg.SetDefault("telemetry.debug_trace", false)
	viperCfg.SetDefault("telemetry.diagnostics_addr", "")
}

// Validate checks cross-field constraints of a loaded configuration.
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Stack.DefaultCapacity == 0 || config.Stack.MaxCapacity == 0 ||
		config.Stack.DefaultCapacity > config.Stack.MaxCapacity {
		return fmt.Errorf("%w: default %d, max %d",
			ErrInvalidCapacity, config.Stack.DefaultCapacity, config.Stack.MaxCapacity)
	}

	_, err := stack.ParseMemoryLimit(config.Stack.MemoryLimit)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemoryLimit, err)
	}

	isolation, err := device.ParseIsolation(config.Stack.Isolation)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIsolation, err)
	}

	if config.Logging.Format != logFormatJSON && config.Logging.Format != logFormatText {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	if config.FUSE.Enabled {
		if config.FUSE.Mountpoint == "" {
			return ErrMissingMountpoint
		}

		if isolation != device.IsolationGlobal {
			return fmt.Errorf("%w: got %s", ErrFuseIsolation, isolation)
		}
	}

	return nil
}

// IsolationMode returns the parsed isolation mode. The value was checked by
// Validate, so unknown modes fall back to global.
func (s StackConfig) IsolationMode() device.Isolation {
	isolation, err := device.ParseIsolation(s.Isolation)
	if err != nil {
		return device.IsolationGlobal
	}

	return isolation
}

// NewAllocator builds the heap allocator bounded by MemoryLimit.
func (s StackConfig) NewAllocator() (*stack.HeapAllocator, error) {
	limit, err := stack.ParseMemoryLimit(s.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMemoryLimit, err)
	}

	return stack.NewHeapAllocator(limit), nil
}

// Observability maps the logging and telemetry sections onto an
// observability configuration for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.Mode = mode
	obsCfg.ServiceVersion = version
	obsCfg.Environment = c.Telemetry.Environment
	obsCfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	obsCfg.Prometheus = c.Telemetry.Prometheus
	obsCfg.DebugTrace = c.Telemetry.DebugTrace
	obsCfg.SampleRatio = c.Telemetry.SampleRatio
	obsCfg.LogLevel = observability.ParseLogLevel(c.Logging.Level)
	obsCfg.LogJSON = c.Logging.Format == logFormatJSON

	return obsCfg
}
