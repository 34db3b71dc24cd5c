// Package config provides configuration loading and validation for filescope.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidThreadCount = errors.New("analysis thread count must be positive")
	ErrInvalidMaxFiles    = errors.New("max files per session must be positive")
	ErrInvalidFileTimeout = errors.New("file timeout must not be negative")
	ErrInvalidMaxFileSize = errors.New("max file size must be positive")
	ErrInvalidPathDepth   = errors.New("max path depth must be positive")
	ErrNoHashAlgorithms   = errors.New("hash algorithms must not be empty when hashing is enabled")
)

// Default configuration values.
const (
	defaultStorePath   = "filescope.db"
	defaultThreadCount = 4
	defaultMaxFiles    = 50000
	defaultMaxSizeMB   = 1024
	defaultPathDepth   = 20
	defaultOutputDir   = "reports"
)

// Config holds all configuration for the filescope toolkit.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Report    ReportConfig    `mapstructure:"report"`
}

// StoreConfig holds results store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// AnalysisConfig holds analysis session configuration.
type AnalysisConfig struct {
	HashAlgorithms     []string      `mapstructure:"hash_algorithms"`
	FileTimeout        time.Duration `mapstructure:"file_timeout"`
	ThreadCount        int           `mapstructure:"thread_count"`
	MaxFilesPerSession int           `mapstructure:"max_files_per_session"`
	IncludeHashes      bool          `mapstructure:"include_hashes"`
}

// ScanConfig holds file discovery configuration.
type ScanConfig struct {
	BlockedExtensions []string `mapstructure:"blocked_extensions"`
	ExcludeGlobs      []string `mapstructure:"exclude_globs"`
	MaxFileSizeMB     int64    `mapstructure:"max_file_size_mb"`
	MaxPathDepth      int      `mapstructure:"max_path_depth"`
	FollowSymlinks    bool     `mapstructure:"follow_symlinks"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export configuration.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders  string  `mapstructure:"otlp_headers"`
	MetricsAddr  string  `mapstructure:"metrics_addr"`
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	TraceVerbose bool    `mapstructure:"trace_verbose"`
}

// ReportConfig holds report generation configuration.
type ReportConfig struct {
	OutputDir string   `mapstructure:"output_dir"`
	Formats   []string `mapstructure:"formats"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("filescope")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/filescope")
	}

	viperCfg.SetEnvPrefix("FILESCOPE")
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

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Store defaults.
	viperCfg.SetDefault("store.path", defaultStorePath)

	// Analysis defaults.
	viperCfg.SetDefault("analysis.thread_count", defaultThreadCount)
	viperCfg.SetDefault("analysis.include_hashes", true)
	viperCfg.SetDefault("analysis.hash_algorithms", []string{"md5", "sha1", "sha256", "sha512"})
	viperCfg.SetDefault("analysis.max_files_per_session", defaultMaxFiles)
	viperCfg.SetDefault("analysis.file_timeout", "0s")

	// Scan defaults.
	viperCfg.SetDefault("scan.max_file_size_mb", defaultMaxSizeMB)
	viperCfg.SetDefault("scan.max_path_depth", defaultPathDepth)
	viperCfg.SetDefault("scan.follow_symlinks", false)
	viperCfg.SetDefault("scan.blocked_extensions", []string{".exe", ".bat", ".cmd", ".scr", ".com"})
	viperCfg.SetDefault("scan.exclude_globs", []string{})

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
	viperCfg.SetDefault("telemetry.metrics_addr", "")

	// Report defaults.
	viperCfg.SetDefault("report.output_dir", defaultOutputDir)
	viperCfg.SetDefault("report.formats", []string{"json"})
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Analysis.ThreadCount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreadCount, config.Analysis.ThreadCount)
	}

	if config.Analysis.MaxFilesPerSession <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxFiles, config.Analysis.MaxFilesPerSession)
	}

	if config.Analysis.FileTimeout < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFileTimeout, config.Analysis.FileTimeout)
	}

	if config.Analysis.IncludeHashes && len(config.Analysis.HashAlgorithms) == 0 {
		return ErrNoHashAlgorithms
	}

	if config.Scan.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxFileSize, config.Scan.MaxFileSizeMB)
	}

	if config.Scan.MaxPathDepth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPathDepth, config.Scan.MaxPathDepth)
	}

	return nil
}

// MaxFileSizeBytes converts the configured megabyte limit to bytes.
func (sc ScanConfig) MaxFileSizeBytes() int64 {
	return sc.MaxFileSizeMB * 1024 * 1024
}

// SlogLevel maps the configured level string to an slog.Level.
// Unknown values fall back to info.
func (lc LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(lc.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// JSONLogs reports whether log output should be JSON-formatted.
func (lc LoggingConfig) JSONLogs() bool {
	return strings.EqualFold(lc.Format, "json")
}
