package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/httpbench/internal/common/configtypes"
	"github.com/edgecomet/httpbench/pkg/types"
)

type (
	BenchConfig   = configtypes.BenchConfig
	BenchSettings = configtypes.BenchSettings
	LogConfig     = configtypes.LogConfig
	RedisConfig   = configtypes.RedisConfig
)

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default returns the configuration used when no config file is given
func Default() *BenchConfig {
	cfg := &BenchConfig{}
	cfg.Bench.Timeout = types.Duration(configtypes.DefaultTimeout)
	applyDefaults(cfg)
	return cfg
}

// LoadBenchConfig reads, defaults and validates a config file.
// Missing keys fall back to Default(); unknown keys are rejected.
func LoadBenchConfig(configPath string) (*BenchConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return ParseBenchConfig(data)
}

// ParseBenchConfig decodes YAML config data on top of the built-in defaults
func ParseBenchConfig(data []byte) (*BenchConfig, error) {
	cfg := &BenchConfig{}
	cfg.Bench.Timeout = types.Duration(configtypes.DefaultTimeout)

	if err := unmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// unmarshalStrict fails on unknown fields so typos in the config surface early
func unmarshalStrict(data []byte, v interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(v)
	if errors.Is(err, io.EOF) {
		// empty file
		return nil
	}
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "field") && strings.Contains(errStr, "not found") {
			return fmt.Errorf("unknown configuration field (check for typos): %w", err)
		}
		return err
	}

	return nil
}

func applyDefaults(cfg *BenchConfig) {
	if cfg.Bench.MaxWorkers == 0 {
		cfg.Bench.MaxWorkers = configtypes.DefaultMaxWorkers
	}
	if cfg.Bench.DefaultRequests == 0 {
		cfg.Bench.DefaultRequests = configtypes.DefaultRequestsPerWorker
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	// If both outputs are disabled (zero values), enable console by default
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = configtypes.DefaultMetricsListen
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = configtypes.DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = configtypes.DefaultMetricsNamespace
	}

	if cfg.History.MaxRuns == 0 {
		cfg.History.MaxRuns = configtypes.DefaultHistoryMaxRuns
	}
}

// Validate checks configuration validity
func Validate(cfg *BenchConfig) error {
	if cfg.Bench.MaxWorkers < 0 {
		return fmt.Errorf("bench.max_workers must be positive, got %d", cfg.Bench.MaxWorkers)
	}
	if cfg.Bench.DefaultRequests < 0 {
		return fmt.Errorf("bench.default_requests must be positive, got %d", cfg.Bench.DefaultRequests)
	}
	if time.Duration(cfg.Bench.Timeout) < 0 {
		return fmt.Errorf("bench.timeout cannot be negative")
	}

	if err := ValidateLogLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	if cfg.Log.Console.Level != "" {
		if err := ValidateLogLevel(cfg.Log.Console.Level); err != nil {
			return fmt.Errorf("invalid log.console.level: %w", err)
		}
	}

	validConsoleFormats := map[string]bool{
		configtypes.LogFormatJSON:    true,
		configtypes.LogFormatConsole: true,
		configtypes.LogFormatText:    true,
	}
	if cfg.Log.Console.Enabled && !validConsoleFormats[cfg.Log.Console.Format] {
		return fmt.Errorf("invalid log.console.format: %s (must be json, console or text)", cfg.Log.Console.Format)
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if cfg.Log.File.Format != configtypes.LogFormatJSON && cfg.Log.File.Format != configtypes.LogFormatText {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}
		if cfg.Log.File.Rotation.MaxSize < 0 || cfg.Log.File.Rotation.MaxAge < 0 || cfg.Log.File.Rotation.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation values must be >= 0")
		}
	}

	if cfg.Metrics.Enabled {
		normalized, err := configtypes.NormalizeListen(cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		cfg.Metrics.Listen = normalized
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !namespacePattern.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	if cfg.History.Enabled {
		if cfg.History.Redis.Addr == "" {
			return fmt.Errorf("history.redis.addr is required when history is enabled")
		}
		if cfg.History.MaxRuns < 0 {
			return fmt.Errorf("history.max_runs must be positive, got %d", cfg.History.MaxRuns)
		}
	}

	return nil
}

// ValidateLogLevel accepts debug, info, warn and error
func ValidateLogLevel(level string) error {
	switch level {
	case configtypes.LogLevelDebug, configtypes.LogLevelInfo, configtypes.LogLevelWarn, configtypes.LogLevelError:
		return nil
	}
	return fmt.Errorf("%q (must be debug, info, warn or error)", level)
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
