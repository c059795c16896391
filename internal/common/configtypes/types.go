package configtypes

import (
	"time"

	"github.com/edgecomet/httpbench/pkg/types"
)

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Benchmark defaults
const (
	DefaultMaxWorkers        = 128
	DefaultRequestsPerWorker = 10
	DefaultTimeout           = 10 * time.Second
	DefaultMetricsListen     = ":9109"
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsNamespace  = "httpbench"
	DefaultHistoryMaxRuns    = 100
)

// BenchConfig is the full httpbench configuration file
type BenchConfig struct {
	Bench   BenchSettings `yaml:"bench"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	History HistoryConfig `yaml:"history"`
}

// BenchSettings controls worker sizing and network timeouts
type BenchSettings struct {
	MaxWorkers      int            `yaml:"max_workers"`
	DefaultRequests int            `yaml:"default_requests"`
	Timeout         types.Duration `yaml:"timeout"` // per dial/write/read; 0 disables deadlines
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// HistoryConfig enables storing finished runs in Redis
type HistoryConfig struct {
	Enabled bool        `yaml:"enabled"`
	MaxRuns int         `yaml:"max_runs"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}
