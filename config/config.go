package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration.
const (
	EnvRecencyDays  = "MCPFUNNEL_RECENCY_DAYS"
	EnvHTTPAddr     = "MCPFUNNEL_HTTP_ADDR"
	EnvLogLevel     = "MCPFUNNEL_LOG_LEVEL"
	EnvAllowedDirs  = "MCPFUNNEL_ALLOWED_DIRS"
	EnvEnableWrites = "MCPFUNNEL_ENABLE_WRITES"
)

// Config is the full server configuration.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Limits   LimitsConfig   `yaml:"limits"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TableNames names the five input tables, either as file names in a
// directory source or as sheet names in a workbook source.
type TableNames struct {
	Home         string `yaml:"home" validate:"required"`
	Search       string `yaml:"search" validate:"required"`
	Payment      string `yaml:"payment" validate:"required"`
	Confirmation string `yaml:"confirmation" validate:"required"`
	Users        string `yaml:"users" validate:"required"`
}

// Columns names the columns the loader reads.
type Columns struct {
	UserID string `yaml:"user_id" validate:"required"`
	Device string `yaml:"device" validate:"required"`
	Gender string `yaml:"gender" validate:"required"`
	Signup string `yaml:"signup" validate:"required"`
}

// DatasetConfig controls how input tables are located and parsed.
type DatasetConfig struct {
	Files   TableNames `yaml:"files"`
	Sheets  TableNames `yaml:"sheets"`
	Columns Columns    `yaml:"columns"`
	// Delimiter for CSV inputs; a single character.
	Delimiter string `yaml:"delimiter" validate:"omitempty,len=1"`
}

// AnalysisConfig holds engine parameters.
type AnalysisConfig struct {
	RecencyDays     int      `yaml:"recency_days" validate:"min=0"`
	Segments        []string `yaml:"segments"`
	OnboardingRatio float64  `yaml:"onboarding_ratio" validate:"gt=0,lte=1"`
}

// LimitsConfig bounds request concurrency and input size.
type LimitsConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" validate:"min=1"`
	MaxOpenWorkbooks      int           `yaml:"max_open_workbooks" validate:"min=1"`
	MaxRowsPerTable       int           `yaml:"max_rows_per_table" validate:"min=1"`
	OperationTimeout      time.Duration `yaml:"operation_timeout"`
}

// ServerConfig holds transport settings.
type ServerConfig struct {
	HTTPAddr     string   `yaml:"http_addr"`
	AllowedDirs  []string `yaml:"allowed_dirs"`
	EnableWrites bool     `yaml:"enable_writes"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn error"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Files: TableNames{
				Home:         DefaultHomeFile,
				Search:       DefaultSearchFile,
				Payment:      DefaultPaymentFile,
				Confirmation: DefaultConfirmationFile,
				Users:        DefaultUserFile,
			},
			Sheets: TableNames{
				Home:         DefaultHomeSheet,
				Search:       DefaultSearchSheet,
				Payment:      DefaultPaymentSheet,
				Confirmation: DefaultConfirmationSheet,
				Users:        DefaultUserSheet,
			},
			Columns: Columns{
				UserID: DefaultUserIDColumn,
				Device: DefaultDeviceColumn,
				Gender: DefaultGenderColumn,
				Signup: DefaultSignupColumn,
			},
			Delimiter: ",",
		},
		Analysis: AnalysisConfig{
			RecencyDays:     DefaultRecencyDays,
			Segments:        []string{"device", "gender"},
			OnboardingRatio: DefaultOnboardingRatio,
		},
		Limits: LimitsConfig{
			MaxConcurrentRequests: DefaultMaxConcurrentRequests,
			MaxOpenWorkbooks:      DefaultMaxOpenWorkbooks,
			MaxRowsPerTable:       DefaultMaxRowsPerTable,
			OperationTimeout:      DefaultOperationTimeout,
		},
		Server: ServerConfig{
			HTTPAddr: DefaultHTTPAddr,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides. An empty path or a missing file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := strings.TrimSpace(os.Getenv(EnvRecencyDays)); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s must be an integer: %w", EnvRecencyDays, err)
		}
		c.Analysis.RecencyDays = days
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddr)); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvAllowedDirs); v != "" {
		c.Server.AllowedDirs = filepath.SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnableWrites)); v != "" {
		c.Server.EnableWrites = ParseBool(v)
	}
	return nil
}

// ParseBool accepts 1, true and yes (any case) as true.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
