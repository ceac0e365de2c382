// Package config loads sheetbridge settings from a YAML file, SHEETBRIDGE_*
// environment variables and defaults, in that order of precedence after flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file read when --config is not given.
const DefaultFile = "sheetbridge.yaml"

// EnvPrefix prefixes environment overrides, e.g. SHEETBRIDGE_LOG_LEVEL.
const EnvPrefix = "SHEETBRIDGE"

// Workbook backends.
const (
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the complete sheetbridge configuration.
type Config struct {
	Workbook  WorkbookConfig  `mapstructure:"workbook" yaml:"workbook"`
	Table     TableConfig     `mapstructure:"table" yaml:"table"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// WorkbookConfig selects where the workbook lives.
type WorkbookConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	Path         string        `mapstructure:"path" yaml:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// TableConfig describes the cached table. Row and Column place the header
// row, zero-based.
type TableConfig struct {
	Name    string         `mapstructure:"name" yaml:"name"`
	Sheet   string         `mapstructure:"sheet" yaml:"sheet"`
	Row     int            `mapstructure:"row" yaml:"row"`
	Column  int            `mapstructure:"column" yaml:"column"`
	Columns []ColumnConfig `mapstructure:"columns" yaml:"columns"`
}

// ColumnConfig is one table column.
type ColumnConfig struct {
	Label string `mapstructure:"label" yaml:"label"`
	Key   string `mapstructure:"key" yaml:"key"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// DashboardConfig controls the live dashboard of `watch --dashboard`.
type DashboardConfig struct {
	Host string `mapstructure:"host" yaml:"host,omitempty"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Workbook: WorkbookConfig{
			Backend:      BackendYAML,
			Path:         "workbook.yaml",
			PollInterval: time.Second,
			Debounce:     100 * time.Millisecond,
		},
		Table: TableConfig{
			Name:  "People",
			Sheet: "Data",
			Columns: []ColumnConfig{
				{Label: "Name", Key: "name"},
				{Label: "Email", Key: "email"},
			},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("workbook.backend", d.Workbook.Backend)
	v.SetDefault("workbook.path", d.Workbook.Path)
	v.SetDefault("workbook.poll_interval", d.Workbook.PollInterval)
	v.SetDefault("workbook.debounce", d.Workbook.Debounce)
	v.SetDefault("table.name", d.Table.Name)
	v.SetDefault("table.sheet", d.Table.Sheet)
	v.SetDefault("table.row", d.Table.Row)
	v.SetDefault("table.column", d.Table.Column)
	v.SetDefault("table.columns", []map[string]string{
		{"label": "Name", "key": "name"},
		{"label": "Email", "key": "email"},
	})
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// New returns a viper instance with defaults and environment overrides set
// up and path as its config file. Callers may bind flags to it before Load.
func New(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and returns the validated result. A
// missing file is an error only when required is set.
func Load(v *viper.Viper, required bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if !missing || required {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Workbook.Backend = strings.ToLower(strings.TrimSpace(cfg.Workbook.Backend))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile is Load on a fresh instance for path.
func LoadFile(path string, required bool) (*Config, error) {
	return Load(New(path), required)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Workbook.Backend {
	case BackendYAML, BackendSQLite:
		if strings.TrimSpace(c.Workbook.Path) == "" {
			return fmt.Errorf("workbook.path is required for the %s backend", c.Workbook.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("workbook.backend must be yaml, sqlite or memory, got %q", c.Workbook.Backend)
	}
	if c.Workbook.PollInterval < 0 || c.Workbook.Debounce < 0 {
		return fmt.Errorf("workbook intervals must not be negative")
	}

	if strings.TrimSpace(c.Table.Name) == "" {
		return fmt.Errorf("table.name is required")
	}
	if strings.TrimSpace(c.Table.Sheet) == "" {
		return fmt.Errorf("table.sheet is required")
	}
	if c.Table.Row < 0 || c.Table.Column < 0 {
		return fmt.Errorf("table.row and table.column must not be negative")
	}
	if len(c.Table.Columns) == 0 {
		return fmt.Errorf("table.columns needs at least one column")
	}
	seen := make(map[string]bool, len(c.Table.Columns))
	for i, col := range c.Table.Columns {
		if strings.TrimSpace(col.Key) == "" {
			return fmt.Errorf("table.columns[%d].key is required", i)
		}
		if seen[col.Key] {
			return fmt.Errorf("table.columns[%d].key %q is duplicated", i, col.Key)
		}
		seen[col.Key] = true
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// Write stores cfg at path as YAML. An existing file is only replaced with force.
func Write(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists: %w", path, fs.ErrExist)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
