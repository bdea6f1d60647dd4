package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultSourceURL is the World Happiness Report 2021 dataset.
const DefaultSourceURL = "https://raw.githubusercontent.com/datahub-project/datahub/main/metadata-ingestion/examples/data_examples/kaggle/world-happiness-report-2021.csv"

// Global configuration structure.
type Global struct {
	SourceURL string `mapstructure:"source_url" yaml:"source_url"`

	// HTTP/Retry configuration for remote sources
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Column roles
	ScoreColumn  string `mapstructure:"score_column" yaml:"score_column"`
	RegionColumn string `mapstructure:"region_column" yaml:"region_column"`
	EntityColumn string `mapstructure:"entity_column" yaml:"entity_column"`
	YearColumn   string `mapstructure:"year_column" yaml:"year_column"`
	SampleRows   int    `mapstructure:"sample_rows" yaml:"sample_rows"`

	// Web layer
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	StaticDir   string   `mapstructure:"static_dir" yaml:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.datalens/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, ".datalens")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("DATALENS")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("source_url", DefaultSourceURL)
	v.SetDefault("score_column", "ladder_score")
	v.SetDefault("region_column", "regional_indicator")
	v.SetDefault("entity_column", "country")
	v.SetDefault("year_column", "year")
	v.SetDefault("sample_rows", 5)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	// Web defaults
	v.SetDefault("listen_addr", "127.0.0.1:5000")
	v.SetDefault("static_dir", "")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, ".datalens"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
