// Package config provides configuration loading, defaults, and validation.
// All values can be supplied through SPARKPILOT_-prefixed environment
// variables or an optional YAML file; the loaded struct is passed by
// reference into the API, engine adapter, and workers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ListenAddr  string `mapstructure:"listen_addr"`
	DatabaseURL string `mapstructure:"database_url"`

	DryRunMode          bool   `mapstructure:"dry_run_mode"`
	AWSRegion           string `mapstructure:"aws_region"`
	LogGroupPrefix      string `mapstructure:"log_group_prefix"`
	EMRReleaseLabel     string `mapstructure:"emr_release_label"`
	EMRExecutionRoleARN string `mapstructure:"emr_execution_role_arn"`

	QueueBatchSize      int `mapstructure:"queue_batch_size"`
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`

	CORSOrigins string `mapstructure:"cors_origins"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	ToStdout bool   `mapstructure:"to_stdout"`
	ToFile   bool   `mapstructure:"to_file"`
	FilePath string `mapstructure:"file_path"`
}

// PollInterval is the worker wakeup period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// CORSOriginList splits the comma-separated origins setting.
func (c *Config) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("database_url", "postgres://localhost:5432/sparkpilot?sslmode=disable")
	v.SetDefault("dry_run_mode", true)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("log_group_prefix", "/sparkpilot/runs")
	v.SetDefault("emr_release_label", "emr-7.10.0-latest")
	v.SetDefault("emr_execution_role_arn", "arn:aws:iam::111111111111:role/SparkPilotEmrExecutionRole")
	v.SetDefault("queue_batch_size", 20)
	v.SetDefault("poll_interval_seconds", 15)
	v.SetDefault("cors_origins", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.to_stdout", true)
	v.SetDefault("log.to_file", false)
	v.SetDefault("log.file_path", "logs/sparkpilot.log")
}

// Load reads configuration from the environment and, when present, the
// config file at path (empty path skips the file).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SPARKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the workers or API cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.QueueBatchSize <= 0 {
		return fmt.Errorf("queue_batch_size must be positive, got %d", c.QueueBatchSize)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	if !c.DryRunMode {
		if strings.TrimSpace(c.EMRExecutionRoleARN) == "" {
			return fmt.Errorf("emr_execution_role_arn is required when dry_run_mode is off")
		}
		if strings.TrimSpace(c.AWSRegion) == "" {
			return fmt.Errorf("aws_region is required when dry_run_mode is off")
		}
	}
	return nil
}
