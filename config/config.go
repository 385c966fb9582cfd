package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const DefaultDBPath = "kv.db"

// Backup configures S3-compatible storage used by `flatkv backup`
type Backup struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
	Region   string `yaml:"region"`
	// prepended to remote names
	Prefix string `yaml:"prefix"`
	// use http instead of https, for local minio
	Insecure bool `yaml:"insecure"`
}

type Config struct {
	DBPath  string `yaml:"db"`
	LogDir  string `yaml:"log_dir"`
	Verbose bool   `yaml:"verbose"`
	Backup  Backup `yaml:"backup"`
}

// Load reads YAML config from path and applies FLATKV_* environment
// overrides. With empty path only environment and defaults are used.
// A path that was given but can't be read is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	return &cfg, nil
}

func setFromEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// applyEnvOverrides allows environment variables to override YAML values
func applyEnvOverrides(cfg *Config) error {
	setFromEnv(&cfg.DBPath, "FLATKV_DB")
	setFromEnv(&cfg.LogDir, "FLATKV_LOG_DIR")
	setFromEnv(&cfg.Backup.Endpoint, "FLATKV_S3_ENDPOINT")
	setFromEnv(&cfg.Backup.Bucket, "FLATKV_S3_BUCKET")
	setFromEnv(&cfg.Backup.Access, "FLATKV_S3_ACCESS")
	setFromEnv(&cfg.Backup.Secret, "FLATKV_S3_SECRET")
	setFromEnv(&cfg.Backup.Region, "FLATKV_S3_REGION")
	setFromEnv(&cfg.Backup.Prefix, "FLATKV_S3_PREFIX")

	if v := os.Getenv("FLATKV_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FLATKV_VERBOSE value: %w", err)
		}
		cfg.Verbose = verbose
	}
	return nil
}

// Validate checks that backup settings are complete
func (b *Backup) Validate() error {
	if b.Endpoint == "" || b.Bucket == "" || b.Access == "" || b.Secret == "" {
		return fmt.Errorf("backup needs endpoint, bucket, access and secret (set in config file or FLATKV_S3_* environment variables)")
	}
	return nil
}
