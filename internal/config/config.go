package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"studiobook/internal/auth"
)

// Storage backend names accepted in config.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
	} `yaml:"server"`

	Storage struct {
		Backend          string `yaml:"backend"`
		Fallback         string `yaml:"fallback"`
		OpTimeoutSeconds int    `yaml:"op_timeout_seconds"`

		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`

		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`

		Redis struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Auth struct {
		Secret        string          `yaml:"secret"`
		TokenTTLHours int             `yaml:"token_ttl_hours"`
		Operators     []auth.Operator `yaml:"operators"`
	} `yaml:"auth"`

	Telegram struct {
		Enabled  bool   `yaml:"enabled"`
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Sheets struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		SheetName       string `yaml:"sheet_name"`
	} `yaml:"sheets"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendSQLite
	}
	switch cfg.Storage.Backend {
	case BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	switch cfg.Storage.Fallback {
	case "", BackendSQLite, BackendPostgres, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown fallback backend %q", cfg.Storage.Fallback)
	}
	if cfg.Storage.Fallback == cfg.Storage.Backend {
		return nil, fmt.Errorf("fallback backend must differ from primary")
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/studiobook.db"
	}
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required")
	}

	usesSQLite := cfg.Storage.Backend == BackendSQLite || cfg.Storage.Fallback == BackendSQLite
	if usesSQLite {
		if err = os.MkdirAll(filepath.Dir(cfg.Storage.SQLite.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// StorageOpTimeout bounds a single storage operation.
func (c *Config) StorageOpTimeout() time.Duration {
	if c.Storage.OpTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Storage.OpTimeoutSeconds) * time.Second
}

func (c *Config) TokenTTL() time.Duration {
	if c.Auth.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}
