package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/taskforge/handoff/internal/domain/model/handoff"
)

// Duration is a time.Duration that unmarshals from YAML strings like "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Handoff  HandoffConfig  `yaml:"handoff"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the storage backend: Postgres when a DSN is
// set (by file or HANDOFF_POSTGRES_DSN), otherwise the SQLite file.
type DatabaseConfig struct {
	PostgresDSN  string `yaml:"postgres_dsn"`
	SQLitePath   string `yaml:"sqlite_path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// HandoffConfig holds the lifecycle policy knobs.
type HandoffConfig struct {
	TTL           Duration `yaml:"ttl"`
	Retention     Duration `yaml:"retention"`
	ReapInterval  Duration `yaml:"reap_interval"`
	WaitCeiling   Duration `yaml:"wait_ceiling"`
	PollInterval  Duration `yaml:"poll_interval"`
	TimeoutAction string   `yaml:"timeout_action"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the shipped configuration.
func Default() Config {
	policy := handoff.DefaultPolicy()
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{
			SQLitePath:   "handoff.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Handoff: HandoffConfig{
			TTL:           Duration(policy.TTL),
			Retention:     Duration(policy.Retention),
			ReapInterval:  Duration(60 * time.Second),
			WaitCeiling:   Duration(policy.WaitCeiling),
			PollInterval:  Duration(policy.PollInterval),
			TimeoutAction: string(policy.OnTimeout),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from the YAML file at path (if present),
// then applies environment overrides. A missing file is not an error;
// defaults carry the process.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if _, err := handoff.ParseTimeoutAction(cfg.Handoff.TimeoutAction); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnvOverrides maps process environment onto the config.
// Only deployment-varying knobs are exposed this way.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HANDOFF_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("HANDOFF_POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("HANDOFF_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HANDOFF_TIMEOUT_ACTION"); v != "" {
		cfg.Handoff.TimeoutAction = v
	}
	if v := os.Getenv("HANDOFF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HANDOFF_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Handoff.TTL = Duration(parsed)
		}
	}
}

// Policy converts the lifecycle knobs into the domain policy.
func (c Config) Policy() handoff.Policy {
	action, err := handoff.ParseTimeoutAction(c.Handoff.TimeoutAction)
	if err != nil {
		action = handoff.TimeoutApprove
	}
	return handoff.Policy{
		TTL:          c.Handoff.TTL.Std(),
		Retention:    c.Handoff.Retention.Std(),
		WaitCeiling:  c.Handoff.WaitCeiling.Std(),
		PollInterval: c.Handoff.PollInterval.Std(),
		OnTimeout:    action,
	}
}
