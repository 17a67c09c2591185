package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for fundd.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	DatabasePath  string           `yaml:"database"`
	Auth          AuthConfig       `yaml:"auth"`
	Engine        EngineConfig     `yaml:"engine"`
	Settlement    SettlementConfig `yaml:"settlement"`
	Sweeper       SweeperConfig    `yaml:"sweeper"`
	Display       DisplayConfig    `yaml:"display"`
	Log           LogConfig        `yaml:"log"`
}

// AuthConfig describes bearer authentication for the API.
type AuthConfig struct {
	// JWTSecret may be left empty and provided via FUNDD_JWT_SECRET instead.
	JWTSecret string `yaml:"jwt_secret"`
}

// EngineConfig tunes the fund engine.
type EngineConfig struct {
	ProposalTTL Duration `yaml:"proposal_ttl"`
	LockWait    Duration `yaml:"lock_wait"`
}

// SettlementConfig points at the settlement collaborator.
type SettlementConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// SweeperConfig schedules the proposal expiry sweep.
type SweeperConfig struct {
	Schedule string `yaml:"schedule"`
	Disabled bool   `yaml:"disabled"`
}

// DisplayConfig controls human-scaled rendering of smallest-unit amounts.
type DisplayConfig struct {
	Decimals int32 `yaml:"decimals"`
}

// LogConfig controls optional rotated file logging.
type LogConfig struct {
	FilePath   string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "/var/data/fundd.sqlite"
	}
	if cfg.Engine.ProposalTTL.Duration == 0 {
		cfg.Engine.ProposalTTL.Duration = 24 * time.Hour
	}
	if cfg.Engine.LockWait.Duration == 0 {
		cfg.Engine.LockWait.Duration = 3 * time.Second
	}
	if cfg.Settlement.Timeout.Duration == 0 {
		cfg.Settlement.Timeout.Duration = 30 * time.Second
	}
	if cfg.Sweeper.Schedule == "" {
		cfg.Sweeper.Schedule = "@every 1m"
	}
	if cfg.Display.Decimals == 0 {
		cfg.Display.Decimals = 9
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("FUNDD_JWT_SECRET")
	}
}

func validate(cfg Config) error {
	if cfg.Settlement.Endpoint == "" {
		return fmt.Errorf("settlement endpoint must be configured")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt secret must be configured (config or FUNDD_JWT_SECRET)")
	}
	if cfg.Display.Decimals < 0 {
		return fmt.Errorf("display decimals must not be negative")
	}
	return nil
}
