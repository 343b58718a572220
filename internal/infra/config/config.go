package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "settings/base.yaml"

type Config struct {
	Token          string `yaml:"-"` // sólo por env (DISCORD_BOT_TOKEN)
	GuildID        int64  `yaml:"guild_id"`
	GuildErrorText string `yaml:"guild_error_text"`
	DatabaseURL    string `yaml:"database_url"`

	Roles      RoleConfig     `yaml:"roles"`
	PatrolTime PatrolTime     `yaml:"patrol_time"`
	Database   DatabaseConfig `yaml:"database"`
}

type RoleConfig struct {
	LPD int64 `yaml:"lpd"`
}

type PatrolTime struct {
	MonitoredCategories  []int64  `yaml:"monitored_categories"`
	MonitoredChannels    []int64  `yaml:"monitored_channels"`
	IgnoredChannels      []int64  `yaml:"ignored_channels"`
	BadMainChannelStarts []string `yaml:"bad_main_channel_starts"`
}

type DatabaseConfig struct {
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

func defaults() Config {
	return Config{
		GuildErrorText: "The bot is not in the configured guild.",
		Database: DatabaseConfig{
			MaxConns:    100,
			MinConns:    5,
			ConnTimeout: 8 * time.Second,
		},
	}
}

// Load lee el YAML base, mezcla encima el local.yaml hermano (si existe) y después
// aplica los overrides por env. Los secretos nunca van en el YAML.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := defaults()
	if err := mergeFile(&cfg, path, true); err != nil {
		return Config{}, err
	}
	local := filepath.Join(filepath.Dir(path), "local.yaml")
	if local != filepath.Clean(path) {
		if err := mergeFile(&cfg, local, false); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	get := func(k string) string { return os.Getenv(k) }

	cfg.Token = get("DISCORD_BOT_TOKEN")
	if v := get("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := get("LOM_GUILD_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("LOM_GUILD_ID: %w", err)
		}
		cfg.GuildID = id
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("faltante env DISCORD_BOT_TOKEN"))
	}
	if c.GuildID == 0 {
		errs = append(errs, errors.New("guild_id is required"))
	}
	if c.Roles.LPD == 0 {
		errs = append(errs, errors.New("roles.lpd is required"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url (or env DATABASE_URL) is required"))
	}
	return errors.Join(errs...)
}

// Set convierte una lista de snowflakes del YAML en un set.
func Set(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
