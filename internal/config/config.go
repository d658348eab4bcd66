// Package config loads server configuration from a YAML file, defaults and
// NEXUS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/planarnexus/nexus-server/internal/game/autosave"
	"github.com/planarnexus/nexus-server/internal/game/replay"
)

// EnvPrefix prefixes every environment override, e.g. NEXUS_SERVER_ADDRESS.
const EnvPrefix = "NEXUS"

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Game     GameConfig      `mapstructure:"game"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Replay   replay.Config   `mapstructure:"replay"`
	AutoSave autosave.Config `mapstructure:"autosave"`
}

// ServerConfig configures the websocket relay.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	SequenceWindow  int           `mapstructure:"sequence_window"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures Postgres. An empty URL disables it.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds defaults for new sessions.
type GameConfig struct {
	Format        string `mapstructure:"format"`
	StartingLife  int    `mapstructure:"starting_life"`
	TurnOrderType string `mapstructure:"turn_order_type"`
}

// StorageConfig names the directories used when Postgres is disabled.
// Empty directories resolve under the XDG data home.
type StorageConfig struct {
	ReplayDir   string `mapstructure:"replay_dir"`
	AutoSaveDir string `mapstructure:"autosave_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_message_size", 64*1024)
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("server.sequence_window", replay.DefaultMaxAhead)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("game.format", "commander")
	v.SetDefault("game.starting_life", 40)
	v.SetDefault("game.turn_order_type", "clockwise")

	v.SetDefault("storage.replay_dir", "")
	v.SetDefault("storage.autosave_dir", "")

	rc := replay.DefaultConfig()
	v.SetDefault("replay.max_buffer_size", rc.MaxBufferSize)
	v.SetDefault("replay.max_game_age", rc.MaxGameAge)
	v.SetDefault("replay.late_join_warn_threshold", rc.LateJoinWarnThreshold)
	v.SetDefault("replay.base_delay", rc.BaseDelay)
	v.SetDefault("replay.fast_forward_speed", rc.FastForwardSpeed)

	ac := autosave.DefaultConfig()
	triggers := make([]string, len(ac.Triggers))
	for i, t := range ac.Triggers {
		triggers[i] = string(t)
	}
	v.SetDefault("autosave.enabled", ac.Enabled)
	v.SetDefault("autosave.triggers", triggers)
	v.SetDefault("autosave.max_auto_saves", ac.MaxAutoSaves)
	v.SetDefault("autosave.rotate_slots", ac.RotateSlots)
	v.SetDefault("autosave.cleanup_on_end", ac.CleanupOnEnd)
}

// Load reads path if it exists, then applies environment overrides. A
// missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	switch c.Game.TurnOrderType {
	case "clockwise", "random", "custom":
	default:
		return fmt.Errorf("game.turn_order_type: unknown type %q", c.Game.TurnOrderType)
	}
	if c.Game.StartingLife <= 0 {
		return fmt.Errorf("game.starting_life must be positive, got %d", c.Game.StartingLife)
	}
	if c.Server.Address == "" {
		return errors.New("server.address is required")
	}
	if err := c.AutoSave.Validate(); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}
