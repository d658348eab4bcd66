package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Trigger names a game moment that may produce an auto-save.
type Trigger string

const (
	TriggerEndOfTurn     Trigger = "end_of_turn"
	TriggerAfterCombat   Trigger = "after_combat"
	TriggerPriorityPass  Trigger = "priority_pass"
	TriggerPreModal      Trigger = "pre_modal"
	TriggerCardPlayed    Trigger = "card_played"
	TriggerSpellResolved Trigger = "spell_resolved"
	TriggerLifeGain      Trigger = "life_gain"
	TriggerCreatureDeath Trigger = "creature_death"
)

// AllTriggers lists every trigger in a stable order.
func AllTriggers() []Trigger {
	return []Trigger{
		TriggerEndOfTurn,
		TriggerAfterCombat,
		TriggerPriorityPass,
		TriggerPreModal,
		TriggerCardPlayed,
		TriggerSpellResolved,
		TriggerLifeGain,
		TriggerCreatureDeath,
	}
}

func (t Trigger) Valid() bool {
	for _, known := range AllTriggers() {
		if t == known {
			return true
		}
	}
	return false
}

// Config controls when auto-saves are taken and how many are kept.
type Config struct {
	Enabled      bool      `mapstructure:"enabled" json:"enabled"`
	Triggers     []Trigger `mapstructure:"triggers" json:"triggers"`
	MaxAutoSaves int       `mapstructure:"max_auto_saves" json:"maxAutoSaves"`
	RotateSlots  bool      `mapstructure:"rotate_slots" json:"rotateSlots"`
	CleanupOnEnd bool      `mapstructure:"cleanup_on_end" json:"cleanupOnEnd"`
}

// DefaultConfig saves at the natural checkpoints of a turn. Priority passes
// are off by default; they fire several times per step.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Triggers: []Trigger{
			TriggerEndOfTurn,
			TriggerAfterCombat,
			TriggerPreModal,
			TriggerCardPlayed,
			TriggerSpellResolved,
			TriggerLifeGain,
			TriggerCreatureDeath,
		},
		MaxAutoSaves: 5,
		RotateSlots:  true,
		CleanupOnEnd: true,
	}
}

// Has reports whether trigger is enabled.
func (c Config) Has(trigger Trigger) bool {
	for _, t := range c.Triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// WithTrigger returns a copy with trigger switched on or off.
func (c Config) WithTrigger(trigger Trigger, on bool) Config {
	out := make([]Trigger, 0, len(c.Triggers)+1)
	for _, t := range c.Triggers {
		if t != trigger {
			out = append(out, t)
		}
	}
	if on {
		out = append(out, trigger)
	}
	c.Triggers = out
	return c
}

// Validate rejects unknown triggers and a non-positive slot count.
func (c Config) Validate() error {
	if c.MaxAutoSaves <= 0 {
		return fmt.Errorf("max auto-saves must be positive, got %d", c.MaxAutoSaves)
	}
	for _, t := range c.Triggers {
		if !t.Valid() {
			return fmt.Errorf("unknown auto-save trigger %q", t)
		}
	}
	return nil
}

const configFile = "planar-nexus/autosave.json"

// ConfigStore persists Config as JSON. An empty path resolves to the XDG
// config home.
type ConfigStore struct {
	path string
}

func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// Load returns the stored config, or DefaultConfig when none was saved.
func (s *ConfigStore) Load() (Config, error) {
	path := s.path
	if path == "" {
		found, err := xdg.SearchConfigFile(configFile)
		if err != nil {
			return DefaultConfig(), nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read auto-save config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse auto-save config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg, creating parent directories as needed.
func (s *ConfigStore) Save(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	path := s.path
	if path == "" {
		resolved, err := xdg.ConfigFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to resolve auto-save config path: %w", err)
		}
		path = resolved
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode auto-save config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o664); err != nil {
		return fmt.Errorf("failed to write auto-save config: %w", err)
	}
	return nil
}
