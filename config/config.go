package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StoreKind selects the state store backend
type StoreKind string

const (
	StoreFile   StoreKind = "file"
	StoreRedis  StoreKind = "redis"
	StoreMemory StoreKind = "memory"
)

// TempoConfig sets the clock
type TempoConfig struct {
	BPM          float64 `json:"bpm"`
	StepsPerBeat int     `json:"stepsPerBeat,omitempty"`
}

// SynthOutputConfig defines the synth MIDI output
type SynthOutputConfig struct {
	PortName string `json:"portName,omitempty"` // empty = first port
	Velocity uint8  `json:"velocity,omitempty"`
	GateMs   int    `json:"gateMs,omitempty"` // 0 = 80% of a step
}

// Gate returns the configured gate, or 0 when it should follow the tempo
func (s SynthOutputConfig) Gate() time.Duration {
	return time.Duration(s.GateMs) * time.Millisecond
}

// StoreConfig locates persisted sequencer state
type StoreConfig struct {
	Kind          StoreKind `json:"kind"`
	Dir           string    `json:"dir,omitempty"` // file store
	RedisAddr     string    `json:"redisAddr,omitempty"`
	RedisPassword string    `json:"redisPassword,omitempty"`
	RedisDB       int       `json:"redisDB,omitempty"`
	Key           string    `json:"key"`
	Format        string    `json:"format,omitempty"` // json or yaml
}

// HTTPConfig configures the control API
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"` // empty = disabled
}

// Config is the main configuration structure
type Config struct {
	Tempo       TempoConfig       `json:"tempo"`
	Strategy    string            `json:"strategy"`
	SynthOutput SynthOutputConfig `json:"synthOutput,omitempty"`
	Store       StoreConfig       `json:"store"`
	HTTP        HTTPConfig        `json:"http,omitempty"`
	Debug       bool              `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Tempo: TempoConfig{
			BPM:          120,
			StepsPerBeat: 4,
		},
		Strategy: "forward",
		SynthOutput: SynthOutputConfig{
			Velocity: 100,
		},
		Store: StoreConfig{
			Kind:   StoreFile,
			Key:    "seqState",
			Format: "json",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-stepseq"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// StateDir returns the default directory of the file store
func StateDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path over the defaults. A missing file
// yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values the engine would refuse later
func (c *Config) Validate() error {
	if !(c.Tempo.BPM > 0) {
		return fmt.Errorf("tempo.bpm must be positive, got %v", c.Tempo.BPM)
	}
	if c.Tempo.StepsPerBeat < 0 {
		return fmt.Errorf("tempo.stepsPerBeat must not be negative, got %d", c.Tempo.StepsPerBeat)
	}
	switch c.Store.Kind {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return errors.New("store.redisAddr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	switch c.Store.Format {
	case "", "json", "yaml":
	default:
		return fmt.Errorf("unknown store format %q", c.Store.Format)
	}
	if c.Store.Key == "" {
		return errors.New("store.key must not be empty")
	}
	return nil
}
