// Package config loads the server configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"

	"github.com/jaminalder/cubic-tic-tac-toe/internal/domain"
)

var ErrInvalid = errors.New("invalid config")

type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type GameConfig struct {
	Size      int    `yaml:"size" toml:"size"`
	WinLength int    `yaml:"win_length" toml:"win_length"`
	AI        string `yaml:"ai" toml:"ai"`
	// MaxSize caps the edge of games created or reconfigured through the server.
	MaxSize int `yaml:"max_size" toml:"max_size"`
	// ExhaustiveLines adds the short diagonals that windowing over full lines misses.
	ExhaustiveLines bool `yaml:"exhaustive_lines" toml:"exhaustive_lines"`
	LineCache       int  `yaml:"line_cache" toml:"line_cache"`
}

type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type RelayConfig struct {
	Scenes     []string `yaml:"scenes" toml:"scenes"`
	SendBuffer int      `yaml:"send_buffer" toml:"send_buffer"`
}

type LogConfig struct {
	Development bool `yaml:"development" toml:"development"`
}

// Config is the full server configuration.
type Config struct {
	HTTP  HTTPConfig  `yaml:"http" toml:"http"`
	Game  GameConfig  `yaml:"game" toml:"game"`
	Store StoreConfig `yaml:"store" toml:"store"`
	Relay RelayConfig `yaml:"relay" toml:"relay"`
	Log   LogConfig   `yaml:"log" toml:"log"`
}

// DefaultScenes are the demo scenes of the showcase.
var DefaultScenes = []string{
	"triangle", "newtons-cradle", "physics", "model-viewer", "tictactoe", "treadmill",
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP:  HTTPConfig{Addr: ":8080"},
		Game:  GameConfig{Size: 3, WinLength: 3, MaxSize: 9, LineCache: 16},
		Store: StoreConfig{Path: filepath.Join("data", "results.db")},
		Relay: RelayConfig{Scenes: append([]string(nil), DefaultScenes...), SendBuffer: 16},
	}
}

// Load reads path over the defaults. The format follows the extension: .toml for TOML,
// anything else is YAML. Unknown keys are rejected. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	} else {
		err = yaml.UnmarshalStrict(raw, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the game shape, AI seat and relay settings.
func (c Config) Validate() error {
	g := c.Game
	if g.MaxSize < 3 || g.MaxSize > domain.MaxSize {
		return fmt.Errorf("%w: game.max_size %d must be in [3, %d]", ErrInvalid, g.MaxSize, domain.MaxSize)
	}
	if g.Size < 3 || g.Size > g.MaxSize {
		return fmt.Errorf("%w: game.size %d must be in [3, %d]", ErrInvalid, g.Size, g.MaxSize)
	}
	if g.WinLength < 3 || g.WinLength > g.Size {
		return fmt.Errorf("%w: game.win_length %d must be in [3, %d]", ErrInvalid, g.WinLength, g.Size)
	}
	switch g.AI {
	case "", "A", "B":
	default:
		return fmt.Errorf("%w: game.ai %q must be empty, A or B", ErrInvalid, g.AI)
	}
	if g.LineCache < 1 {
		return fmt.Errorf("%w: game.line_cache must be positive", ErrInvalid)
	}
	if len(c.Relay.Scenes) == 0 {
		return fmt.Errorf("%w: relay.scenes is empty", ErrInvalid)
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("%w: relay.send_buffer must be positive", ErrInvalid)
	}
	return nil
}
