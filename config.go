package stitch

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/stitchvm/stitch/internal/isa"
)

// Config selects the engine-level behavior of a compilation.
type Config struct {
	// Threading picks the interpreter dispatch convention encoded into head
	// slots: "token" or "direct".
	Threading string `toml:"threading"`

	// Intercept wraps every function in on_enter/on_exit hook instructions.
	Intercept bool `toml:"intercept"`

	// ValidationOnly withholds callee and global resolution: bookkeeping and
	// error detection run, emission of the affected instructions is skipped.
	ValidationOnly bool `toml:"validation_only"`

	// Logger receives per-function debug records. Nil disables logging.
	Logger *zap.Logger `toml:"-"`

	// Handlers is the per-opcode handler address table required by direct
	// threading.
	Handlers []uintptr `toml:"-"`
}

// DefaultConfig returns the token-threaded default.
func DefaultConfig() *Config {
	return &Config{Threading: "token"}
}

// LoadConfigFile reads a TOML engine configuration.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) coder() (isa.HeadCoder, error) {
	switch c.Threading {
	case "", "token":
		return isa.TokenCoder(), nil
	case "direct":
		if len(c.Handlers) == 0 {
			return isa.HeadCoder{}, fmt.Errorf("direct threading requires a handler table")
		}
		return isa.DirectCoder(c.Handlers)
	default:
		return isa.HeadCoder{}, fmt.Errorf("unknown threading model %q", c.Threading)
	}
}
