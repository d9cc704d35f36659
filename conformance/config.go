package conformance

import (
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
)

// Mode selects how the runner treats implementations the suite expects but
// the registry lacks.
type Mode string

const (
	// ModeStrict requires every implementation named by any vector to be
	// registered.
	ModeStrict Mode = "strict"
	// ModeSubset compares only the implementations listed in Config.Active and
	// reports every other expectation as skipped.
	ModeSubset Mode = "subset"
)

// ParseMode resolves a mode name. The empty string selects ModeStrict.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModeSubset:
		return m, nil
	default:
		return "", cfperr.Newf(cfperr.Config, "unknown mode %q (want %s or %s)", s, ModeStrict, ModeSubset)
	}
}

// DefaultTimeout bounds a single compute call when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config controls a run.
type Config struct {
	Mode    Mode
	Active  []string      // subset mode only
	Workers int           // 0 means GOMAXPROCS
	Timeout time.Duration // per compute call; 0 means DefaultTimeout
	Logger  *slog.Logger  // nil discards
}

// Validate checks the configuration without consulting a registry.
func (c Config) Validate() error {
	switch c.Mode {
	case "", ModeStrict:
		if len(c.Active) != 0 {
			return cfperr.Newf(cfperr.Config, "active implementations are only meaningful in %s mode", ModeSubset)
		}
	case ModeSubset:
		if len(c.Active) == 0 {
			return cfperr.Newf(cfperr.Config, "%s mode requires at least one active implementation", ModeSubset)
		}
		seen := map[string]struct{}{}
		for _, name := range c.Active {
			if _, dup := seen[name]; dup {
				return cfperr.Newf(cfperr.Config, "active implementation %q listed twice", name)
			}
			seen[name] = struct{}{}
		}
	default:
		return cfperr.Newf(cfperr.Config, "unknown mode %q", string(c.Mode))
	}
	if c.Workers < 0 {
		return cfperr.Newf(cfperr.Config, "workers must not be negative, got %d", c.Workers)
	}
	if c.Timeout < 0 {
		return cfperr.Newf(cfperr.Config, "timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func (c Config) mode() Mode {
	if c.Mode == "" {
		return ModeStrict
	}
	return c.Mode
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
