// Package runconfig loads the YAML file that describes a conformance run: which
// implementations exist, how to reach them, and how the runner behaves.
//
//	mode: subset
//	active: [ts]
//	workers: 4
//	timeout: 10s
//	hash: sha256
//	implementations:
//	  ts:   {builtin: go}
//	  jcs:  {builtin: cyberphone}
//	  rust: {command: [./target/release/fp], input: stdin, env: {RUST_LOG: "off"}}
//
// Relative command paths and working directories resolve against the directory
// holding the file.
package runconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lattice-substrate/canon-fingerprint/cfperr"
	"github.com/lattice-substrate/canon-fingerprint/cfphash"
	"github.com/lattice-substrate/canon-fingerprint/conformance"
	"github.com/lattice-substrate/canon-fingerprint/extimpl"
	"github.com/lattice-substrate/canon-fingerprint/vectors"
)

// Builtin implementation names.
const (
	BuiltinGo         = "go"
	BuiltinCyberphone = "cyberphone"
)

// Config is the decoded runner configuration.
type Config struct {
	Mode            string                    `yaml:"mode"`
	Active          []string                  `yaml:"active"`
	Workers         int                       `yaml:"workers"`
	Timeout         string                    `yaml:"timeout"`
	Hash            string                    `yaml:"hash"`
	Implementations map[string]Implementation `yaml:"implementations"`

	baseDir string
}

// Implementation describes one registry entry. Exactly one of Builtin and
// Command is set.
type Implementation struct {
	Builtin string            `yaml:"builtin"`
	Command []string          `yaml:"command"`
	Input   string            `yaml:"input"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
}

// Default returns the configuration used when no file is given: strict mode
// with the in-process engine registered as "ts", the reference
// implementation key of the shared suite.
func Default() *Config {
	return &Config{
		Mode: string(conformance.ModeStrict),
		Hash: string(cfphash.Default),
		Implementations: map[string]Implementation{
			"ts": {Builtin: BuiltinGo},
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cfperr.Wrap(cfperr.Config, -1, "read runner config", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, cfperr.Wrap(cfperr.Config, -1, "resolve config directory", err)
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Parse decodes and validates YAML. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, cfperr.Newf(cfperr.Config, "runner config is empty")
		}
		return nil, cfperr.Wrap(cfperr.Config, -1, "decode runner config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field. It is called by Load and Parse; callers that
// modify a Config afterwards should call it again.
func (c *Config) Validate() error {
	mode, err := conformance.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if _, err := c.timeout(); err != nil {
		return err
	}
	alg, err := cfphash.ParseAlgorithm(c.Hash)
	if err != nil {
		return err
	}
	if len(c.Implementations) == 0 {
		return cfperr.Newf(cfperr.Config, "no implementations configured")
	}
	for _, name := range c.names() {
		impl := c.Implementations[name]
		if err := validateImplementation(name, impl); err != nil {
			return err
		}
		if impl.Builtin == BuiltinCyberphone && alg != cfphash.SHA256 {
			return cfperr.Newf(cfperr.Config, "implementation %q: builtin %s only produces %s fingerprints", name, BuiltinCyberphone, cfphash.SHA256)
		}
	}
	for _, name := range c.Active {
		if _, ok := c.Implementations[name]; !ok {
			return cfperr.Newf(cfperr.Config, "active implementation %q is not configured", name)
		}
	}
	return conformance.Config{Mode: mode, Active: c.Active, Workers: c.Workers}.Validate()
}

func validateImplementation(name string, impl Implementation) error {
	if !vectors.ValidImplementationName(name) {
		return cfperr.Newf(cfperr.Config, "invalid implementation name %q", name)
	}
	switch {
	case impl.Builtin != "" && len(impl.Command) != 0:
		return cfperr.Newf(cfperr.Config, "implementation %q sets both builtin and command", name)
	case impl.Builtin != "":
		if impl.Builtin != BuiltinGo && impl.Builtin != BuiltinCyberphone {
			return cfperr.Newf(cfperr.Config, "implementation %q: unknown builtin %q", name, impl.Builtin)
		}
		if impl.Input != "" || len(impl.Env) != 0 || impl.Dir != "" {
			return cfperr.Newf(cfperr.Config, "implementation %q: input, env and dir apply only to commands", name)
		}
	case len(impl.Command) != 0:
		if impl.Command[0] == "" {
			return cfperr.Newf(cfperr.Config, "implementation %q: empty command", name)
		}
		if _, err := extimpl.ParseInputMode(impl.Input); err != nil {
			return fmt.Errorf("implementation %q: %w", name, err)
		}
	default:
		return cfperr.Newf(cfperr.Config, "implementation %q sets neither builtin nor command", name)
	}
	return nil
}

func (c *Config) names() []string {
	names := make([]string, 0, len(c.Implementations))
	for name := range c.Implementations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, cfperr.Wrap(cfperr.Config, -1, fmt.Sprintf("invalid timeout %q", c.Timeout), err)
	}
	if d <= 0 {
		return 0, cfperr.Newf(cfperr.Config, "timeout must be positive, got %s", c.Timeout)
	}
	return d, nil
}

// Algorithm returns the configured digest.
func (c *Config) Algorithm() (cfphash.Algorithm, error) {
	return cfphash.ParseAlgorithm(c.Hash)
}

// Build turns the configuration into a populated registry and runner config.
func (c *Config) Build(logger *slog.Logger) (*conformance.Registry, conformance.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, conformance.Config{}, err
	}
	alg, _ := c.Algorithm()
	mode, _ := conformance.ParseMode(c.Mode)
	timeout, _ := c.timeout()

	reg := conformance.NewRegistry()
	for _, name := range c.names() {
		impl := c.Implementations[name]
		var built conformance.Implementation
		switch {
		case impl.Builtin == BuiltinGo:
			built = conformance.LocalEngine(alg)
		case impl.Builtin == BuiltinCyberphone:
			built = conformance.CyberphoneEngine()
		default:
			input, _ := extimpl.ParseInputMode(impl.Input)
			built = &extimpl.Command{
				Argv:  c.resolveArgv(impl.Command),
				Env:   impl.Env,
				Input: input,
				Dir:   c.resolveDir(impl.Dir),
			}
		}
		if err := reg.Register(name, built); err != nil {
			return nil, conformance.Config{}, err
		}
	}

	return reg, conformance.Config{
		Mode:    mode,
		Active:  append([]string(nil), c.Active...),
		Workers: c.Workers,
		Timeout: timeout,
		Logger:  logger,
	}, nil
}

// resolveArgv anchors a relative program path containing a separator, such as
// ./bin/fp, to the config directory. Bare names are left for PATH lookup.
func (c *Config) resolveArgv(argv []string) []string {
	out := append([]string(nil), argv...)
	if c.baseDir != "" && !filepath.IsAbs(out[0]) && filepath.Base(out[0]) != out[0] {
		out[0] = filepath.Join(c.baseDir, out[0])
	}
	return out
}

func (c *Config) resolveDir(dir string) string {
	if c.baseDir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.baseDir, dir)
}
