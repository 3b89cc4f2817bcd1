package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/qkdsim/bb84/bb84"
	"github.com/qkdsim/bb84/qsim"
	"gopkg.in/yaml.v3"
)

// Config describes a parameter sweep. Every combination of NValues and Errors
// is run Repeats times.
type Config struct {
	NValues    []int     `yaml:"n_values"`
	Errors     []float64 `yaml:"errors"`
	Delta      float64   `yaml:"delta"`
	Tolerance  float64   `yaml:"tolerance"`
	Backend    string    `yaml:"backend"`
	Repeats    int       `yaml:"repeats"`
	Workers    int       `yaml:"workers"`
	Eve        bool      `yaml:"eve"`
	BobPerfect bool      `yaml:"bob_perfect"`
	Seed       int64     `yaml:"seed"`
}

// DefaultConfig returns the sweep used when no file overrides it: n in
// {16..256}, 0 to 125 expected errors in steps of 5.
func DefaultConfig() *Config {
	cfg := &Config{
		NValues:   []int{16, 32, 64, 128, 256},
		Delta:     bb84.DefaultDelta,
		Tolerance: bb84.DefaultTolerance,
		Backend:   qsim.DefaultBackend,
		Repeats:   5,
	}
	for e := 0; e <= 125; e += 5 {
		cfg.Errors = append(cfg.Errors, float64(e))
	}
	return cfg
}

// LoadConfig reads a YAML sweep file. Keys absent from the file keep their
// DefaultConfig values; unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse batch config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the sweep as a whole and every parameter combination in
// it, so that a batch never starts with a job that would be rejected.
func (c *Config) Validate() error {
	switch {
	case len(c.NValues) == 0:
		return errors.New("batch config: no n values")
	case len(c.Errors) == 0:
		return errors.New("batch config: no error levels")
	case c.Repeats < 1:
		return fmt.Errorf("batch config: repeats must be >= 1, got %d", c.Repeats)
	case c.Workers < 0:
		return fmt.Errorf("batch config: workers must be >= 0, got %d", c.Workers)
	}
	if !knownBackend(c.Backend) {
		return fmt.Errorf("batch config: %w: %q", qsim.ErrUnknownBackend, c.Backend)
	}
	for _, n := range c.NValues {
		for _, e := range c.Errors {
			if err := c.params(n, e).Validate(); err != nil {
				return fmt.Errorf("batch config: %w", err)
			}
		}
	}
	return nil
}

// EffectiveWorkers is the size of the worker pool: Workers clamped to
// [1, NumCPU], with 0 meaning NumCPU.
func (c *Config) EffectiveWorkers() int {
	cpus := runtime.NumCPU()
	if c.Workers == 0 || c.Workers > cpus {
		return cpus
	}
	return c.Workers
}

func (c *Config) params(n int, avgErrors float64) bb84.Params {
	return bb84.Params{
		N:          n,
		Delta:      c.Delta,
		Tolerance:  c.Tolerance,
		AvgErrors:  avgErrors,
		Eve:        c.Eve,
		BobPerfect: c.BobPerfect,
	}
}

func knownBackend(name string) bool {
	if name == "" {
		return true
	}
	for _, n := range qsim.Names() {
		if n == name {
			return true
		}
	}
	return false
}
