package script

import (
	stderrors "errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/refptr"
	"github.com/wippyai/refptr/alloc"
	"github.com/wippyai/refptr/errors"
)

// Config controls how a Runner allocates control blocks.
type Config struct {
	// Budget caps live control block bytes, e.g. "4KiB". Empty means no cap.
	Budget string `yaml:"budget,omitempty"`
	// Track records live blocks and makes Close report leaks.
	Track bool `yaml:"track,omitempty"`
	// Verbose enables debug logging in the CLI.
	Verbose bool `yaml:"verbose,omitempty"`
}

// LoadConfig reads a YAML config file. A missing file yields the zero Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Parse(errors.PhaseConfig, path, err)
	}
	return &cfg, nil
}

// Merge returns c with the non-zero fields of o applied on top.
func (c Config) Merge(o Config) Config {
	if o.Budget != "" {
		c.Budget = o.Budget
	}
	c.Track = c.Track || o.Track
	c.Verbose = c.Verbose || o.Verbose
	return c
}

// allocators is the allocator chain built from a Config.
type allocators struct {
	top      refptr.Allocator
	counting *alloc.Counting
	limited  *alloc.Limited
	tracker  *alloc.Tracker
}

func (c Config) build() (*allocators, error) {
	a := &allocators{}
	var inner refptr.Allocator
	if c.Track {
		a.tracker = alloc.NewTracker(nil)
		inner = a.tracker
	}
	if c.Budget != "" {
		n, err := alloc.ParseBudget(c.Budget)
		if err != nil {
			return nil, errors.Parse(errors.PhaseConfig, "budget", err)
		}
		a.limited = alloc.NewLimited(inner, n)
		inner = a.limited
	}
	a.counting = alloc.NewCounting(inner)
	a.top = a.counting
	return a, nil
}
