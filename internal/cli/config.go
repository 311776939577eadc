package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/KarpelesLab/iprewriter"
)

// Config is the on-disk shape of a rewriter configuration, sniffed by
// viper from yaml, toml, or json (spec §6's config-file supplement).
type Config struct {
	// Inputs holds one input-spec grammar string per input port, in
	// order; its index is the `input` argument to Rewriter.Push.
	Inputs []string `mapstructure:"inputs"`
	// Patterns names patterns available for `pattern NAME FOUTPUT
	// ROUTPUT` references in Inputs.
	Patterns map[string]string `mapstructure:"patterns"`
	// NumOutputs bounds the output indices nochange/pattern specs may
	// reference. Defaults to len(Inputs) if unset.
	NumOutputs int `mapstructure:"num_outputs"`
	// GCInterval overrides DefaultGCInterval.
	GCInterval time.Duration `mapstructure:"gc_interval"`
	// MetricsAddr, if set, is where replay serves /metrics.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

func loadConfig(vp *viper.Viper, path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	vp.SetConfigFile(path)
	if err := vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.NumOutputs == 0 {
		cfg.NumOutputs = len(cfg.Inputs)
	}
	return &cfg, nil
}

func buildRegistry(cfg *Config) (*iprewriter.PatternRegistry, error) {
	registry := iprewriter.NewPatternRegistry()
	for name, spec := range cfg.Patterns {
		pat, err := iprewriter.ParsePatternSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", name, err)
		}
		if err := registry.Register(name, pat); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func buildInputs(cfg *Config, registry *iprewriter.PatternRegistry) ([]iprewriter.InputSpec, error) {
	inputs := make([]iprewriter.InputSpec, 0, len(cfg.Inputs))
	for i, spec := range cfg.Inputs {
		is, err := iprewriter.ParseInputSpec(spec, cfg.NumOutputs, registry, nil)
		if err != nil {
			return nil, fmt.Errorf("input %d (%q): %w", i, spec, err)
		}
		inputs = append(inputs, is)
	}
	return inputs, nil
}

// buildRewriter loads cfg's patterns and inputs and runs the
// configure-time conflict analysis by constructing a Rewriter.
func buildRewriter(cfg *Config, opts ...iprewriter.Option) (*iprewriter.Rewriter, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	inputs, err := buildInputs(cfg, registry)
	if err != nil {
		return nil, err
	}
	if cfg.GCInterval > 0 {
		opts = append(opts, iprewriter.WithGCInterval(cfg.GCInterval))
	}
	return iprewriter.NewRewriter(inputs, opts...)
}
