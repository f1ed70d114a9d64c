package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Defaults are the process-wide settings read from the environment. A
// manifest's settings block overrides them.
type Defaults struct {
	Git      string        `env:"VCSREPO_GIT,default=git"`
	Timeout  time.Duration `env:"VCSREPO_TIMEOUT,default=10m"`
	LogLevel string        `env:"VCSREPO_LOG_LEVEL,default=info"`
	Parallel int           `env:"VCSREPO_PARALLEL,default=1"`
}

// LoadDefaults reads Defaults from the process environment.
func LoadDefaults(ctx context.Context) (Defaults, error) {
	return loadDefaults(ctx, envconfig.OsLookuper())
}

func loadDefaults(ctx context.Context, lookuper envconfig.Lookuper) (Defaults, error) {
	var d Defaults
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &d, Lookuper: lookuper}); err != nil {
		return Defaults{}, fmt.Errorf("reading environment: %w", err)
	}
	if d.Parallel < 1 {
		d.Parallel = 1
	}
	return d, nil
}

// Effective merges manifest settings over environment defaults.
func (s Settings) Effective(d Defaults) Settings {
	out := s
	if out.Parallel == 0 {
		out.Parallel = d.Parallel
	}
	if out.Timeout == 0 {
		out.Timeout = Duration(d.Timeout)
	}
	if out.Git == "" {
		out.Git = d.Git
	}
	if out.LogLevel == "" {
		out.LogLevel = d.LogLevel
	}
	return out
}
