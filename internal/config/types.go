package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
)

// ProviderGit is the only supported provider.
const ProviderGit = "git"

// Config is a vcsrepo manifest.
type Config struct {
	Version   string     `yaml:"version" validate:"required,semver"`
	Settings  Settings   `yaml:"settings,omitempty"`
	Resources []Resource `yaml:"resources" validate:"required,min=1,dive"`
}

// Settings holds run-wide parameters. Zero values fall back to Defaults.
type Settings struct {
	Parallel int      `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=64"`
	Timeout  Duration `yaml:"timeout,omitempty"`
	Git      string   `yaml:"git,omitempty"`
	DryRun   bool     `yaml:"dry_run,omitempty"`
	LogLevel string   `yaml:"log_level,omitempty" validate:"omitempty,oneof=trace debug info warn error"`
}

// Resource is the manifest form of one managed path.
type Resource struct {
	Path          string   `yaml:"path" validate:"required"`
	Ensure        string   `yaml:"ensure" validate:"required,ensure"`
	Provider      string   `yaml:"provider,omitempty" validate:"omitempty,provider"`
	Source        Source   `yaml:"source,omitempty"`
	Revision      string   `yaml:"revision,omitempty"`
	Depth         int      `yaml:"depth,omitempty" validate:"omitempty,min=1"`
	Remote        string   `yaml:"remote,omitempty" validate:"omitempty,remote_name"`
	Excludes      []string `yaml:"excludes,omitempty"`
	Owner         string   `yaml:"owner,omitempty"`
	Group         string   `yaml:"group,omitempty"`
	User          string   `yaml:"user,omitempty"`
	Identity      string   `yaml:"identity,omitempty"`
	Trust         bool     `yaml:"trust,omitempty"`
	SkipHooks     bool     `yaml:"skip_hooks,omitempty"`
	Force         bool     `yaml:"force,omitempty"`
	SafeDirectory bool     `yaml:"safe_directory,omitempty"`
	Submodules    bool     `yaml:"submodules,omitempty"`
	KeepRemote    bool     `yaml:"keep_remote,omitempty"`
}

// Source is either a single URL for the resource's remote or a mapping of
// remote names to URLs.
type Source struct {
	URL     string
	Remotes map[string]string
}

// IsZero reports an unset source.
func (s Source) IsZero() bool {
	return s.URL == "" && len(s.Remotes) == 0
}

// UnmarshalYAML accepts a scalar URL or a mapping.
func (s *Source) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s.URL = strings.TrimSpace(value.Value)
		s.Remotes = nil
		return nil
	case yaml.MappingNode:
		var remotes map[string]string
		if err := value.Decode(&remotes); err != nil {
			return err
		}
		s.URL = ""
		s.Remotes = remotes
		return nil
	default:
		return fmt.Errorf("line %d: source must be a URL or a mapping of remote names to URLs", value.Line)
	}
}

// MarshalYAML writes the scalar form when only a URL is set.
func (s Source) MarshalYAML() (any, error) {
	if len(s.Remotes) == 0 {
		return s.URL, nil
	}
	return s.Remotes, nil
}

// Entries returns the source as a remote-name to URL map, keying a scalar
// URL under remote.
func (s Source) Entries(remote string) map[string]string {
	if remote == "" {
		remote = vcsrepo.DefaultRemote
	}
	out := make(map[string]string, len(s.Remotes)+1)
	for name, url := range s.Remotes {
		out[name] = strings.TrimSpace(url)
	}
	if s.URL != "" {
		out[remote] = s.URL
	}
	return out
}

// RemoteNames lists the configured remote names in sorted order.
func (s Source) RemoteNames(remote string) []string {
	entries := s.Entries(remote)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Duration accepts Go duration strings ("5m") or integer seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, raw)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// DesiredState converts the resource into the reconciler's input.
func (r Resource) DesiredState() (vcsrepo.DesiredState, error) {
	ensure, err := vcsrepo.ParseEnsure(r.Ensure)
	if err != nil {
		return vcsrepo.DesiredState{}, err
	}
	path := r.Path
	if path != "" {
		path = filepath.Clean(path)
	}
	return vcsrepo.DesiredState{
		Path:          path,
		Ensure:        ensure,
		Sources:       r.Source.Entries(r.Remote),
		Revision:      strings.TrimSpace(r.Revision),
		Depth:         r.Depth,
		Remote:        r.Remote,
		Excludes:      append([]string(nil), r.Excludes...),
		Owner:         r.Owner,
		Group:         r.Group,
		User:          r.User,
		Identity:      r.Identity,
		Trust:         r.Trust,
		SkipHooks:     r.SkipHooks,
		Force:         r.Force,
		SafeDirectory: r.SafeDirectory,
		Submodules:    r.Submodules,
		KeepRemote:    r.KeepRemote,
	}, nil
}

// DesiredStates converts every resource, in manifest order.
func (c *Config) DesiredStates() ([]vcsrepo.DesiredState, error) {
	out := make([]vcsrepo.DesiredState, 0, len(c.Resources))
	for i, res := range c.Resources {
		d, err := res.DesiredState()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fieldForResource(i, "ensure"), err)
		}
		out = append(out, d)
	}
	return out, nil
}
