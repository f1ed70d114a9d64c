package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	vcserrors "github.com/KoenDierckx/puppetlabs-vcsrepo/pkg/errors"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	validYAML := `version: "1.0"
settings:
  parallel: 4
  timeout: 90s
resources:
  - path: /srv/app
    ensure: latest
    source: https://git.example.com/app.git
    revision: main
    excludes: ["*.log"]
  - path: /srv/mirror.git
    ensure: mirror
    source:
      origin: git@git.example.com:app.git
      backup: https://backup.example.com/app.git
`

	invalidYAML := `version: [1, 0]
resources:
  - path: /srv/app
`

	badEnsure := `version: "1.0"
resources:
  - path: /srv/app
    ensure: exists
    source: https://git.example.com/app.git
`

	noResources := `version: "1.0"
`

	cases := []struct {
		name     string
		contents string
		assert   func(t *testing.T, cfg *Config, err error)
	}{
		{
			name:     "valid manifest is parsed",
			contents: validYAML,
			assert: func(t *testing.T, cfg *Config, err error) {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				require.Equal(t, 4, cfg.Settings.Parallel)
				require.Equal(t, Duration(90*time.Second), cfg.Settings.Timeout)
				require.Len(t, cfg.Resources, 2)
				require.Equal(t, "https://git.example.com/app.git", cfg.Resources[0].Source.URL)
				require.Equal(t, map[string]string{
					"origin": "git@git.example.com:app.git",
					"backup": "https://backup.example.com/app.git",
				}, cfg.Resources[1].Source.Remotes)
			},
		},
		{
			name:     "yaml syntax errors carry a line",
			contents: invalidYAML,
			assert: func(t *testing.T, cfg *Config, err error) {
				require.Nil(t, cfg)
				var parseErr *vcserrors.ParseError
				require.True(t, errors.As(err, &parseErr))
				require.Equal(t, 1, parseErr.Line)
			},
		},
		{
			name:     "unknown ensure is rejected before reconciliation",
			contents: badEnsure,
			assert: func(t *testing.T, cfg *Config, err error) {
				require.Nil(t, cfg)
				var validationErr *vcserrors.ValidationError
				require.True(t, errors.As(err, &validationErr))
				require.Equal(t, "resources[0].ensure", validationErr.Field)
				require.Contains(t, validationErr.Message, `"exists"`)
			},
		},
		{
			name:     "resources are required",
			contents: noResources,
			assert: func(t *testing.T, cfg *Config, err error) {
				var validationErr *vcserrors.ValidationError
				require.True(t, errors.As(err, &validationErr))
				require.Equal(t, "resources", validationErr.Field)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "vcsrepo.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.contents), 0o644))

			cfg, err := ParseConfig(path)
			tc.assert(t, cfg, err)
		})
	}
}

func TestParseConfig_MissingFile(t *testing.T) {
	_, err := ParseConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var parseErr *vcserrors.ParseError
	require.True(t, errors.As(err, &parseErr))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractLine(t *testing.T) {
	require.Equal(t, 0, extractLine(nil))
	require.Equal(t, 0, extractLine(errors.New("no position")))
	require.Equal(t, 12, extractLine(errors.New("yaml: line 12: mapping values are not allowed")))
}
