package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	d, err := loadDefaults(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, Defaults{Git: "git", Timeout: 10 * time.Minute, LogLevel: "info", Parallel: 1}, d)

	d, err = loadDefaults(context.Background(), envconfig.MapLookuper(map[string]string{
		"VCSREPO_GIT":       "/opt/git/bin/git",
		"VCSREPO_TIMEOUT":   "45s",
		"VCSREPO_LOG_LEVEL": "debug",
		"VCSREPO_PARALLEL":  "0",
	}))
	require.NoError(t, err)
	assert.Equal(t, Defaults{Git: "/opt/git/bin/git", Timeout: 45 * time.Second, LogLevel: "debug", Parallel: 1}, d)

	_, err = loadDefaults(context.Background(), envconfig.MapLookuper(map[string]string{"VCSREPO_TIMEOUT": "later"}))
	assert.Error(t, err)
}

func TestSettingsEffective(t *testing.T) {
	defaults := Defaults{Git: "git", Timeout: time.Minute, LogLevel: "info", Parallel: 2}

	assert.Equal(t, Settings{Parallel: 2, Timeout: Duration(time.Minute), Git: "git", LogLevel: "info"}, Settings{}.Effective(defaults))

	manifest := Settings{Parallel: 8, Timeout: Duration(time.Second), Git: "/usr/local/bin/git", LogLevel: "warn", DryRun: true}
	assert.Equal(t, manifest, manifest.Effective(defaults))
}
