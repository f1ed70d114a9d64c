package config

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	vcserrors "github.com/KoenDierckx/puppetlabs-vcsrepo/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig loads a manifest from disk, validates it, and returns the resulting model.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, vcserrors.NewParseError(path, 0, err)
	}
	return Parse(path, data)
}

// Parse decodes and validates manifest bytes; name is used in errors.
func Parse(name string, data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, vcserrors.NewParseError(name, extractLine(err), err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// extractLine returns the first line number yaml reports in err, or 0.
func extractLine(err error) int {
	if err == nil {
		return 0
	}
	m := yamlLineRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return line
}
