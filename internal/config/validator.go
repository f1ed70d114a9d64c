package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/vcsrepo"
	vcserrors "github.com/KoenDierckx/puppetlabs-vcsrepo/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	semverPattern     = regexp.MustCompile(`^\d+\.\d+(?:\.\d+)?(?:-[0-9A-Za-z-.]+)?(?:\+[0-9A-Za-z-.]+)?$`)
	sshGitPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+:[a-zA-Z0-9._/~-]+$`)
	remoteNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)
	networkSchemes    = map[string]struct{}{"http": {}, "https": {}, "ssh": {}, "git": {}, "git+ssh": {}, "ssh+git": {}}
)

// validatorInstance configures and returns the shared validator instance.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
			return semverPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("ensure", func(fl validator.FieldLevel) bool {
			_, err := vcsrepo.ParseEnsure(fl.Field().String())
			return err == nil
		})

		_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
			return fl.Field().String() == ProviderGit
		})

		_ = v.RegisterValidation("remote_name", func(fl validator.FieldLevel) bool {
			return validRemoteName(fl.Field().String())
		})

		_ = v.RegisterValidation("git_url", func(fl validator.FieldLevel) bool {
			return validGitURL(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns the shared validator for use outside the package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

func validRemoteName(name string) bool {
	return remoteNamePattern.MatchString(name) && !strings.Contains(name, "..") && !strings.HasSuffix(name, "/")
}

// validGitURL accepts the URL forms git itself understands: network URLs
// with a host, scp-like ssh addresses, file URLs and absolute paths.
func validGitURL(raw string) bool {
	if raw == "" {
		return true
	}
	if strings.TrimSpace(raw) != raw || strings.ContainsAny(raw, "\x00\n") {
		return false
	}

	if parsed, err := url.Parse(raw); err == nil && parsed.Scheme != "" {
		scheme := strings.ToLower(parsed.Scheme)
		if _, ok := networkSchemes[scheme]; ok {
			return parsed.Host != ""
		}
		if scheme == "file" {
			return parsed.Path != ""
		}
	}

	if sshGitPattern.MatchString(raw) {
		return true
	}

	return filepath.IsAbs(raw) && !strings.Contains(raw, "/../") && !strings.HasSuffix(raw, "/..")
}

// ValidateConfig performs schema and cross-field validation on the manifest.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return vcserrors.NewValidationError("manifest", "manifest is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(cfg.Resources))
	for i, res := range cfg.Resources {
		if err := ValidateResource(i, res); err != nil {
			return err
		}

		path := filepath.Clean(res.Path)
		if first, dup := seen[path]; dup {
			return vcserrors.NewValidationError(fieldForResource(i, "path"),
				fmt.Sprintf("path %q is already managed by resources[%d]", path, first), nil)
		}
		seen[path] = i
	}
	return nil
}

// ValidateResource checks one resource independent of the others.
func ValidateResource(index int, res Resource) error {
	v := validatorInstance()
	if err := v.Struct(res); err != nil {
		return convertResourceError(index, err)
	}

	if !filepath.IsAbs(res.Path) {
		return vcserrors.NewValidationError(fieldForResource(index, "path"), fmt.Sprintf("path %q must be absolute", res.Path), nil)
	}

	remote := res.Remote
	if remote == "" {
		remote = vcsrepo.DefaultRemote
	}
	entries := res.Source.Entries(remote)
	for _, name := range res.Source.RemoteNames(remote) {
		if !validRemoteName(name) {
			return vcserrors.NewValidationError(fieldForResource(index, "source"), fmt.Sprintf("invalid remote name %q", name), nil)
		}
		if entries[name] == "" || !validGitURL(entries[name]) {
			return vcserrors.NewValidationError(fieldForResource(index, "source."+name), fmt.Sprintf("invalid git URL %q", entries[name]), nil)
		}
	}

	ensure, _ := vcsrepo.ParseEnsure(res.Ensure)
	if ensure == vcsrepo.EnsureAbsent {
		return nil
	}
	if _, ok := entries[remote]; !ok {
		return vcserrors.NewValidationError(fieldForResource(index, "source"),
			fmt.Sprintf("a URL for remote %q is required when ensure is %s", remote, ensure), nil)
	}
	if res.Depth > 0 && !ensure.WorkingCopy() {
		return vcserrors.NewValidationError(fieldForResource(index, "depth"),
			fmt.Sprintf("depth is only supported for present and latest, not %s", ensure), nil)
	}
	return nil
}
