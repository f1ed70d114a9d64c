// Package gitexec runs the git binary on behalf of the reconciler. It owns
// process spawning, per-invocation environment, run-as identity and output
// capture; nothing here interprets git's output beyond stripping colour.
package gitexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Command is one invocation of an external program.
type Command struct {
	// Args is the full argv, program first.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is layered over the inherited environment for this process only.
	Env map[string]string
	// Unset names inherited variables removed for this process only.
	Unset []string
}

// String renders the command for logs and error messages.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result is the captured outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// PrimaryOutput returns stderr if present, otherwise stdout.
func PrimaryOutput(res Result) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	return res.Stdout
}

// Runner executes commands synchronously. A non-zero exit status is reported
// through Result.ExitCode, not as an error; errors mean the process could not
// be started or the context ended first.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	// Credential switches the spawned process to another identity. Nil runs
	// as the current process identity.
	Credential *Credential
}

var _ Runner = (*ExecRunner)(nil)

// Run spawns the command and waits for it.
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	if len(c.Args) == 0 {
		return Result{}, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = BuildEnv(os.Environ(), c.Env, c.Unset)
	if err := applyCredential(cmd, r.Credential); err != nil {
		return Result{}, err
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	res := Result{
		Stdout: Clean(stdoutBuf.String()),
		Stderr: Clean(stderrBuf.String()),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("start %s: %w", c.Args[0], err)
	}
}

// Clean strips ANSI escape sequences and surrounding whitespace so that
// commit ids and ref names parse regardless of color.ui settings.
func Clean(s string) string {
	return strings.TrimSpace(ansi.Strip(s))
}

// BuildEnv layers set over base and drops the unset keys. Keys are compared
// exactly; later entries in base win over earlier duplicates, as exec does.
func BuildEnv(base []string, set map[string]string, unset []string) []string {
	drop := make(map[string]struct{}, len(unset)+len(set))
	for _, key := range unset {
		drop[key] = struct{}{}
	}
	for key := range set {
		drop[key] = struct{}{}
	}

	env := make([]string, 0, len(base)+len(set))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, skip := drop[key]; skip {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+set[key])
	}
	return env
}
