// Package gitexectest provides a scripted gitexec.Runner for tests.
package gitexectest

import (
	"context"
	"strings"
	"sync"

	"github.com/KoenDierckx/puppetlabs-vcsrepo/internal/gitexec"
)

// Response is the canned outcome for a matching command.
type Response struct {
	Result gitexec.Result
	Err    error
}

type rule struct {
	contains []string
	resp     Response
}

// Runner records every command and answers from rules registered with On.
// Commands without a matching rule succeed with empty output.
type Runner struct {
	mu         sync.Mutex
	rules      []rule
	calls      []gitexec.Command
	credential *gitexec.Credential
}

var (
	_ gitexec.Runner       = (*Runner)(nil)
	_ gitexec.Impersonator = (*Runner)(nil)
)

// On registers a response for commands whose argv contains every fragment,
// in order. Later registrations take precedence.
func (r *Runner) On(resp Response, fragments ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{contains: fragments, resp: resp})
	return r
}

// OnStdout is shorthand for a successful response printing stdout.
func (r *Runner) OnStdout(stdout string, fragments ...string) *Runner {
	return r.On(Response{Result: gitexec.Result{Stdout: stdout}}, fragments...)
}

// OnFail is shorthand for a failing response printing stderr.
func (r *Runner) OnFail(code int, stderr string, fragments ...string) *Runner {
	return r.On(Response{Result: gitexec.Result{ExitCode: code, Stderr: stderr}}, fragments...)
}

// Run implements gitexec.Runner.
func (r *Runner) Run(ctx context.Context, cmd gitexec.Command) (gitexec.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, cmd)
	if err := ctx.Err(); err != nil {
		return gitexec.Result{ExitCode: -1}, err
	}
	for i := len(r.rules) - 1; i >= 0; i-- {
		if matches(cmd.Args, r.rules[i].contains) {
			return r.rules[i].resp.Result, r.rules[i].resp.Err
		}
	}
	return gitexec.Result{}, nil
}

// WithCredential records the identity and keeps answering from the same
// rules.
func (r *Runner) WithCredential(cred *gitexec.Credential) gitexec.Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credential = cred
	return r
}

// Credential returns the identity last passed to WithCredential.
func (r *Runner) Credential() *gitexec.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.credential
}

// Calls returns the recorded commands.
func (r *Runner) Calls() []gitexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gitexec.Command(nil), r.calls...)
}

// Invocations renders recorded commands as space-joined argv strings.
func (r *Runner) Invocations() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = strings.Join(c.Args, " ")
	}
	return out
}

func matches(args, fragments []string) bool {
	next := 0
	for _, arg := range args {
		if next == len(fragments) {
			break
		}
		if arg == fragments[next] {
			next++
		}
	}
	return next == len(fragments)
}
