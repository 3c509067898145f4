// Package runner invokes the external license tool (or any shell command)
// and captures its result without ever raising on a nonzero exit: callers
// inspect Result.ExitCode / Result.HasErrors themselves, matching the
// contract of the original Console.sendCommand helper this is grounded on.
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"golang.org/x/time/rate"
)

// Result is the outcome of running a command: its exit code plus the raw
// stdout/stderr it produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// HasErrors reports whether the command should be treated as failed: a
// nonzero exit code, or any stderr output at all.
func (r Result) HasErrors() bool {
	return r.ExitCode != 0 || r.Stderr != ""
}

// SplitLines returns the ordered sequence of lines of stdout with trailing
// whitespace trimmed; leading whitespace is kept, and blank lines are kept
// so line indices used by the dump parser's relevantLines stay stable.
func (r Result) SplitLines() []string {
	if r.Stdout == "" {
		return nil
	}
	raw := strings.Split(strings.ReplaceAll(r.Stdout, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		lines = append(lines, strings.TrimRight(l, " \t"))
	}
	return lines
}

// Runner invokes shell commands. It is safe for concurrent use by multiple
// Host Monitors: each Run call spawns its own process and owns its own
// output buffers, so hosts run their commands in parallel, limited only
// by the shared rate limiter.
type Runner struct {
	// limiter throttles how often the external license tool is invoked,
	// protecting it the same way openwebif.Client protects the Enigma2
	// receiver it talks to.
	limiter *rate.Limiter
}

// New creates a Runner that allows at most rps command invocations per
// second, with the given burst allowance. A zero rps disables throttling.
func New(rps float64, burst int) *Runner {
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Runner{limiter: lim}
}

// Run executes cmd through the platform shell and captures its result.
// It never returns an error for a failing command; err is only non-nil if
// the command could not be started/waited on at all (e.g. shell missing).
func (r *Runner) Run(ctx context.Context, cmd string) (Result, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
	}

	c := shellCommand(ctx, cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, runErr
		}
	}

	return Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
