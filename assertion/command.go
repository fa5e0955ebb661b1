package assertion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/agenttree/core"
)

// CommandOptions configures a CommandRunner.
type CommandOptions struct {
	// Shell and ShellArgs build the command line, defaults "sh" and "-c".
	Shell     string
	ShellArgs []string
	// Dir is the working directory of every command.
	Dir string
	// Env is appended to the process environment.
	Env []string
	// DeniedPatterns block commands containing any of them (case-insensitive).
	DeniedPatterns []string
	// MaxOutputBytes truncates combined output.
	MaxOutputBytes int
	// DefaultTimeout applies when the context has no earlier deadline.
	DefaultTimeout time.Duration
}

// CommandRunner runs assertion expressions as shell commands. A zero exit
// status passes; a non-zero status fails with the command output. Failing to
// start the command is an error.
type CommandRunner struct {
	opts CommandOptions
}

// NewCommandRunner creates a CommandRunner.
func NewCommandRunner(optFns ...func(o *CommandOptions)) *CommandRunner {
	opts := CommandOptions{
		Shell:     "sh",
		ShellArgs: []string{"-c"},
		DeniedPatterns: []string{
			"rm -rf /",
			"rm -rf /*",
			"mkfs",
			"dd if=",
			":(){ :|:& };:",
		},
		MaxOutputBytes: 16 * 1024,
		DefaultTimeout: 2 * time.Minute,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &CommandRunner{opts: opts}
}

// Run implements core.AssertionRunner.
func (r *CommandRunner) Run(ctx context.Context, a core.Assertion) (core.AssertionResult, error) {
	command := strings.TrimSpace(a.Expr)
	if command == "" {
		return core.AssertionResult{}, fmt.Errorf("empty command")
	}

	lower := strings.ToLower(command)
	for _, denied := range r.opts.DeniedPatterns {
		if strings.Contains(lower, strings.ToLower(denied)) {
			return core.AssertionResult{}, fmt.Errorf("command blocked: matches denied pattern %q", denied)
		}
	}

	timeout := r.opts.DefaultTimeout
	if a.Timeout > 0 {
		timeout = a.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), r.opts.ShellArgs...), command)
	cmd := exec.CommandContext(ctx, r.opts.Shell, args...)
	cmd.Dir = r.opts.Dir
	// Grandchildren may hold the output pipe open after the shell is killed.
	cmd.WaitDelay = time.Second
	if len(r.opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.opts.Env...)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := truncate(out.String(), r.opts.MaxOutputBytes)

	if ctx.Err() != nil {
		return core.AssertionResult{Output: output}, fmt.Errorf("command timed out after %s: %w", timeout, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return core.AssertionResult{Success: true, Output: output}, nil
	case errors.As(err, &exitErr):
		return core.AssertionResult{Success: false, Output: fmt.Sprintf("exit status %d\n%s", exitErr.ExitCode(), output)}, nil
	default:
		return core.AssertionResult{}, fmt.Errorf("run command: %w", err)
	}
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
