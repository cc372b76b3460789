package doctest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/shinji-kodama/docrun/internal/model"
)

// DefaultCommand is the engine used when a plan does not configure one:
// the standard library doctest module of the Python interpreter on PATH.
//
// The doctest module returns after the first file that has a failing
// example, so one invocation reports the failures of that file only and
// the rest of the batch is not evaluated. Plans that want every file of a
// package evaluated in one pass configure a command that keeps going.
var DefaultCommand = []string{"python3", "-m", "doctest"}

// waitDelay bounds how long Run waits for the engine's output pipes to
// close after the process exits or is killed. Examples that spawn
// background children would otherwise keep Wait blocked.
const waitDelay = 2 * time.Second

// Result is the outcome of one engine invocation over a batch of files.
type Result struct {
	// Output is the engine's combined stdout and stderr.
	Output []byte

	// ExitCode is the engine's process exit status. Zero means every
	// example in the batch passed.
	ExitCode int

	// Duration is the wall-clock time of the invocation.
	Duration time.Duration
}

// Engine executes the doctests embedded in files, resolving them against
// dir. Implementations report a failing batch through Result.ExitCode and
// reserve the error return for engines that could not run at all.
type Engine interface {
	Run(ctx context.Context, dir string, files []string) (*Result, error)
}

// ExecEngine runs the doctest engine as a child process on the host.
type ExecEngine struct {
	// Command is the argv prefix; files are appended to it.
	Command []string

	// Env holds extra variables layered over the inherited environment.
	Env map[string]string
}

// NewExecEngine creates an ExecEngine, falling back to DefaultCommand when
// command is empty.
func NewExecEngine(command []string, env map[string]string) *ExecEngine {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ExecEngine{Command: command, Env: env}
}

// Run executes Command with files appended, using dir as the child's
// working directory so the parent's directory never changes.
//
// A non-zero exit is reported in Result, not as an error. A missing engine
// binary yields a model.CLIError with ExitEngineUnavailable.
func (e *ExecEngine) Run(ctx context.Context, dir string, files []string) (*Result, error) {
	args := make([]string, 0, len(e.Command)-1+len(files))
	args = append(args, e.Command[1:]...)
	args = append(args, files...)

	// #nosec G204: the command comes from the version-controlled plan file
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.Dir = dir
	cmd.Env = mergeEnv(os.Environ(), e.Env)
	cmd.WaitDelay = waitDelay

	// Doctest engines interleave failure reports (stdout) with import
	// errors and tracebacks (stderr); a single buffer keeps them in order.
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err := cmd.Run()
	result := &Result{Output: output.Bytes(), Duration: time.Since(start)}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode == -1 {
			// Killed by a signal (context cancellation or timeout). The
			// invoker inspects ctx to tell which.
			result.ExitCode = 1
		}
		return result, nil
	}

	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The engine exited but a leftover child held the output pipes open.
		result.ExitCode = cmd.ProcessState.ExitCode()
		return result, nil
	}

	if ctx.Err() != nil {
		result.ExitCode = 1
		return result, nil
	}

	return nil, model.WrapCLIError(model.ExitEngineUnavailable,
		fmt.Sprintf("failed to start doctest engine %q", strings.Join(e.Command, " ")), err)
}

// mergeEnv appends extra to base as KEY=VALUE pairs in sorted key order,
// so later entries override inherited ones deterministically.
func mergeEnv(base []string, extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
