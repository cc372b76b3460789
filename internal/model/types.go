// Package model defines the domain types for the docrun doctest runner.
//
// All entities in this package describe either the static execution plan
// (what to verify) or the transient state of one run (how far it got).
// These types are used throughout the application for passing data
// between the plan loader, the sequencer, and the CLI output layer.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Requirement is a named piece of external configuration (an environment
// variable) that must resolve to a non-empty value before any doctest runs.
//
// Only the presence of the value is checked; its content and format
// belong to the packages under test.
type Requirement struct {
	// Name is the environment variable name (e.g., "DOWNWARD_BENCHMARKS").
	Name string `json:"name" yaml:"name" toml:"name"`

	// Description explains why the value is required. It is included in
	// the precondition failure message to help users fix their setup.
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// envNameRegex matches portable environment variable names: a letter or
// underscore followed by letters, digits, or underscores.
var envNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateEnvName checks whether name is a portable environment variable name.
func ValidateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment variable name must not be empty")
	}
	if !envNameRegex.MatchString(name) {
		return fmt.Errorf("invalid environment variable name %q: must match [A-Za-z_][A-Za-z0-9_]*", name)
	}
	return nil
}

// PackageScope is one sub-package of the toolkit: a root directory plus
// the ordered list of module files whose doctests are verified there.
//
// The file list is exhaustive only in intent: a file omitted from it is
// simply not checked. There is no discovery.
type PackageScope struct {
	// Name identifies the package in logs and diagnostics.
	// Defaults to Dir when empty (see DisplayName).
	Name string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`

	// Dir is the package root, relative to the run anchor.
	Dir string `json:"dir" yaml:"dir" toml:"dir"`

	// Files is the ordered test target list, relative to Dir.
	Files []string `json:"files" yaml:"files" toml:"files"`
}

// DisplayName returns Name, or Dir when no explicit name was configured.
func (p PackageScope) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Dir
}

// DockerSpec configures running the doctest engine inside a container
// instead of directly on the host.
type DockerSpec struct {
	// Image is the container image that provides the engine (e.g., "python:3.12").
	Image string `json:"image" yaml:"image" toml:"image"`

	// Workdir is the mount point of the run anchor inside the container.
	// Defaults to DefaultContainerWorkdir.
	Workdir string `json:"workdir,omitempty" yaml:"workdir,omitempty" toml:"workdir,omitempty"`

	// Pull forces an image pull before the first package runs.
	Pull bool `json:"pull,omitempty" yaml:"pull,omitempty" toml:"pull,omitempty"`
}

// DefaultContainerWorkdir is where the anchor is mounted inside engine containers.
const DefaultContainerWorkdir = "/workspace"

// EngineSpec describes the external doctest engine invocation.
// The package's file list is appended to Command as trailing arguments.
type EngineSpec struct {
	// Command is the engine argv prefix, e.g. ["python3", "-m", "doctest"].
	Command []string `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`

	// Env holds extra environment variables passed to the engine.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`

	// Docker, when set, runs the engine inside a container.
	Docker *DockerSpec `json:"docker,omitempty" yaml:"docker,omitempty" toml:"docker,omitempty"`
}

// RootGit is the special Plan.Root value that anchors package paths at the
// top level of the git work tree containing the plan file.
const RootGit = "git"

// Plan is the static execution plan: which preconditions gate the run and
// which packages are verified, in which order.
type Plan struct {
	// Requirements are checked once, before any package is entered.
	Requirements []Requirement `json:"requirements,omitempty" yaml:"requirements,omitempty" toml:"requirements,omitempty"`

	// Packages run strictly in this order.
	Packages []PackageScope `json:"packages" yaml:"packages" toml:"packages"`

	// Engine is the doctest engine invocation shared by all packages.
	Engine EngineSpec `json:"engine,omitempty" yaml:"engine,omitempty" toml:"engine,omitempty"`

	// Timeout bounds a single package's engine call, as a Go duration
	// string ("90s", "5m"). Empty means no timeout.
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	// Root selects the anchor package directories are resolved against:
	// empty for the plan file's directory, a relative path from there,
	// or RootGit.
	Root string `json:"root,omitempty" yaml:"root,omitempty" toml:"root,omitempty"`

	// Path is the absolute path of the file the plan was loaded from.
	Path string `json:"-" yaml:"-" toml:"-"`
}

// TimeoutDuration parses Timeout. An empty value yields zero (no timeout).
func (p *Plan) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(p.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", p.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", p.Timeout)
	}
	return d, nil
}

// RunState represents the position of the run sequencer in its state machine.
// The state transitions are:
//
//	NotStarted → CheckingPreconditions → RunningPackage(0) → … → RunningPackage(n-1) → Succeeded
//	CheckingPreconditions → Failed
//	RunningPackage(i) → Failed
type RunState string

const (
	// StateNotStarted is the initial state before Run is invoked.
	StateNotStarted RunState = "not-started"

	// StateCheckingPreconditions is active while required configuration is verified.
	StateCheckingPreconditions RunState = "checking-preconditions"

	// StateRunningPackage is active while one package's doctests execute.
	// The package index is tracked separately by the sequencer.
	StateRunningPackage RunState = "running-package"

	// StateSucceeded is terminal: every package passed.
	StateSucceeded RunState = "succeeded"

	// StateFailed is terminal: a precondition, scope, or doctest failed.
	StateFailed RunState = "failed"
)

// String returns the string representation of RunState.
func (s RunState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends the run.
func (s RunState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// PackageOutcome records one visited package.
type PackageOutcome struct {
	// Name is the package display name.
	Name string `json:"name"`

	// Dir is the resolved absolute package directory. Empty if the scope
	// could not be resolved.
	Dir string `json:"dir,omitempty"`

	// Passed is true when the engine reported success for the whole batch.
	Passed bool `json:"passed"`

	// Duration is the wall-clock time spent in the package.
	Duration time.Duration `json:"duration"`
}

// RunOutcome is the terminal status of one run. It deliberately carries
// no aggregate counts: the first failure ends the run.
type RunOutcome struct {
	// RunID uniquely identifies the run in logs.
	RunID string `json:"runId"`

	// State is StateSucceeded or StateFailed once the run returns.
	State RunState `json:"state"`

	// Packages lists the packages that were entered, in order.
	Packages []PackageOutcome `json:"packages"`

	// Err is the failure that ended the run, nil on success.
	Err error `json:"-"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the run reached StateSucceeded.
func (o *RunOutcome) Succeeded() bool {
	return o != nil && o.State == StateSucceeded
}

// ExampleFailure describes one failing doctest example as reported by the
// engine: where it is, what it ran, and how the output diverged.
type ExampleFailure struct {
	// File is the module file path as printed by the engine.
	File string `json:"file"`

	// Line is the line number of the example (1-based), 0 if unknown.
	Line int `json:"line"`

	// Location is the enclosing object name (e.g., "moduleX.add").
	Location string `json:"location,omitempty"`

	// Source is the example's input code.
	Source string `json:"source"`

	// Expected is the documented expected output.
	Expected string `json:"expected"`

	// Got is the actual output. Empty when an exception was raised.
	Got string `json:"got,omitempty"`

	// Exception holds the traceback when the example raised.
	Exception string `json:"exception,omitempty"`
}

// String returns a compact one-line identification of the failure.
// Format: "file:line: source"
func (f ExampleFailure) String() string {
	source := strings.TrimSpace(strings.SplitN(f.Source, "\n", 2)[0])
	if f.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", f.File, f.Line, source)
	}
	return fmt.Sprintf("%s: %s", f.File, source)
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine why a run failed.
type ExitCode int

const (
	// ExitSuccess indicates every package passed.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitPreconditionFailed indicates required configuration is missing.
	ExitPreconditionFailed ExitCode = 2

	// ExitScopeError indicates a package directory is missing or unenterable.
	ExitScopeError ExitCode = 3

	// ExitDoctestFailed indicates a doctest example failed or a listed
	// file does not exist.
	ExitDoctestFailed ExitCode = 4

	// ExitPlanInvalid indicates the plan file is missing or malformed.
	ExitPlanInvalid ExitCode = 5

	// ExitEngineUnavailable indicates the doctest engine could not be started.
	ExitEngineUnavailable ExitCode = 6

	// ExitTimeout indicates a package exceeded its timeout.
	ExitTimeout ExitCode = 7
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// ExitCodeOf returns the exit code carried by the first CLIError in err's
// chain, ExitSuccess for a nil error, and ExitGeneralError otherwise.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitGeneralError
}
