// Package doctest invokes an external doctest engine against one package's
// ordered file list and turns its verdict into a diagnosable error.
//
// The engine itself is out of scope: any command that accepts a list of
// files and exits non-zero when an example fails will do. The invoker adds
// the parts a harness needs around it:
//   - listed files must exist, otherwise the package fails with a
//     "did you mean" hint instead of being silently skipped
//   - the whole list is handed to the engine as one batch
//   - an optional per-package timeout
//   - failing examples are parsed out of the engine report so the error
//     names file, line, expected and actual output
package doctest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/scope"
)

// maxSuggestions caps the number of "did you mean" candidates per missing file.
const maxSuggestions = 3

// Failure is the diagnostic for a package whose doctest batch failed.
// It is wrapped in a model.CLIError with ExitDoctestFailed; recover it with
// errors.As.
type Failure struct {
	// Package is the display name of the failing package.
	Package string

	// Dir is the package directory the engine ran in.
	Dir string

	// ExitCode is the engine's exit status.
	ExitCode int

	// Examples are the failing examples parsed from Output. Empty when the
	// engine's report format was not recognized.
	Examples []model.ExampleFailure

	// Output is the engine's raw combined output.
	Output []byte
}

// Error summarizes the failure, naming the first failing example when the
// report could be parsed.
func (f *Failure) Error() string {
	if len(f.Examples) == 0 {
		return fmt.Sprintf("doctest engine exited with status %d", f.ExitCode)
	}
	first := f.Examples[0]
	detail := fmt.Sprintf("expected %q, got %q", first.Expected, first.Got)
	if first.Exception != "" {
		detail = "raised " + lastLine(first.Exception)
		if first.Expected != "" {
			detail = fmt.Sprintf("expected %q, %s", first.Expected, detail)
		}
	}
	summary := fmt.Sprintf("%s (%s)", first.String(), detail)
	if n := len(f.Examples); n > 1 {
		summary = fmt.Sprintf("%s, and %d more failing example(s)", summary, n-1)
	}
	return summary
}

// MissingFileError reports a listed test target that does not exist.
type MissingFileError struct {
	// File is the path as listed in the plan.
	File string

	// Suggestions are similarly named files found next to it.
	Suggestions []string
}

// Error names the missing file and any suggestions.
func (e *MissingFileError) Error() string {
	msg := fmt.Sprintf("listed file %s does not exist", e.File)
	if len(e.Suggestions) > 0 {
		msg = fmt.Sprintf("%s (did you mean %s?)", msg, strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// Invoker runs one package's doctest batch through an Engine.
type Invoker struct {
	engine  Engine
	timeout time.Duration
}

// NewInvoker creates an Invoker. A zero timeout means no limit: the call
// waits for the engine for as long as it takes.
func NewInvoker(engine Engine, timeout time.Duration) *Invoker {
	return &Invoker{engine: engine, timeout: timeout}
}

// Invoke verifies the package's file list, then runs the engine once over
// the whole list inside sc.Dir.
//
// Errors are model.CLIError values: ExitDoctestFailed (wrapping
// *MissingFileError or *Failure), ExitTimeout, ExitEngineUnavailable, or
// ExitGeneralError when the run was cancelled.
func (i *Invoker) Invoke(ctx context.Context, sc scope.Scope) error {
	name := sc.Package.DisplayName()

	if err := CheckFiles(sc.Dir, sc.Package.Files); err != nil {
		return model.WrapCLIError(model.ExitDoctestFailed,
			fmt.Sprintf("package %q", name), err)
	}

	runCtx := ctx
	if i.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	result, err := i.engine.Run(runCtx, sc.Dir, sc.Package.Files)

	// Check the parent first: a cancelled run is not a timeout.
	if ctx.Err() != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("package %q: run cancelled", name), ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return model.WrapCLIError(model.ExitTimeout,
			fmt.Sprintf("package %q: doctests did not finish within %s", name, i.timeout), runCtx.Err())
	}
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		failure := &Failure{
			Package:  name,
			Dir:      sc.Dir,
			ExitCode: result.ExitCode,
			Examples: ParseReport(result.Output),
			Output:   result.Output,
		}
		return model.WrapCLIError(model.ExitDoctestFailed,
			fmt.Sprintf("doctests failed in package %q", name), failure)
	}
	return nil
}

// CheckFiles verifies that every file exists under dir as a regular file.
// The first missing file is returned as a *MissingFileError.
func CheckFiles(dir string, files []string) error {
	for _, file := range files {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, file)
		}
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			continue
		}
		return &MissingFileError{File: file, Suggestions: Suggest(dir, file)}
	}
	return nil
}

// Suggest returns up to maxSuggestions existing files in the same
// directory as file whose names are within a small edit distance of its
// base name, closest first.
func Suggest(dir, file string) []string {
	relDir := filepath.Dir(file)
	entries, err := os.ReadDir(filepath.Join(dir, relDir))
	if err != nil {
		return nil
	}

	base := filepath.Base(file)
	// Allow roughly one typo per three characters, at least two.
	limit := len(base) / 3
	if limit < 2 {
		limit = 2
	}

	type candidate struct {
		name     string
		distance int
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		d := levenshtein.ComputeDistance(base, entry.Name())
		if d <= limit {
			candidates = append(candidates, candidate{name: entry.Name(), distance: d})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].distance != candidates[b].distance {
			return candidates[a].distance < candidates[b].distance
		}
		return candidates[a].name < candidates[b].name
	})

	var out []string
	for _, c := range candidates {
		if len(out) == maxSuggestions {
			break
		}
		if relDir == "." {
			out = append(out, c.name)
		} else {
			out = append(out, filepath.Join(relDir, c.name))
		}
	}
	return out
}

// lastLine returns the last non-empty line of s, typically the exception
// type and message at the end of a traceback.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for j := len(lines) - 1; j >= 0; j-- {
		if l := strings.TrimSpace(lines[j]); l != "" {
			return l
		}
	}
	return ""
}
