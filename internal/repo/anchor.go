// Package repo resolves the run anchor: the directory package paths in a
// plan are relative to.
//
// Package paths never depend on the caller's working directory. A plan
// chooses its anchor with the root field:
//
//	root: ""       the directory containing the plan file
//	root: "../.."  a path relative to the plan file's directory
//	root: "git"    the top level of the git work tree containing the plan
//
// Git is invoked through the CLI (os/exec), the same way for every
// subcommand, so the anchor matches what `git rev-parse` reports for
// worktrees and submodules.
package repo

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/docrun/internal/model"
)

// ResolveAnchor returns the absolute anchor directory for p. The plan must
// have been loaded from a file (p.Path set) unless Root is absolute.
//
// Returns a CLIError with ExitScopeError if the anchor does not exist or
// the plan is not inside a git work tree when Root is "git".
func ResolveAnchor(p *model.Plan) (string, error) {
	base := "."
	if p.Path != "" {
		base = filepath.Dir(p.Path)
	}

	var anchor string
	switch {
	case p.Root == model.RootGit:
		top, err := Toplevel(base)
		if err != nil {
			return "", err
		}
		anchor = top
	case filepath.IsAbs(p.Root):
		anchor = p.Root
	default:
		anchor = filepath.Join(base, p.Root)
	}

	abs, err := filepath.Abs(anchor)
	if err != nil {
		return "", fmt.Errorf("failed to resolve anchor %s: %w", anchor, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", model.WrapCLIError(model.ExitScopeError,
			fmt.Sprintf("anchor directory %s is not accessible", abs), err)
	}
	if !info.IsDir() {
		return "", model.NewCLIError(model.ExitScopeError,
			fmt.Sprintf("anchor %s is not a directory", abs))
	}
	return abs, nil
}

// Toplevel returns the absolute path to the top-level directory of the git
// work tree containing dir.
//
// For a linked worktree this is the worktree's own root, not the main
// checkout's.
func Toplevel(dir string) (string, error) {
	output, err := runGit(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Head returns the abbreviated commit the work tree containing dir is at,
// with a "-dirty" suffix when tracked files have uncommitted changes.
// Runs record it so a failure can be tied to a revision.
func Head(dir string) (string, error) {
	output, err := runGit(dir, "describe", "--always", "--dirty", "--abbrev=12")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// runGit executes git with the given arguments in dir.
//
// It returns stdout on success. On failure it returns a model.CLIError with
// ExitScopeError, including stderr in the message. The directory is passed
// with -C so the process working directory is never touched.
func runGit(dir string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", dir}, args...)

	// #nosec G204: args are constructed internally, not from user input
	cmd := exec.Command("git", fullArgs...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		message := fmt.Sprintf("git %s failed", strings.Join(args, " "))
		if stderrStr != "" {
			message = fmt.Sprintf("%s: %s", message, stderrStr)
		}
		return "", model.WrapCLIError(model.ExitScopeError, message, err)
	}

	return stdout.String(), nil
}
