// Package scope scopes a unit of work to one package directory.
//
// The working directory is threaded through the work as an explicit Scope
// value, so engines that accept a directory (os/exec via cmd.Dir, a
// container's WorkingDir) never touch process-wide state. For engines that
// resolve paths against the process working directory, chdir mode also
// changes it and restores it on every exit path, including panics.
package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shinji-kodama/docrun/internal/model"
)

// Scope is the handle a unit of work receives: the package being run and
// its resolved absolute directory.
type Scope struct {
	Package model.PackageScope
	Dir     string
}

// Switcher resolves package directories against a fixed anchor and runs
// work inside them.
type Switcher struct {
	// Anchor is the absolute directory package paths are relative to.
	Anchor string

	// Chdir also changes the process working directory for the duration
	// of the work.
	Chdir bool
}

// NewSwitcher creates a Switcher for the given anchor. A relative anchor
// is made absolute against the current working directory once, here.
func NewSwitcher(anchor string, chdir bool) (*Switcher, error) {
	abs, err := filepath.Abs(anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve anchor %s: %w", anchor, err)
	}
	return &Switcher{Anchor: abs, Chdir: chdir}, nil
}

// Resolve returns the absolute directory of pkg and verifies it exists, is
// a directory, and can be entered. Failures are model.CLIError with
// ExitScopeError.
func (s *Switcher) Resolve(pkg model.PackageScope) (string, error) {
	dir := pkg.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Anchor, dir)
	}
	dir = filepath.Clean(dir)

	info, err := os.Stat(dir)
	if err != nil {
		return "", model.WrapCLIError(model.ExitScopeError,
			fmt.Sprintf("cannot enter package %q: directory %s", pkg.DisplayName(), dir), err)
	}
	if !info.IsDir() {
		return "", model.NewCLIError(model.ExitScopeError,
			fmt.Sprintf("cannot enter package %q: %s is not a directory", pkg.DisplayName(), dir))
	}
	if err := checkEnterable(dir); err != nil {
		return "", model.WrapCLIError(model.ExitScopeError,
			fmt.Sprintf("cannot enter package %q: directory %s", pkg.DisplayName(), dir), err)
	}
	return dir, nil
}

// Within enters pkg's directory, runs work, and leaves again.
//
// If the directory cannot be entered, work is never called. The error
// returned by work is passed through unchanged; in chdir mode a failure to
// restore the previous directory is joined onto it.
func (s *Switcher) Within(pkg model.PackageScope, work func(Scope) error) (err error) {
	dir, err := s.Resolve(pkg)
	if err != nil {
		return err
	}

	if s.Chdir {
		prev, wdErr := os.Getwd()
		if wdErr != nil {
			return model.WrapCLIError(model.ExitScopeError, "cannot determine current directory", wdErr)
		}
		if cdErr := os.Chdir(dir); cdErr != nil {
			return model.WrapCLIError(model.ExitScopeError,
				fmt.Sprintf("cannot enter package %q", pkg.DisplayName()), cdErr)
		}
		// The deferred restore also runs while a panic unwinds.
		defer func() {
			if rerr := os.Chdir(prev); rerr != nil {
				err = errors.Join(err, model.WrapCLIError(model.ExitScopeError,
					fmt.Sprintf("failed to restore working directory %s", prev), rerr))
			}
		}()
	}

	return work(Scope{Package: pkg, Dir: dir})
}
