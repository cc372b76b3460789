// Package sequencer drives one doctest run: check preconditions once, then
// enter each package of the plan in declared order and run its doctests,
// stopping at the first failure.
//
// A run is a small state machine:
//
//	NotStarted → CheckingPreconditions → RunningPackage(0) → … → RunningPackage(n-1) → Succeeded
//	CheckingPreconditions → Failed
//	RunningPackage(i) → Failed
//
// There is no parallelism, no retry, and no aggregation beyond the
// pass/fail outcome and the first failure.
package sequencer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/scope"
)

// PreconditionChecker verifies required configuration before any package
// runs. Satisfied by *precondition.Checker.
type PreconditionChecker interface {
	Check(reqs []model.Requirement) error
}

// ScopeSwitcher runs work within a package directory. Satisfied by
// *scope.Switcher.
type ScopeSwitcher interface {
	Within(pkg model.PackageScope, work func(scope.Scope) error) error
}

// DoctestInvoker runs one package's doctests. Satisfied by
// *doctest.Invoker.
type DoctestInvoker interface {
	Invoke(ctx context.Context, sc scope.Scope) error
}

// Sequencer orders a run. It holds no per-run state, so one Sequencer can
// run the same plan repeatedly with identical results.
type Sequencer struct {
	checker  PreconditionChecker
	switcher ScopeSwitcher
	invoker  DoctestInvoker

	// Observer receives progress events. Defaults to NopObserver.
	Observer Observer

	// Log receives debug and info lines tagged with run_id.
	Log zerolog.Logger

	// NewRunID generates run IDs. Defaults to random UUIDs.
	NewRunID func() string
}

// New creates a Sequencer from its three collaborators.
func New(checker PreconditionChecker, switcher ScopeSwitcher, invoker DoctestInvoker) *Sequencer {
	return &Sequencer{
		checker:  checker,
		switcher: switcher,
		invoker:  invoker,
		Observer: NopObserver{},
		Log:      zerolog.Nop(),
		NewRunID: uuid.NewString,
	}
}

// Run executes p and returns its outcome. The outcome is never nil; on
// failure outcome.Err carries the error that stopped the run and
// outcome.State is StateFailed.
//
// Cancelling ctx stops the engine call in progress and prevents further
// packages from starting.
func (s *Sequencer) Run(ctx context.Context, p *model.Plan) *model.RunOutcome {
	start := time.Now()
	outcome := &model.RunOutcome{
		RunID:    s.NewRunID(),
		State:    model.StateNotStarted,
		Packages: make([]model.PackageOutcome, 0, len(p.Packages)),
	}
	log := s.Log.With().Str("run_id", outcome.RunID).Logger()
	m := newMachine(s.Observer)

	finish := func(state model.RunState, err error) *model.RunOutcome {
		m.transition(state)
		outcome.State = state
		outcome.Err = err
		outcome.Duration = time.Since(start)
		if err != nil {
			log.Debug().Err(err).Dur("duration", outcome.Duration).Msg("run failed")
		} else {
			log.Debug().Dur("duration", outcome.Duration).Msg("run succeeded")
		}
		return outcome
	}

	m.transition(model.StateCheckingPreconditions)
	log.Debug().Int("requirements", len(p.Requirements)).Msg("checking preconditions")
	if err := s.checker.Check(p.Requirements); err != nil {
		return finish(model.StateFailed, err)
	}

	for i, pkg := range p.Packages {
		if err := ctx.Err(); err != nil {
			return finish(model.StateFailed, model.WrapCLIError(model.ExitGeneralError, "run cancelled", err))
		}

		m.transition(model.StateRunningPackage)
		s.Observer.OnPackageStart(i, pkg)
		pkgLog := log.With().Str("package", pkg.DisplayName()).Int("index", i).Logger()
		pkgLog.Debug().Strs("files", pkg.Files).Msg("entering package")

		pkgStart := time.Now()
		var dir string
		err := s.switcher.Within(pkg, func(sc scope.Scope) error {
			dir = sc.Dir
			return s.invoker.Invoke(ctx, sc)
		})

		result := model.PackageOutcome{
			Name:     pkg.DisplayName(),
			Dir:      dir,
			Passed:   err == nil,
			Duration: time.Since(pkgStart),
		}
		outcome.Packages = append(outcome.Packages, result)
		s.Observer.OnPackageDone(i, result, err)
		pkgLog.Debug().Bool("passed", result.Passed).Dur("duration", result.Duration).Msg("left package")

		if err != nil {
			return finish(model.StateFailed, err)
		}
	}

	return finish(model.StateSucceeded, nil)
}
