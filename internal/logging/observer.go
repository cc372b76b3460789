package logging

import (
	"github.com/rs/zerolog"

	"github.com/shinji-kodama/docrun/internal/model"
)

// RunObserver logs run progress. It satisfies sequencer.Observer.
type RunObserver struct {
	Log zerolog.Logger
}

func (o RunObserver) OnTransition(from, to model.RunState) {
	o.Log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state")
}

func (o RunObserver) OnPackageStart(index int, pkg model.PackageScope) {
	o.Log.Info().Int("index", index).Str("package", pkg.DisplayName()).Int("files", len(pkg.Files)).Msg("package started")
}

func (o RunObserver) OnPackageDone(index int, outcome model.PackageOutcome, err error) {
	o.Log.Info().Err(err).Int("index", index).
		Str("package", outcome.Name).
		Bool("passed", outcome.Passed).
		Dur("duration", outcome.Duration).
		Msg("package finished")
}
