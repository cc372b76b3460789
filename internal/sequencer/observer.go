package sequencer

import "github.com/shinji-kodama/docrun/internal/model"

// Observer receives run progress. Calls happen synchronously on the
// sequencer's goroutine, in order.
type Observer interface {
	// OnTransition is called after every state change.
	OnTransition(from, to model.RunState)

	// OnPackageStart is called before package index is entered.
	OnPackageStart(index int, pkg model.PackageScope)

	// OnPackageDone is called after package index was left, with the
	// error that failed it (nil on success).
	OnPackageDone(index int, outcome model.PackageOutcome, err error)
}

// Observers fans every call out to each observer in order.
type Observers []Observer

func (o Observers) OnTransition(from, to model.RunState) {
	for _, obs := range o {
		obs.OnTransition(from, to)
	}
}

func (o Observers) OnPackageStart(index int, pkg model.PackageScope) {
	for _, obs := range o {
		obs.OnPackageStart(index, pkg)
	}
}

func (o Observers) OnPackageDone(index int, outcome model.PackageOutcome, err error) {
	for _, obs := range o {
		obs.OnPackageDone(index, outcome, err)
	}
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) OnTransition(model.RunState, model.RunState)    {}
func (NopObserver) OnPackageStart(int, model.PackageScope)         {}
func (NopObserver) OnPackageDone(int, model.PackageOutcome, error) {}
