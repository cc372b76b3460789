package docker

import (
	"github.com/docker/docker/api/types/filters"
)

// Label keys attached to every engine container. All keys share the
// "docrun." prefix so they never collide with labels set by other tools.
const (
	// LabelPrefix is the common prefix for all docrun labels.
	LabelPrefix = "docrun."

	// LabelManagedBy marks containers created by docrun.
	// Key: "docrun.managed-by", Value: always ManagedByValue.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRunID stores the ID of the run that created the container.
	LabelRunID = LabelPrefix + "run-id"

	// LabelPackage stores the directory of the package under test, relative
	// to the anchor.
	LabelPackage = LabelPrefix + "package"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "docrun"

// BuildLabels returns the labels for the engine container of one package.
func BuildLabels(runID, pkg string) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRunID:     runID,
		LabelPackage:   pkg,
	}
}

// ManagedFilter returns a server-side filter matching all docrun engine
// containers, regardless of run.
func ManagedFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue))
}
