// Package model defines the domain types and value objects for the
// docrun doctest runner.
//
// This package contains pure data structures with no external dependencies.
// The execution plan (Plan, PackageScope, Requirement) is loaded from a
// version-controlled plan file and never mutated during a run. The run
// itself is described by RunState and RunOutcome, which exist only for the
// lifetime of one process. There is no persisted state.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
