// Package precondition verifies that the external configuration a doctest
// run depends on is present before any package is entered.
//
// Requirements are environment variables. Only presence is checked: a
// variable that is unset, empty, or whitespace-only fails the run. Values
// may also come from an optional .env file (read with godotenv), which
// overlays lookups without mutating the process environment.
package precondition

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/shinji-kodama/docrun/internal/model"
)

// LookupFunc resolves a configuration value by name, reporting whether it
// was found. os.LookupEnv satisfies this signature.
type LookupFunc func(name string) (string, bool)

// Checker validates a set of requirements against a lookup source.
type Checker struct {
	lookup LookupFunc
}

// NewChecker creates a Checker backed by the process environment, falling
// back to overlay for names the environment does not define (or defines
// as empty). A nil overlay means environment only.
func NewChecker(overlay map[string]string) *Checker {
	return &Checker{lookup: OverlayLookup(os.LookupEnv, overlay)}
}

// NewCheckerWithLookup creates a Checker with an explicit lookup source.
// Tests use it to avoid touching the process environment.
func NewCheckerWithLookup(lookup LookupFunc) *Checker {
	return &Checker{lookup: lookup}
}

// Check verifies every requirement in declared order and fails on the
// first one that resolves to an absent or empty value.
//
// The returned error is a model.CLIError with ExitPreconditionFailed whose
// message names the missing variable. There is no retry: configuration
// does not heal itself between attempts.
func (c *Checker) Check(reqs []model.Requirement) error {
	for _, req := range reqs {
		if _, ok := c.Resolve(req.Name); ok {
			continue
		}
		message := fmt.Sprintf("missing required configuration %q", req.Name)
		if req.Description != "" {
			message = fmt.Sprintf("%s (%s)", message, req.Description)
		}
		return model.NewCLIError(model.ExitPreconditionFailed, message)
	}
	return nil
}

// Resolve returns the trimmed value of name and whether it counts as present.
func (c *Checker) Resolve(name string) (string, bool) {
	value, ok := c.lookup(name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// Values resolves every requirement and returns the present ones as a map.
// The docker engine uses it to forward requirement values into containers.
func (c *Checker) Values(reqs []model.Requirement) map[string]string {
	values := make(map[string]string, len(reqs))
	for _, req := range reqs {
		if v, ok := c.Resolve(req.Name); ok {
			values[req.Name] = v
		}
	}
	return values
}

// OverlayLookup chains primary and overlay: primary wins when it yields a
// non-empty value.
func OverlayLookup(primary LookupFunc, overlay map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		if v, ok := primary(name); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		if v, ok := overlay[name]; ok {
			return v, true
		}
		return primary(name)
	}
}

// LoadEnvFile reads KEY=VALUE pairs from a .env file. An empty path yields
// an empty map. A path that does not exist is a precondition failure,
// since the user asked for it explicitly.
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	// godotenv.Read parses without calling os.Setenv, so the process
	// environment stays untouched.
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPreconditionFailed,
			fmt.Sprintf("failed to read env file %s", path), err)
	}
	return values, nil
}
