package precondition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/docrun/internal/model"
)

// mapLookup builds a LookupFunc over a fixed map so tests never depend on
// the ambient process environment.
func mapLookup(values map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

var benchReqs = []model.Requirement{
	{Name: "BENCH_DATA", Description: "benchmark data location"},
	{Name: "COMPANION_REPO"},
}

// TestCheck_AllPresent verifies that a fully configured environment passes.
func TestCheck_AllPresent(t *testing.T) {
	c := NewCheckerWithLookup(mapLookup(map[string]string{
		"BENCH_DATA":     "/tmp/data",
		"COMPANION_REPO": "/tmp/repo",
	}))
	assert.NoError(t, c.Check(benchReqs))
}

// TestCheck_Missing covers unset, empty, and whitespace-only values. Each
// must fail with ExitPreconditionFailed and name the variable.
func TestCheck_Missing(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		missing string
	}{
		{"first unset", map[string]string{"COMPANION_REPO": "/tmp/repo"}, "BENCH_DATA"},
		{"second unset", map[string]string{"BENCH_DATA": "/tmp/data"}, "COMPANION_REPO"},
		{"empty value", map[string]string{"BENCH_DATA": "", "COMPANION_REPO": "/tmp/repo"}, "BENCH_DATA"},
		{"whitespace value", map[string]string{"BENCH_DATA": "/tmp/data", "COMPANION_REPO": "  "}, "COMPANION_REPO"},
		{"nothing set", map[string]string{}, "BENCH_DATA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCheckerWithLookup(mapLookup(tt.values)).Check(benchReqs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.missing)
			assert.Equal(t, model.ExitPreconditionFailed, model.ExitCodeOf(err))
		})
	}
}

// TestCheck_IncludesDescription verifies the reason is surfaced to the user.
func TestCheck_IncludesDescription(t *testing.T) {
	err := NewCheckerWithLookup(mapLookup(nil)).Check(benchReqs)
	require.Error(t, err)
	assert.Equal(t, `missing required configuration "BENCH_DATA" (benchmark data location)`, err.Error())
}

// TestCheck_NoRequirements verifies an empty set trivially passes.
func TestCheck_NoRequirements(t *testing.T) {
	assert.NoError(t, NewCheckerWithLookup(mapLookup(nil)).Check(nil))
}

// TestNewChecker_ProcessEnvironment verifies the default checker reads the
// real environment and that the overlay fills gaps.
func TestNewChecker_ProcessEnvironment(t *testing.T) {
	t.Setenv("BENCH_DATA", "/tmp/data")
	t.Setenv("COMPANION_REPO", "")

	assert.Error(t, NewChecker(nil).Check(benchReqs))

	c := NewChecker(map[string]string{"COMPANION_REPO": "/tmp/repo", "BENCH_DATA": "/ignored"})
	require.NoError(t, c.Check(benchReqs))

	v, ok := c.Resolve("BENCH_DATA")
	require.True(t, ok)
	assert.Equal(t, "/tmp/data", v, "process environment must win over the overlay")
}

// TestValues returns only present requirements.
func TestValues(t *testing.T) {
	c := NewCheckerWithLookup(mapLookup(map[string]string{"BENCH_DATA": " /tmp/data "}))
	assert.Equal(t, map[string]string{"BENCH_DATA": "/tmp/data"}, c.Values(benchReqs))
}

// TestLoadEnvFile covers the empty path, a valid file, and a missing file.
func TestLoadEnvFile(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		values, err := LoadEnvFile("")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "# comment\nBENCH_DATA=/tmp/data\nCOMPANION_REPO=\"/tmp/repo\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		values, err := LoadEnvFile(path)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/data", values["BENCH_DATA"])
		assert.Equal(t, "/tmp/repo", values["COMPANION_REPO"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
		require.Error(t, err)
		assert.Equal(t, model.ExitPreconditionFailed, model.ExitCodeOf(err))
	})
}
