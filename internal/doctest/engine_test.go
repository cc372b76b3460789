package doctest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/scope"
	"github.com/shinji-kodama/docrun/internal/testutil/fakedoctest"
)

// TestExecEngine_Passing runs the fake engine over a passing module.
func TestExecEngine_Passing(t *testing.T) {
	dir := t.TempDir()
	fakedoctest.WriteModule(t, dir, "moduleX.py", "1+1", "2")

	result, err := NewExecEngine(fakedoctest.Command(t), nil).Run(context.Background(), dir, []string{"moduleX.py"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Empty(t, result.Output)
}

// TestExecEngine_Failing verifies a non-zero exit is a Result, not an error,
// and that the report is captured.
func TestExecEngine_Failing(t *testing.T) {
	dir := t.TempDir()
	fakedoctest.WriteModule(t, dir, "moduleX.py", "1+1", "3")

	result, err := NewExecEngine(fakedoctest.Command(t), nil).Run(context.Background(), dir, []string{"moduleX.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)

	failures := ParseReport(result.Output)
	require.Len(t, failures, 1)
	assert.Equal(t, "moduleX.py", failures[0].File)
	assert.Equal(t, 2, failures[0].Line)
	assert.Equal(t, "1+1", failures[0].Source)
	assert.Equal(t, "3", failures[0].Expected)
	assert.Equal(t, "2", failures[0].Got)
}

// TestExecEngine_WorkingDirAndEnv verifies the child runs in dir with the
// extra environment applied, and the parent's directory is untouched.
func TestExecEngine_WorkingDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	fakedoctest.WriteModule(t, dir, "a.py", "2*3", "6")
	fakedoctest.WriteModule(t, dir, "b.py", "7-2", "5")
	logPath := filepath.Join(t.TempDir(), "calls.log")

	before, err := os.Getwd()
	require.NoError(t, err)

	engine := NewExecEngine(fakedoctest.Command(t), map[string]string{"FAKEDOCTEST_LOG": logPath})
	result, err := engine.Run(context.Background(), dir, []string{"a.py", "b.py"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)

	after, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1, "the whole batch is one engine call")

	wd, args, _ := strings.Cut(lines[0], "|")
	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "a.py b.py", args)
}

// TestExecEngine_MissingBinary verifies ExitEngineUnavailable.
func TestExecEngine_MissingBinary(t *testing.T) {
	engine := NewExecEngine([]string{"docrun-no-such-engine-binary"}, nil)
	_, err := engine.Run(context.Background(), t.TempDir(), []string{"x.py"})
	require.Error(t, err)
	assert.Equal(t, model.ExitEngineUnavailable, model.ExitCodeOf(err))
}

// TestNewExecEngine_DefaultCommand verifies the python doctest fallback.
func TestNewExecEngine_DefaultCommand(t *testing.T) {
	assert.Equal(t, DefaultCommand, NewExecEngine(nil, nil).Command)
}

// TestInvoke_ConcreteScenarios runs the invoker end to end with the fake
// engine: a passing and a failing moduleX.py in pkgA.
func TestInvoke_ConcreteScenarios(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"passing example", "2", false},
		{"failing example", "3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fakedoctest.WriteModule(t, dir, "moduleX.py", "1+1", tt.want)
			sc := scope.Scope{
				Package: model.PackageScope{Dir: "pkgA", Files: []string{"moduleX.py"}},
				Dir:     dir,
			}

			err := NewInvoker(NewExecEngine(fakedoctest.Command(t), nil), 0).Invoke(context.Background(), sc)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), "moduleX.py:2: 1+1")
			assert.Contains(t, err.Error(), `expected "3", got "2"`)
		})
	}
}
