package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/testutil/fakedoctest"
)

// workspace is a temporary project with one package, pkgA/moduleX.py, and
// a plan that runs it through the fake doctest engine.
type workspace struct {
	root    string
	plan    string
	callLog string
}

// isolateEnv keeps the developer's config file and DOCRUN_* variables out
// of the test.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		"DOCRUN_CONFIG", "DOCRUN_PLAN", "DOCRUN_ENV_FILE", "DOCRUN_TIMEOUT", "DOCRUN_CHDIR",
		"DOCRUN_DOCKER_IMAGE", "DOCRUN_DOCKER_PULL", "DOCRUN_DOCKER_HOST",
		"DOCRUN_LOG_LEVEL", "DOCRUN_LOG_FORMAT", "DOCRUN_LOG_NO_COLOR",
		"BENCH_DATA", "COMPANION_REPO",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

// setupWorkspace writes moduleX.py with ">>> 1+1" expecting want.
func setupWorkspace(t *testing.T, want string) *workspace {
	t.Helper()
	isolateEnv(t)

	ws := &workspace{root: t.TempDir()}
	ws.plan = filepath.Join(ws.root, "docrun.yaml")
	ws.callLog = filepath.Join(t.TempDir(), "calls.log")
	fakedoctest.WriteModule(t, filepath.Join(ws.root, "pkgA"), "moduleX.py", "1+1", want)

	command := fakedoctest.Command(t)
	plan := fmt.Sprintf(`requirements:
  - name: BENCH_DATA
    description: benchmark data location
  - name: COMPANION_REPO
packages:
  - dir: pkgA
    files: [moduleX.py]
engine:
  command: [%q, %q]
  env:
    FAKEDOCTEST_LOG: %q
`, command[0], command[1], ws.callLog)
	require.NoError(t, os.WriteFile(ws.plan, []byte(plan), 0o644))
	return ws
}

// engineCalls returns the lines the fake engine logged, one per call.
func (ws *workspace) engineCalls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(ws.callLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

// runCLI executes the root command with args and returns stdout, stderr
// and the exit code.
func runCLI(t *testing.T, args ...string) (string, string, model.ExitCode) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	code := execute(context.Background(), root, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestRun_Passing(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")

	stdout, stderr, code := runCLI(t, "run", "--plan", ws.plan, "--no-color")

	assert.Equal(t, model.ExitSuccess, code, "stderr: %s", stderr)
	assert.Contains(t, stdout, "[1/1] pkgA (1 files)")
	assert.Contains(t, stdout, "PASS pkgA")
	assert.Contains(t, stdout, "OK 1 package(s)")
	assert.Len(t, ws.engineCalls(t), 1)
}

// TestRun_MissingRequirement verifies the run stops before any package and
// names the missing variable.
func TestRun_MissingRequirement(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")

	stdout, stderr, code := runCLI(t, "run", "--plan", ws.plan, "--no-color")

	assert.Equal(t, model.ExitPreconditionFailed, code)
	assert.Contains(t, stderr, `missing required configuration "COMPANION_REPO"`)
	assert.NotContains(t, stdout, "pkgA")
	assert.Empty(t, ws.engineCalls(t), "engine must not run")
}

// TestRun_EnvFile verifies a .env file can supply a missing requirement.
func TestRun_EnvFile(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	envFile := filepath.Join(ws.root, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("COMPANION_REPO=/repo\n"), 0o644))

	_, stderr, code := runCLI(t, "run", "--plan", ws.plan, "--env-file", envFile)

	assert.Equal(t, model.ExitSuccess, code, "stderr: %s", stderr)
}

// TestRun_FailingExample verifies the diagnostic names file, line,
// expected and actual output.
func TestRun_FailingExample(t *testing.T) {
	ws := setupWorkspace(t, "3")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")

	stdout, stderr, code := runCLI(t, "run", "--plan", ws.plan, "--no-color")

	assert.Equal(t, model.ExitDoctestFailed, code)
	assert.Contains(t, stdout, "FAIL pkgA")
	assert.Contains(t, stdout, "FAILED after 1 package(s)")
	assert.Contains(t, stdout, "moduleX.py:2: 1+1")
	assert.Contains(t, stdout, "Expected:")
	assert.Contains(t, stdout, "Got:")
	assert.Contains(t, stderr, `doctests failed in package "pkgA"`)
}

func TestRun_JSON(t *testing.T) {
	ws := setupWorkspace(t, "3")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")

	stdout, _, code := runCLI(t, "run", "--plan", ws.plan, "--json")
	require.Equal(t, model.ExitDoctestFailed, code)

	var result runResultJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	assert.Equal(t, "failed", result.State)
	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Packages, 1)
	assert.False(t, result.Packages[0].Passed)
	require.NotNil(t, result.Error)
	assert.Equal(t, int(model.ExitDoctestFailed), result.Error.Code)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Line)
	assert.Equal(t, "3", result.Failures[0].Expected)
	assert.Equal(t, "2", result.Failures[0].Got)
}

func TestRun_MissingPackageDir(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")
	require.NoError(t, os.RemoveAll(filepath.Join(ws.root, "pkgA")))

	_, stderr, code := runCLI(t, "run", "--plan", ws.plan)

	assert.Equal(t, model.ExitScopeError, code)
	assert.Contains(t, stderr, `cannot enter package "pkgA"`)
	assert.Empty(t, ws.engineCalls(t))
}

func TestRun_PlanNotFound(t *testing.T) {
	isolateEnv(t)

	_, stderr, code := runCLI(t, "run", "--plan", filepath.Join(t.TempDir(), "docrun.yaml"))

	assert.Equal(t, model.ExitPlanInvalid, code)
	assert.Contains(t, stderr, "plan file not found")
}

func TestRun_PlanInvalid(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "docrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packages: []\n"), 0o644))

	_, stderr, code := runCLI(t, "run", "--plan", path)

	assert.Equal(t, model.ExitPlanInvalid, code)
	assert.Contains(t, stderr, "plan must list at least one package")
}

// TestRun_PlanFromEnv verifies DOCRUN_PLAN selects the plan file.
func TestRun_PlanFromEnv(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")
	t.Setenv("DOCRUN_PLAN", ws.plan)

	_, stderr, code := runCLI(t, "run")

	assert.Equal(t, model.ExitSuccess, code, "stderr: %s", stderr)
}

func TestCheck(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	fakedoctest.WriteModule(t, filepath.Join(ws.root, "pkgA"), "experiment.py", "1", "1")
	plan, err := os.ReadFile(ws.plan)
	require.NoError(t, err)
	plan = bytes.Replace(plan, []byte("files: [moduleX.py]"), []byte("files: [moduleX.py, experment.py]"), 1)
	require.NoError(t, os.WriteFile(ws.plan, plan, 0o644))

	stdout, _, code := runCLI(t, "check", "--plan", ws.plan, "--no-color")

	assert.Equal(t, model.ExitPreconditionFailed, code, "first problem decides the exit code")
	assert.Contains(t, stdout, "BENCH_DATA")
	assert.Regexp(t, `FAIL\s+requirement\s+COMPANION_REPO`, stdout)
	assert.Regexp(t, `ok\s+package\s+pkgA`, stdout)
	assert.Regexp(t, `FAIL\s+file\s+pkgA: experment.py`, stdout)
	assert.Contains(t, stdout, "did you mean experiment.py?")
	assert.Empty(t, ws.engineCalls(t), "check never runs the engine")
}

func TestCheck_JSON(t *testing.T) {
	ws := setupWorkspace(t, "2")
	t.Setenv("BENCH_DATA", "/data")
	t.Setenv("COMPANION_REPO", "/repo")

	stdout, _, code := runCLI(t, "check", "--plan", ws.plan, "--json")
	require.Equal(t, model.ExitSuccess, code)

	var report struct {
		Plan  string      `json:"plan"`
		Items []checkItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, ws.plan, report.Plan)
	require.Len(t, report.Items, 4)
	for _, item := range report.Items {
		assert.True(t, item.OK, item.Name)
	}
	assert.Equal(t, "file", report.Items[3].Kind)
}

func TestPlan_Text(t *testing.T) {
	ws := setupWorkspace(t, "2")

	stdout, _, code := runCLI(t, "plan", "--plan", ws.plan, "--no-color")

	require.Equal(t, model.ExitSuccess, code)
	assert.Contains(t, stdout, "Plan: "+ws.plan)
	assert.Contains(t, stdout, "Anchor: "+ws.root)
	assert.Contains(t, stdout, "BENCH_DATA (benchmark data location)")
	assert.Contains(t, stdout, "1. pkgA")
	assert.Contains(t, stdout, "moduleX.py")
}

func TestPlan_JSON(t *testing.T) {
	ws := setupWorkspace(t, "2")

	stdout, _, code := runCLI(t, "plan", "--plan", ws.plan, "--json")
	require.Equal(t, model.ExitSuccess, code)

	var out struct {
		Anchor string     `json:"anchor"`
		Plan   model.Plan `json:"plan"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, ws.root, out.Anchor)
	require.Len(t, out.Plan.Packages, 1)
	assert.Equal(t, "pkgA", out.Plan.Packages[0].Name)
	assert.Equal(t, []string{"moduleX.py"}, out.Plan.Packages[0].Files)
}

func TestExecute_JSONError(t *testing.T) {
	isolateEnv(t)

	_, stderr, code := runCLI(t, "plan", "--json", "--plan", filepath.Join(t.TempDir(), "missing.toml"))

	assert.Equal(t, model.ExitPlanInvalid, code)
	var errObj struct {
		Error struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stderr), &errObj))
	assert.Contains(t, errObj.Error.Message, "plan file not found")
	assert.NotEmpty(t, errObj.Error.Detail)
}

func TestExecute_UnknownCommand(t *testing.T) {
	_, stderr, code := runCLI(t, "frobnicate")

	assert.Equal(t, model.ExitGeneralError, code)
	assert.Contains(t, stderr, "Error: unknown command")
}
