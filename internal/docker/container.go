package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/model"
)

// removeTimeout bounds container cleanup, which runs on a fresh context so
// it still happens after the run's context was cancelled.
const removeTimeout = 30 * time.Second

// Engine runs the doctest engine in a throwaway container per package.
// It satisfies doctest.Engine.
type Engine struct {
	cli *Client

	// Image provides the engine (interpreter plus the packages' dependencies).
	Image string

	// Anchor is the host directory bind-mounted at Workdir.
	Anchor string

	// Workdir is the mount point of Anchor inside the container.
	Workdir string

	// Command is the engine argv prefix.
	Command []string

	// Env is passed into the container (plan engine env plus required
	// configuration values).
	Env map[string]string

	// Labels are attached to every container (see BuildLabels).
	RunID string
}

// NewEngine creates a containerized engine. Empty workdir and command fall
// back to model.DefaultContainerWorkdir and doctest.DefaultCommand.
func NewEngine(cli *Client, spec model.DockerSpec, anchor string, command []string, env map[string]string, runID string) *Engine {
	workdir := spec.Workdir
	if workdir == "" {
		workdir = model.DefaultContainerWorkdir
	}
	if len(command) == 0 {
		command = doctest.DefaultCommand
	}
	return &Engine{
		cli:     cli,
		Image:   spec.Image,
		Anchor:  anchor,
		Workdir: workdir,
		Command: command,
		Env:     env,
		RunID:   runID,
	}
}

// PullImage pulls Image and waits for the pull to finish. The progress
// stream is discarded.
func (e *Engine) PullImage(ctx context.Context) error {
	rc, err := e.cli.inner.ImagePull(ctx, e.Image, image.PullOptions{})
	if err != nil {
		return model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to pull image %q", e.Image), err)
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to pull image %q", e.Image), err)
	}
	return nil
}

// Run creates a container for the package at dir, waits for the engine to
// exit, and returns its combined logs and exit status. The container is
// always removed afterwards.
func (e *Engine) Run(ctx context.Context, dir string, files []string) (*doctest.Result, error) {
	workingDir, err := ContainerPath(e.Anchor, e.Workdir, dir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitScopeError, "cannot map package into container", err)
	}
	pkg := packageLabel(e.Anchor, dir)
	config, hostConfig := BuildContainerConfig(e.Image, e.Command, files, workingDir, e.Anchor, e.Workdir, e.Env, BuildLabels(e.RunID, pkg))

	start := time.Now()
	created, err := e.cli.inner.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to create engine container from image %q", e.Image), err)
	}
	defer e.remove(created.ID)

	if err := e.cli.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to start engine container %s", shortID(created.ID)), err)
	}

	statusCh, errCh := e.cli.inner.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	exitCode := 0
	select {
	case err := <-errCh:
		if ctx.Err() != nil {
			return &doctest.Result{ExitCode: 1, Duration: time.Since(start)}, nil
		}
		return nil, model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed waiting for engine container %s", shortID(created.ID)), err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	output, err := e.logs(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &doctest.Result{Output: output, ExitCode: exitCode, Duration: time.Since(start)}, nil
}

// logs collects stdout and stderr of a finished container. The log stream
// is multiplexed, so it is split with stdcopy into one buffer.
func (e *Engine) logs(ctx context.Context, id string) ([]byte, error) {
	rc, err := e.cli.inner.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to read logs of engine container %s", shortID(id)), err)
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, model.WrapCLIError(model.ExitEngineUnavailable,
			fmt.Sprintf("failed to read logs of engine container %s", shortID(id)), err)
	}
	return buf.Bytes(), nil
}

// remove force-removes a container on a fresh context. Errors are ignored:
// leftovers carry LabelManagedBy and are collected by RemoveStale.
func (e *Engine) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()
	_ = e.cli.inner.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// RemoveStale removes engine containers left behind by earlier runs that
// were killed before their cleanup ran. It returns how many were removed.
func RemoveStale(ctx context.Context, cli *Client) (int, error) {
	containers, err := cli.inner.ContainerList(ctx, container.ListOptions{All: true, Filters: ManagedFilter()})
	if err != nil {
		return 0, model.WrapCLIError(model.ExitEngineUnavailable, "failed to list engine containers", err)
	}
	removed := 0
	for _, c := range containers {
		if err := cli.inner.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return removed, model.WrapCLIError(model.ExitEngineUnavailable,
				fmt.Sprintf("failed to remove engine container %s", shortID(c.ID)), err)
		}
		removed++
	}
	return removed, nil
}

// ContainerPath maps a host package directory under anchor to the
// corresponding path under workdir inside the container. Directories
// outside the anchor cannot be reached through the mount.
func ContainerPath(anchor, workdir, dir string) (string, error) {
	rel, err := filepath.Rel(anchor, dir)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("package directory %s is outside the mounted anchor %s", dir, anchor)
	}
	return path.Join(workdir, filepath.ToSlash(rel)), nil
}

// BuildContainerConfig assembles the container and host configuration for
// one engine container. It is pure so it can be tested without a daemon.
func BuildContainerConfig(img string, command, files []string, workingDir, anchor, workdir string, env, labels map[string]string) (*container.Config, *container.HostConfig) {
	cmd := make([]string, 0, len(command)+len(files))
	cmd = append(cmd, command...)
	for _, f := range files {
		cmd = append(cmd, filepath.ToSlash(f))
	}

	config := &container.Config{
		Image:      img,
		Cmd:        cmd,
		WorkingDir: workingDir,
		Env:        envList(env),
		Labels:     labels,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: anchor,
			Target: workdir,
		}},
	}
	return config, hostConfig
}

// packageLabel is the LabelPackage value for the package at dir: its path
// relative to the anchor, slash-separated, as it appears in the plan.
func packageLabel(anchor, dir string) string {
	rel, err := filepath.Rel(anchor, dir)
	if err != nil || rel == "." {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}

// envList converts env to KEY=VALUE pairs in sorted key order.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// shortID returns the 12-character form of a container ID used by the
// docker CLI.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
