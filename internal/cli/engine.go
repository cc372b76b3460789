package cli

import (
	"context"
	"maps"

	"github.com/rs/zerolog"

	"github.com/shinji-kodama/docrun/internal/docker"
	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/model"
)

// engineEnv is the environment handed to the engine: the resolved
// required configuration (which may come from the .env file) overlaid by
// the plan's explicit engine env.
func engineEnv(required, planEnv map[string]string) map[string]string {
	env := make(map[string]string, len(required)+len(planEnv))
	maps.Copy(env, required)
	maps.Copy(env, planEnv)
	return env
}

// dockerSpec returns the effective container settings, or nil to run the
// engine on the host. A configured image overrides the plan's.
func dockerSpec(p *model.Plan, image string, pull bool) *model.DockerSpec {
	var spec model.DockerSpec
	if p.Engine.Docker != nil {
		spec = *p.Engine.Docker
	}
	if image != "" {
		spec.Image = image
	}
	if spec.Image == "" {
		return nil
	}
	spec.Pull = spec.Pull || pull
	return &spec
}

// lazyEngine defers building the real engine until the first package
// runs, so a missing Docker daemon never masks a precondition failure.
type lazyEngine struct {
	build  func(ctx context.Context) (doctest.Engine, func(), error)
	engine doctest.Engine
	close  func()
}

func (l *lazyEngine) Run(ctx context.Context, dir string, files []string) (*doctest.Result, error) {
	if l.engine == nil {
		engine, closeFn, err := l.build(ctx)
		if err != nil {
			return nil, err
		}
		l.engine, l.close = engine, closeFn
	}
	return l.engine.Run(ctx, dir, files)
}

// Close releases whatever the built engine holds. Safe when nothing was built.
func (l *lazyEngine) Close() {
	if l.close != nil {
		l.close()
	}
}

// newDockerEngine returns a lazily connected containerized engine.
func newDockerEngine(log zerolog.Logger, spec model.DockerSpec, host, anchor string, command []string, env map[string]string, runID string) *lazyEngine {
	return &lazyEngine{build: func(ctx context.Context) (doctest.Engine, func(), error) {
		client, err := docker.NewClient(host)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		log.Debug().Str("image", spec.Image).Msg("connected to Docker daemon")

		engine := docker.NewEngine(client, spec, anchor, command, env, runID)
		if spec.Pull {
			log.Info().Str("image", spec.Image).Msg("pulling image")
			if err := engine.PullImage(ctx); err != nil {
				_ = client.Close()
				return nil, nil, err
			}
		}
		return engine, func() { _ = client.Close() }, nil
	}}
}
