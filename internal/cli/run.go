package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/logging"
	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/precondition"
	"github.com/shinji-kodama/docrun/internal/repo"
	"github.com/shinji-kodama/docrun/internal/scope"
	"github.com/shinji-kodama/docrun/internal/sequencer"
)

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every package's doctests in plan order, stopping at the first failure",
		Long: `Check the required configuration, then run the doctests of each package in
the order the plan declares them. The first missing variable, unenterable
package directory, missing file, or failing example stops the run.

Exit codes:
  0  all packages passed
  2  required configuration missing
  3  package directory missing
  4  doctest failed or listed file missing
  5  plan file missing or invalid
  6  doctest engine unavailable
  7  package timed out

Examples:
  docrun run
  docrun run --plan tests/docrun.yaml --env-file .env
  docrun run --docker-image python:3.12 --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), cmd)
		},
	}

	f := cmd.Flags()
	f.Duration("timeout", 0, "Per-package timeout (e.g. 90s, 5m); overrides the plan")
	f.Bool("chdir", false, "Also change the process working directory into each package")
	f.String("docker-image", "", "Run the engine in a container from this image")
	f.Bool("docker-pull", false, "Pull the container image before the first package")
	f.String("docker-host", "", "Docker daemon address (default: DOCKER_HOST or the platform socket)")

	return cmd
}

// runRun is the main logic function for the run command.
func runRun(ctx context.Context, cmd *cobra.Command) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	p := s.plan
	out := cmd.OutOrStdout()

	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()
	if rev, err := repo.Head(s.anchor); err == nil {
		log.Info().Str("revision", rev).Str("anchor", s.anchor).Msg("run starting")
	}

	overlay, err := precondition.LoadEnvFile(s.cfg.EnvFile)
	if err != nil {
		return err
	}
	checker := precondition.NewChecker(overlay)

	switcher, err := scope.NewSwitcher(s.anchor, s.cfg.Chdir)
	if err != nil {
		return err
	}

	timeout, err := p.TimeoutDuration()
	if err != nil {
		return model.WrapCLIError(model.ExitPlanInvalid, "invalid plan timeout", err)
	}
	if s.cfg.Timeout > 0 {
		timeout = s.cfg.Timeout
	}

	// Requirement values are resolved now but only read by the engine,
	// which runs after the sequencer has checked them.
	env := engineEnv(checker.Values(p.Requirements), p.Engine.Env)

	var engine doctest.Engine
	if spec := dockerSpec(p, s.cfg.Docker.Image, s.cfg.Docker.Pull); spec != nil {
		lazy := newDockerEngine(log, *spec, s.cfg.Docker.Host, s.anchor, p.Engine.Command, env, runID)
		defer lazy.Close()
		engine = lazy
	} else {
		engine = doctest.NewExecEngine(p.Engine.Command, env)
	}

	seq := sequencer.New(checker, switcher, doctest.NewInvoker(engine, timeout))
	seq.Log = s.log
	seq.NewRunID = func() string { return runID }
	observers := sequencer.Observers{logging.RunObserver{Log: log}}
	if !IsJSONOutput() {
		observers = append(observers, &progressPrinter{w: out, st: newStyles(s.cfg.Log.NoColor), total: len(p.Packages)})
	}
	seq.Observer = observers

	outcome := seq.Run(ctx, p)

	if IsJSONOutput() {
		printJSON(out, buildRunResultJSON(outcome))
	} else {
		printRunResultText(out, newStyles(s.cfg.Log.NoColor), outcome)
	}
	return outcome.Err
}
