package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/config"
	"github.com/shinji-kodama/docrun/internal/docker"
	"github.com/shinji-kodama/docrun/internal/model"
)

// NewCleanCommand creates the "clean" cobra command.
//
// Engine containers are removed at the end of each package, but a run that
// is killed (SIGKILL, daemon restart) can leave them behind. They all carry
// the docrun.managed-by label, which is what clean matches on.
func NewCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove engine containers left behind by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), cmd)
		},
	}
	cmd.Flags().String("docker-host", "", "Docker daemon address (default: DOCKER_HOST or the platform socket)")
	return cmd
}

func runClean(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	client, err := docker.NewClient(cfg.Docker.Host)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Ping(ctx); err != nil {
		return err
	}
	log.Debug().Msg("connected to Docker daemon")

	removed, err := docker.RemoveStale(ctx, client)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		printJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d engine container(s).\n", removed)
	return nil
}
