package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/config"
	"github.com/shinji-kodama/docrun/internal/logging"
	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/plan"
	"github.com/shinji-kodama/docrun/internal/repo"
)

// session is what every plan-driven command needs: settings, a logger,
// the validated plan, and the anchor its package paths resolve against.
type session struct {
	cfg    config.Config
	log    zerolog.Logger
	plan   *model.Plan
	anchor string
}

// newSession loads configuration from cmd's flags, locates and validates
// the plan, and resolves its anchor.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "invalid configuration", err)
	}
	log := newLogger(cmd.ErrOrStderr(), cfg)

	path := cfg.Plan
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "cannot determine current directory", err)
		}
		if path, err = plan.Find(wd); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("path", path).Msg("loading plan")

	p, err := plan.LoadValid(path)
	if err != nil {
		return nil, err
	}

	anchor, err := repo.ResolveAnchor(p)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("anchor", anchor).Int("packages", len(p.Packages)).Msg("plan loaded")

	return &session{cfg: cfg, log: log, plan: p, anchor: anchor}, nil
}

// newLogger builds the stderr logger from the runtime profile, the loaded
// settings, and the global flags. --verbose wins over the configured level
// and --json switches logs to JSON lines as well.
func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	lc := logging.Defaults(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		lc.Level = lvl
	}
	if verbose {
		lc.Level = zerolog.DebugLevel
	}
	lc.NoColor = lc.NoColor || cfg.Log.NoColor
	lc.JSON = cfg.Log.Format == "json" || jsonOutput
	return logging.New(w, lc)
}
