package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/model"
)

// NewPlanCommand creates the "plan" cobra command, which validates the
// execution plan and prints it as resolved.
func NewPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Validate the execution plan and print it",
		Long: `Load and validate the execution plan, then print the resolved anchor, the
required configuration, the engine command, and each package with its ordered
file list.

Examples:
  docrun plan
  docrun plan --plan tests/docrun.toml --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			if IsJSONOutput() {
				printJSON(cmd.OutOrStdout(), struct {
					Path   string      `json:"path"`
					Anchor string      `json:"anchor"`
					Plan   *model.Plan `json:"plan"`
				}{s.plan.Path, s.anchor, s.plan})
				return nil
			}
			printPlanText(cmd.OutOrStdout(), newStyles(s.cfg.Log.NoColor), s.plan, s.anchor)
			return nil
		},
	}
}

// printPlanText prints a human-readable view of the plan.
func printPlanText(w io.Writer, st styles, p *model.Plan, anchor string) {
	fmt.Fprintf(w, "%s %s\n", st.header.Render("Plan:"), p.Path)
	fmt.Fprintf(w, "%s %s\n", st.header.Render("Anchor:"), anchor)
	fmt.Fprintf(w, "%s %s\n", st.header.Render("Engine:"), strings.Join(p.Engine.Command, " "))
	if p.Engine.Docker != nil {
		fmt.Fprintf(w, "%s %s\n", st.header.Render("Image:"), p.Engine.Docker.Image)
	}
	if p.Timeout != "" {
		fmt.Fprintf(w, "%s %s\n", st.header.Render("Timeout:"), p.Timeout)
	}

	if len(p.Requirements) > 0 {
		fmt.Fprintf(w, "\n%s\n", st.header.Render("Requirements:"))
		for _, req := range p.Requirements {
			if req.Description != "" {
				fmt.Fprintf(w, "  %s %s\n", req.Name, st.dim.Render("("+req.Description+")"))
			} else {
				fmt.Fprintf(w, "  %s\n", req.Name)
			}
		}
	}

	fmt.Fprintf(w, "\n%s\n", st.header.Render("Packages:"))
	for i, pkg := range p.Packages {
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, pkg.DisplayName(), st.dim.Render(pkg.Dir))
		for _, file := range pkg.Files {
			fmt.Fprintf(w, "       %s\n", file)
		}
	}
}
