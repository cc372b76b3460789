package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/model"
	"github.com/shinji-kodama/docrun/internal/precondition"
	"github.com/shinji-kodama/docrun/internal/scope"
)

// NewCheckCommand creates the "check" cobra command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify configuration, package directories and files without running doctests",
		Long: `Report every required configuration value, package directory and listed file
of the plan, without invoking the doctest engine. Unlike run, check does not
stop at the first problem; it lists all of them and exits with the code of
the first one.

Examples:
  docrun check
  docrun check --env-file .env --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}
}

// checkItem is one verified entry of the check report.
type checkItem struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// runCheck is the main logic function for the check command.
func runCheck(cmd *cobra.Command) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}

	overlay, err := precondition.LoadEnvFile(s.cfg.EnvFile)
	if err != nil {
		return err
	}
	switcher, err := scope.NewSwitcher(s.anchor, false)
	if err != nil {
		return err
	}

	items, firstErr := buildCheckReport(s.plan, precondition.NewChecker(overlay), switcher)

	out := cmd.OutOrStdout()
	if IsJSONOutput() {
		printJSON(out, struct {
			Plan   string      `json:"plan"`
			Anchor string      `json:"anchor"`
			Items  []checkItem `json:"items"`
		}{s.plan.Path, s.anchor, items})
	} else {
		printCheckText(out, newStyles(s.cfg.Log.NoColor), items)
	}
	return firstErr
}

// buildCheckReport verifies every requirement, package directory and file
// in plan order. It returns all items and the first error encountered.
func buildCheckReport(p *model.Plan, checker *precondition.Checker, switcher *scope.Switcher) ([]checkItem, error) {
	var items []checkItem
	var firstErr error
	record := func(item checkItem, err error) {
		items = append(items, item)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, req := range p.Requirements {
		err := checker.Check([]model.Requirement{req})
		item := checkItem{Kind: "requirement", Name: req.Name, OK: err == nil, Detail: req.Description}
		record(item, err)
	}

	for _, pkg := range p.Packages {
		dir, err := switcher.Resolve(pkg)
		if err != nil {
			record(checkItem{Kind: "package", Name: pkg.DisplayName(), Detail: err.Error()}, err)
			continue
		}
		record(checkItem{Kind: "package", Name: pkg.DisplayName(), OK: true, Detail: dir}, nil)

		for _, file := range pkg.Files {
			item := checkItem{Kind: "file", Name: pkg.DisplayName() + ": " + file, OK: true}
			var err error
			if ferr := doctest.CheckFiles(dir, []string{file}); ferr != nil {
				item.OK = false
				item.Detail = ferr.Error()
				err = model.WrapCLIError(model.ExitDoctestFailed,
					fmt.Sprintf("package %q", pkg.DisplayName()), ferr)
			}
			record(item, err)
		}
	}
	return items, firstErr
}

// printCheckText prints one line per item.
//
//	ok    requirement  DOWNWARD_BENCHMARKS  benchmark data location
//	FAIL  file         lab: lab/tools.py    listed file lab/tools.py does not exist
func printCheckText(w io.Writer, st styles, items []checkItem) {
	for _, item := range items {
		marker := st.pass.Render("ok  ")
		if !item.OK {
			marker = st.fail.Render("FAIL")
		}
		fmt.Fprintf(w, "%s  %-12s %-40s %s\n", marker, item.Kind, item.Name, st.dim.Render(item.Detail))
	}
}
