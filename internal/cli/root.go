// Package cli implements the cobra-based CLI commands for docrun.
//
// Each subcommand (run, check, plan, clean) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/docrun/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, all output uses structured JSON format for machine consumption.
	// When false (default), output uses human-readable text format.
	jsonOutput bool

	// verbose enables debug logging on stderr.
	verbose bool
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// The root command itself does not perform any action; it only provides
// help text and global flags. Functionality is provided by the
// subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "docrun",
		Short: "Run documentation examples across packages, fail-fast",
		Long: `docrun verifies that the examples embedded in documentation strings still
execute correctly across several packages of a larger toolkit.

It checks the required configuration once, then enters each package listed in
the execution plan in declared order and hands that package's file list to the
doctest engine as one batch. The first failure stops the run with a non-zero
exit status.

The plan is read from --plan, or from docrun.yaml / docrun.toml / docrun.jsonc
in the current directory or its tests/ subdirectory.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	pf.StringP("plan", "p", "", "Execution plan file (default: search docrun.{yaml,yml,toml,jsonc,json})")
	pf.String("env-file", "", "Read missing required configuration from this .env file")
	pf.String("log-level", "warn", "Log level: trace, debug, info, warn, error, off")
	pf.String("log-format", "text", "Log format: text or json")
	pf.Bool("no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and exits the process with the exit code
// carried by the returned error. This is the main entry point called from
// main.go.
func Execute(ctx context.Context, rootCmd *cobra.Command) {
	os.Exit(int(execute(ctx, rootCmd, os.Stderr)))
}

// execute runs rootCmd, reports any error on errOut, and returns the exit
// code. CLIError types carry their own exit codes; other errors map to 1.
func execute(ctx context.Context, rootCmd *cobra.Command, errOut io.Writer) model.ExitCode {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return model.ExitSuccess
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) && cliErr == err {
		printError(errOut, cliErr.Message, cliErr.Err)
	} else {
		printError(errOut, err.Error(), nil)
	}
	return model.ExitCodeOf(err)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// stderr even in JSON mode: stdout is reserved for command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}
