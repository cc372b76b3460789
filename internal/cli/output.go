package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/model"
)

// styles holds the lipgloss styles for text output. With color disabled
// every style renders its input unchanged.
type styles struct {
	pass   lipgloss.Style
	fail   lipgloss.Style
	header lipgloss.Style
	dim    lipgloss.Style
	block  lipgloss.Style
}

func newStyles(noColor bool) styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return styles{pass: plain, fail: plain, header: plain, dim: plain, block: plain.PaddingLeft(4)}
	}
	return styles{
		pass:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		fail:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
		header: lipgloss.NewStyle().Bold(true),
		dim:    lipgloss.NewStyle().Faint(true),
		block:  lipgloss.NewStyle().PaddingLeft(4),
	}
}

// progressPrinter prints one line per package as the run advances. It
// satisfies sequencer.Observer.
type progressPrinter struct {
	w     io.Writer
	st    styles
	total int
}

func (p *progressPrinter) OnTransition(from, to model.RunState) {}

func (p *progressPrinter) OnPackageStart(index int, pkg model.PackageScope) {
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.st.dim.Render(fmt.Sprintf("[%d/%d]", index+1, p.total)),
		pkg.DisplayName(),
		p.st.dim.Render(fmt.Sprintf("(%d files)", len(pkg.Files))))
}

func (p *progressPrinter) OnPackageDone(index int, outcome model.PackageOutcome, err error) {
	marker := p.st.pass.Render("PASS")
	if err != nil {
		marker = p.st.fail.Render("FAIL")
	}
	fmt.Fprintf(p.w, "%s %s %s\n", marker, outcome.Name, p.st.dim.Render(formatDuration(outcome.Duration)))
}

// printRunResultText prints the run summary and, on failure, the full
// diagnostic for the first failure.
func printRunResultText(w io.Writer, st styles, outcome *model.RunOutcome) {
	fmt.Fprintln(w)
	if outcome.Succeeded() {
		fmt.Fprintf(w, "%s %d package(s) in %s\n",
			st.pass.Render("OK"), len(outcome.Packages), formatDuration(outcome.Duration))
		return
	}

	fmt.Fprintf(w, "%s after %d package(s) in %s\n",
		st.fail.Render("FAILED"), len(outcome.Packages), formatDuration(outcome.Duration))

	var failure *doctest.Failure
	if !errors.As(outcome.Err, &failure) {
		return
	}
	printFailureText(w, st, failure)
}

// printFailureText renders each failing example the way the engine
// reports it, or the raw output when it could not be parsed.
func printFailureText(w io.Writer, st styles, f *doctest.Failure) {
	fmt.Fprintf(w, "\n%s %s\n", st.header.Render("Package:"), f.Package)
	fmt.Fprintf(w, "%s %s\n", st.header.Render("Directory:"), f.Dir)

	if len(f.Examples) == 0 {
		fmt.Fprintf(w, "\n%s\n", st.header.Render("Engine output:"))
		fmt.Fprintln(w, st.block.Render(strings.TrimRight(string(f.Output), "\n")))
		return
	}

	for _, ex := range f.Examples {
		fmt.Fprintf(w, "\n%s", st.fail.Render(ex.String()))
		if ex.Location != "" {
			fmt.Fprintf(w, " %s", st.dim.Render("in "+ex.Location))
		}
		fmt.Fprintln(w)
		printSection(w, st, "Expected:", ex.Expected)
		if ex.Exception != "" {
			printSection(w, st, "Exception raised:", ex.Exception)
		} else {
			printSection(w, st, "Got:", ex.Got)
		}
	}
}

func printSection(w io.Writer, st styles, title, body string) {
	fmt.Fprintf(w, "  %s\n", st.header.Render(title))
	if body == "" {
		fmt.Fprintln(w, st.block.Render(st.dim.Render("(nothing)")))
		return
	}
	fmt.Fprintln(w, st.block.Render(body))
}

// runResultJSON is the JSON output of the run command.
type runResultJSON struct {
	RunID      string                 `json:"runId"`
	State      string                 `json:"state"`
	DurationMS int64                  `json:"durationMs"`
	Packages   []packageResultJSON    `json:"packages"`
	Error      *runErrorJSON          `json:"error,omitempty"`
	Failures   []model.ExampleFailure `json:"failures,omitempty"`
}

type packageResultJSON struct {
	Name       string `json:"name"`
	Dir        string `json:"dir,omitempty"`
	Passed     bool   `json:"passed"`
	DurationMS int64  `json:"durationMs"`
}

type runErrorJSON struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
}

// buildRunResultJSON converts an outcome to its JSON form.
func buildRunResultJSON(outcome *model.RunOutcome) runResultJSON {
	result := runResultJSON{
		RunID:      outcome.RunID,
		State:      outcome.State.String(),
		DurationMS: outcome.Duration.Milliseconds(),
		Packages:   make([]packageResultJSON, 0, len(outcome.Packages)),
	}
	for _, pkg := range outcome.Packages {
		result.Packages = append(result.Packages, packageResultJSON{
			Name:       pkg.Name,
			Dir:        pkg.Dir,
			Passed:     pkg.Passed,
			DurationMS: pkg.Duration.Milliseconds(),
		})
	}

	if outcome.Err != nil {
		result.Error = &runErrorJSON{
			Code:    int(model.ExitCodeOf(outcome.Err)),
			Message: outcome.Err.Error(),
		}
		var failure *doctest.Failure
		if errors.As(outcome.Err, &failure) {
			result.Failures = failure.Examples
			result.Error.Output = string(failure.Output)
		}
	}
	return result
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}

// formatDuration rounds d for display: milliseconds below one second,
// tenths of a second above.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
