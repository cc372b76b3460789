package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shinji-kodama/docrun/internal/model"
)

// ValidationError represents a specific validation failure in a plan.
type ValidationError struct {
	// Field is the plan field path that failed validation
	// (e.g., "packages[1].files[0]").
	Field string

	// Message describes what's wrong with the field value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a loaded plan for structural problems. It returns every
// problem found (empty list = valid plan) so they can be fixed in one pass.
//
// Checks performed:
//   - at least one package, each with a directory and a non-empty file list
//   - unique package names and unique files within a package
//   - file paths relative and inside their package directory
//   - requirement names are valid, unique environment variable names
//   - engine command non-empty, timeout a non-negative duration
//   - a docker block names an image
func Validate(p *model.Plan) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	seenReq := make(map[string]bool)
	for i, req := range p.Requirements {
		field := fmt.Sprintf("requirements[%d].name", i)
		if err := model.ValidateEnvName(req.Name); err != nil {
			add(field, "%v", err)
			continue
		}
		if seenReq[req.Name] {
			add(field, "duplicate requirement %q", req.Name)
		}
		seenReq[req.Name] = true
	}

	if len(p.Packages) == 0 {
		add("packages", "plan must list at least one package")
	}

	seenPkg := make(map[string]bool)
	for i, pkg := range p.Packages {
		prefix := fmt.Sprintf("packages[%d]", i)

		if strings.TrimSpace(pkg.Dir) == "" {
			add(prefix+".dir", "package directory must not be empty")
		}
		if name := pkg.DisplayName(); name != "" {
			if seenPkg[name] {
				add(prefix+".name", "duplicate package %q", name)
			}
			seenPkg[name] = true
		}

		if len(pkg.Files) == 0 {
			add(prefix+".files", "package %q lists no files", pkg.DisplayName())
		}
		seenFile := make(map[string]bool)
		for j, file := range pkg.Files {
			field := fmt.Sprintf("%s.files[%d]", prefix, j)
			if msg := checkFilePath(file); msg != "" {
				add(field, "%s", msg)
				continue
			}
			clean := filepath.Clean(file)
			if seenFile[clean] {
				add(field, "duplicate file %q", file)
			}
			seenFile[clean] = true
		}
	}

	if len(p.Engine.Command) == 0 || strings.TrimSpace(p.Engine.Command[0]) == "" {
		add("engine.command", "engine command must not be empty")
	}
	names := make([]string, 0, len(p.Engine.Env))
	for name := range p.Engine.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := model.ValidateEnvName(name); err != nil {
			add("engine.env", "%v", err)
		}
	}
	if p.Engine.Docker != nil && strings.TrimSpace(p.Engine.Docker.Image) == "" {
		add("engine.docker.image", "image is required when docker is configured")
	}
	if p.Engine.Docker != nil && p.Engine.Docker.Workdir != "" && !strings.HasPrefix(p.Engine.Docker.Workdir, "/") {
		add("engine.docker.workdir", "workdir must be an absolute container path")
	}

	if _, err := p.TimeoutDuration(); err != nil {
		add("timeout", "%v", err)
	}

	return errs
}

// checkFilePath returns a description of what is wrong with a test target
// path, or "" if it is acceptable.
func checkFilePath(file string) string {
	if strings.TrimSpace(file) == "" {
		return "file path must not be empty"
	}
	if filepath.IsAbs(file) {
		return fmt.Sprintf("file %q must be relative to the package directory", file)
	}
	clean := filepath.Clean(file)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Sprintf("file %q escapes the package directory", file)
	}
	return ""
}

// AsError folds validation errors into a single CLIError with
// ExitPlanInvalid, or returns nil when errs is empty.
func AsError(path string, errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i := range errs {
		lines[i] = "  " + errs[i].Error()
	}
	return model.NewCLIError(model.ExitPlanInvalid,
		fmt.Sprintf("invalid plan %s:\n%s", path, strings.Join(lines, "\n")))
}

// LoadValid loads the plan at path and validates it.
func LoadValid(path string) (*model.Plan, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := AsError(path, Validate(p)); err != nil {
		return nil, err
	}
	return p, nil
}
