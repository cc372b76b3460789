// Package plan loads and validates docrun execution plans.
//
// A plan is a static, version-controlled file listing the required
// configuration and the packages (with their ordered file lists) whose
// doctests are verified. Three formats are accepted, chosen by extension:
//
//   - .yaml / .yml  parsed with gopkg.in/yaml.v3
//   - .toml         parsed with github.com/BurntSushi/toml
//   - .json / .jsonc  comments and trailing commas stripped with
//     github.com/tidwall/jsonc, then parsed with encoding/json
//
// Plan variants (for example with and without a module that needs extra
// configuration) are separate plan files; nothing is discovered at run time.
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/docrun/internal/doctest"
	"github.com/shinji-kodama/docrun/internal/model"
)

// FileNames are the plan file names Find looks for, in priority order.
var FileNames = []string{
	"docrun.yaml",
	"docrun.yml",
	"docrun.toml",
	"docrun.jsonc",
	"docrun.json",
}

// searchDirs are the subdirectories of the search root Find looks in.
// The test-suite directory is a common home for the plan next to the
// tests it drives.
var searchDirs = []string{".", "tests"}

// Load reads the plan file at path, decodes it according to its
// extension, applies defaults, and records the file's absolute path in
// Plan.Path.
//
// Returns a CLIError with ExitPlanInvalid if the file does not exist, has
// an unknown extension, or cannot be decoded. Load does not validate the
// plan; call Validate for that.
func Load(path string) (*model.Plan, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan path %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitPlanInvalid,
				fmt.Sprintf("plan file not found: %s", path), err)
		}
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	p, err := Decode(data, filepath.Ext(abs))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitPlanInvalid,
			fmt.Sprintf("failed to parse plan file %s", path), err)
	}
	p.Path = abs
	return p, nil
}

// Decode parses plan data in the format selected by ext (".yaml", ".toml",
// ".jsonc", ...) and applies defaults.
func Decode(data []byte, ext string) (*model.Plan, error) {
	var p model.Plan

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to an empty plan; Validate reports it.
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

	case ".toml":
		md, err := toml.Decode(string(data), &p)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown field %q", undecoded[0].String())
		}

	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported plan format %q (use .yaml, .toml, .json, or .jsonc)", ext)
	}

	ApplyDefaults(&p)
	return &p, nil
}

// ApplyDefaults fills unset fields: the engine command defaults to
// doctest.DefaultCommand and package names default to their directory.
func ApplyDefaults(p *model.Plan) {
	if len(p.Engine.Command) == 0 {
		p.Engine.Command = append([]string(nil), doctest.DefaultCommand...)
	}
	for i := range p.Packages {
		if p.Packages[i].Name == "" {
			p.Packages[i].Name = p.Packages[i].Dir
		}
	}
}

// Find searches dir and dir/tests for a plan file, trying FileNames in
// order within each directory.
//
// Returns the absolute path of the first match, or a CLIError with
// ExitPlanInvalid if none exists.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for _, sub := range searchDirs {
		for _, name := range FileNames {
			candidate := filepath.Join(abs, sub, name)
			if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
				return candidate, nil
			}
		}
	}

	return "", model.NewCLIError(model.ExitPlanInvalid,
		fmt.Sprintf("no plan file found in %s (searched %s in . and tests/)", abs, strings.Join(FileNames, ", ")))
}
