// Package filtering converts a YAML filter file into the JSON filtering
// configuration attached to a run.
package filtering

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFilter is returned for a filter that cannot be sent to the service.
var ErrInvalidFilter = errors.New("invalid filtering configuration")

var supportedTypes = []string{
	"fully-qualified-class-name",
	"fully-qualified-test-name",
	"simple-class-name",
	"package",
	"method",
	"annotation",
}

const compositionType = "composition"

// File is the top-level document of a filter file.
type File struct {
	FilteringConfiguration Configuration `yaml:"filteringConfiguration" json:"filteringConfiguration"`
}

// Configuration holds the allow and block lists.
type Configuration struct {
	Allowlist []Filter `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Blocklist []Filter `yaml:"blocklist,omitempty" json:"blocklist,omitempty"`
}

// Filter is a single test filter. Exactly one of Regex, Values and File is
// set, except for compositions which carry Op and nested Filters.
type Filter struct {
	Type    string   `yaml:"type" json:"type"`
	Regex   string   `yaml:"regex,omitempty" json:"regex,omitempty"`
	Values  []string `yaml:"values,omitempty" json:"values,omitempty"`
	File    string   `yaml:"file,omitempty" json:"file,omitempty"`
	Filters []Filter `yaml:"filters,omitempty" json:"filters,omitempty"`
	Op      string   `yaml:"op,omitempty" json:"op,omitempty"`
}

// Convert reads the filter file at path, validates it, inlines referenced
// value files and returns the JSON encoding.
func Convert(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read filter file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("parse filter file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	workdir := filepath.Dir(abs)
	for _, list := range [][]Filter{f.FilteringConfiguration.Allowlist, f.FilteringConfiguration.Blocklist} {
		if err := validateFilters(list, workdir); err != nil {
			return "", err
		}
	}

	out, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func validateFilters(filters []Filter, workdir string) error {
	for i := range filters {
		f := &filters[i]
		if f.Type != compositionType {
			if err := validateFilter(f, workdir); err != nil {
				return err
			}
			continue
		}
		if f.Op == "" {
			return invalid(f.Type, "missing 'op' field")
		}
		if len(f.Filters) == 0 {
			return invalid(f.Type, "missing composition filters")
		}
		for j := range f.Filters {
			if err := validateFilter(&f.Filters[j], workdir); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateFilter(f *Filter, workdir string) error {
	if !slices.Contains(supportedTypes, f.Type) {
		return fmt.Errorf("%w: unsupported filter type %q", ErrInvalidFilter, f.Type)
	}

	set := 0
	for _, ok := range []bool{f.Regex != "", len(f.Values) > 0, f.File != ""} {
		if ok {
			set++
		}
	}
	switch {
	case set == 0:
		return invalid(f.Type, "at least one of regex, values or file should be specified")
	case set > 1:
		return invalid(f.Type, "only one of [regex, values, file] can be specified")
	case f.File == "":
		return nil
	}

	if filepath.IsAbs(f.File) {
		return invalid(f.Type, "file should be specified relative to the filter file")
	}
	data, err := os.ReadFile(filepath.Join(workdir, f.File))
	if err != nil || len(data) == 0 {
		return invalid(f.Type, "file does not exist or is not a regular file")
	}
	f.Values = strings.Split(strings.TrimRight(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n"), "\n")
	f.File = ""
	return nil
}

func invalid(typ, msg string) error {
	return fmt.Errorf("%w: filter %q: %s", ErrInvalidFilter, typ, msg)
}
