// Package result holds the user-facing summaries of a run and writes them
// to the console or a result file.
package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Result is a printable run summary.
type Result interface {
	fmt.Stringer
	isResult()
}

// RunStarted is reported when the client does not wait for completion.
type RunStarted struct {
	ID string `json:"id" yaml:"id"`
}

func (r RunStarted) String() string {
	return fmt.Sprintf("Test run %s started", r.ID)
}

func (RunStarted) isResult() {}

// RunFinished summarizes a run that reached a terminal state.
type RunFinished struct {
	ID           string        `json:"id" yaml:"id"`
	Report       string        `json:"report" yaml:"report"`
	State        string        `json:"state" yaml:"state"`
	Passed       *int          `json:"passed" yaml:"passed"`
	Failed       *int          `json:"failed" yaml:"failed"`
	Ignored      *int          `json:"ignored" yaml:"ignored"`
	BillableTime time.Duration `json:"-" yaml:"-"`
}

func (RunFinished) isResult() {}

func (r RunFinished) String() string {
	var b strings.Builder
	switch r.State {
	case "passed":
		b.WriteString("Marathon Cloud execution finished\n")
	case "failure":
		b.WriteString("Marathon Cloud execution finished with failures\n")
	default:
		b.WriteString("Marathon Cloud execution crashed\n")
	}
	fmt.Fprintf(&b, "\tstate: %s\n", r.State)
	fmt.Fprintf(&b, "\treport: %s\n", r.Report)
	fmt.Fprintf(&b, "\tpassed: %s\n", count(r.Passed))
	fmt.Fprintf(&b, "\tfailed: %s\n", count(r.Failed))
	fmt.Fprintf(&b, "\tignored: %s\n", count(r.Ignored))
	fmt.Fprintf(&b, "\tbillable time: %s\n", FormatBillable(r.BillableTime))
	return b.String()
}

// finishedWire is the serialized form with billable time in seconds.
type finishedWire struct {
	ID           string  `json:"id" yaml:"id"`
	Report       string  `json:"report" yaml:"report"`
	State        string  `json:"state" yaml:"state"`
	Passed       *int    `json:"passed" yaml:"passed"`
	Failed       *int    `json:"failed" yaml:"failed"`
	Ignored      *int    `json:"ignored" yaml:"ignored"`
	BillableTime float64 `json:"billable_time" yaml:"billable_time"`
}

func (r RunFinished) wire() finishedWire {
	return finishedWire{
		ID:           r.ID,
		Report:       r.Report,
		State:        r.State,
		Passed:       r.Passed,
		Failed:       r.Failed,
		Ignored:      r.Ignored,
		BillableTime: r.BillableTime.Seconds(),
	}
}

func (r RunFinished) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r RunFinished) MarshalYAML() (any, error) {
	return r.wire(), nil
}

func count(n *int) string {
	if n == nil {
		return "missing"
	}
	return fmt.Sprint(*n)
}

// FormatBillable renders d as HH:MM:SS.mmm.
func FormatBillable(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// ValidateFilePath checks that path has a supported extension.
func ValidateFilePath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return nil
	default:
		return fmt.Errorf("unsupported result file extension %q: use .json, .yaml or .yml", filepath.Ext(path))
	}
}

// Marshal encodes r as JSON or YAML depending on format.
func Marshal(r Result, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.Marshal(r)
	case "yaml", "yml":
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unsupported result format %q", format)
	}
}

// WriteFile writes r to path, choosing the encoding from the extension.
func WriteFile(path string, r Result) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	data, err := Marshal(r, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create result directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result file: %w", err)
	}
	return nil
}
