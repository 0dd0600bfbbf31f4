// Package testutil holds helpers shared by the CLI package tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/marathonlabs/marathon-cloud/internal/cli/output"
)

// TestRenderer is a Renderer whose stdout and stderr are buffered.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer builds a TestRenderer for mode. isTTY decides whether
// auto mode resolves to standard.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	var out, errOut bytes.Buffer
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(&out, &errOut, isTTY, mode),
		Out:      &out,
		ErrOut:   &errOut,
	}
}

// Output is everything printed to stdout so far.
func (r *TestRenderer) Output() string { return r.Out.String() }

// ErrorOutput is everything printed to stderr so far.
func (r *TestRenderer) ErrorOutput() string { return r.ErrOut.String() }

// Reset empties both buffers.
func (r *TestRenderer) Reset() {
	r.Out.Reset()
	r.ErrOut.Reset()
}

var escapeSeq = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// StripANSI drops terminal escape sequences from s.
func StripANSI(s string) string {
	return escapeSeq.ReplaceAllString(s, "")
}

// AssertNoANSI fails t when s carries styling.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if escapeSeq.MatchString(s) {
		t.Errorf("unexpected escape sequence in %q", s)
	}
}

// WriteFile writes content to dir/name, creating parents, and returns the
// full path. Bundle fixtures only need to exist and have a size.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// Lines returns the non-blank lines of s, trimmed.
func Lines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
