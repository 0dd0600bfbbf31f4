package artifacts

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when an artifact ID would be written outside
// the output directory.
var ErrPathEscape = errors.New("artifact path escapes output directory")

// RelativePath strips the "<runID>/" prefix from id, or a single leading
// slash when the prefix is absent.
func RelativePath(runID, id string) string {
	if rel, ok := strings.CutPrefix(id, runID+"/"); ok {
		return rel
	}
	return strings.TrimPrefix(id, "/")
}

// LocalPath maps an artifact ID onto a file below outDir.
func LocalPath(runID, outDir, id string) (string, error) {
	rel := RelativePath(runID, id)
	dst := filepath.Join(outDir, filepath.FromSlash(rel))

	r, err := filepath.Rel(filepath.Clean(outDir), dst)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, id)
	}
	return dst, nil
}
