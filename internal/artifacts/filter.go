package artifacts

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/marathonlabs/marathon-cloud/internal/api"
)

// Filter keeps the artifacts whose run-relative path matches glob. An
// empty glob keeps everything.
func Filter(arts []api.Artifact, runID, glob string) ([]api.Artifact, error) {
	if glob == "" {
		return arts, nil
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob pattern %q", glob)
	}
	out := make([]api.Artifact, 0, len(arts))
	for _, a := range arts {
		if doublestar.MatchUnvalidated(glob, RelativePath(runID, a.ID)) {
			out = append(out, a)
		}
	}
	return out, nil
}
