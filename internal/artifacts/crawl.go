// Package artifacts discovers and downloads the artifact tree of a run.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"golang.org/x/sync/errgroup"
)

// ErrListFailed is returned when any directory listing fails during a crawl.
var ErrListFailed = errors.New("failed to list artifacts")

// Lister lists the direct children of an artifact directory.
type Lister interface {
	ListArtifacts(ctx context.Context, id string) ([]api.Artifact, error)
}

// Crawl walks the artifact tree below root and returns every file node.
// Directories are listed level by level with at most workers listings in
// flight. The first listing error aborts the crawl; no partial result is
// returned. Order of the result is unspecified.
func Crawl(ctx context.Context, lister Lister, root string, workers int) ([]api.Artifact, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var files []api.Artifact
	seen := map[string]bool{root: true}
	frontier := []string{root}

	for len(frontier) > 0 {
		var (
			mu   sync.Mutex
			next []api.Artifact
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, dir := range frontier {
			g.Go(func() error {
				children, err := lister.ListArtifacts(gctx, dir)
				if err != nil {
					return fmt.Errorf("%w: %s: %w", ErrListFailed, dir, err)
				}
				mu.Lock()
				next = append(next, children...)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, a := range next {
			if seen[a.ID] {
				continue
			}
			seen[a.ID] = true
			if a.IsFile {
				files = append(files, a)
			} else {
				frontier = append(frontier, a.ID)
			}
		}
	}
	return files, nil
}
