// Package bundle uploads the application files of a run and collects the
// remote handles the service expects in the run request.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
	"golang.org/x/sync/errgroup"
)

// ErrEmptySet is returned when a set contains no test application at all.
var ErrEmptySet = errors.New("no test application or bundle supplied")

// Bundle pairs an application with the test application exercising it.
type Bundle struct {
	App     string
	TestApp string
}

// Set lists the local files of a run.
type Set struct {
	Application     string
	TestApplication string
	Bundles         []Bundle
	Libraries       []string
}

// Empty reports whether the set has nothing that could be tested.
func (s Set) Empty() bool {
	return s.TestApplication == "" && len(s.Bundles) == 0 && len(s.Libraries) == 0
}

// paths returns every referenced file once, in input order.
func (s Set) paths() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(s.Application)
	add(s.TestApplication)
	for _, b := range s.Bundles {
		add(b.App)
		add(b.TestApp)
	}
	for _, l := range s.Libraries {
		add(l)
	}
	return out
}

// Handles are the remote references of an uploaded Set.
type Handles struct {
	AppPath     string
	TestAppPath string
	Bundles     []api.RunBundle
}

// FileUploader transfers a single file. api.Uploader satisfies it.
type FileUploader interface {
	Upload(ctx context.Context, localPath string, progress api.ProgressFunc) (string, error)
}

// Uploader uploads all files of a Set with bounded parallelism.
type Uploader struct {
	Files    FileUploader
	Workers  int
	Observer progress.Observer
	Logger   *slog.Logger
}

// UploadAll uploads every file of set and maps the results back onto the
// set's structure. A file referenced more than once is uploaded once.
func (u *Uploader) UploadAll(ctx context.Context, set Set) (*Handles, error) {
	if set.Empty() {
		return nil, ErrEmptySet
	}
	obs := progress.OrNop(u.Observer)
	logger := u.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := u.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	paths := set.paths()
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, &api.InputError{Path: p, Err: err}
		}
	}

	var mu sync.Mutex
	remote := make(map[string]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range paths {
		g.Go(func() error {
			info, err := os.Stat(p)
			if err != nil {
				return &api.InputError{Path: p, Err: err}
			}
			obs.OnStart(p, info.Size())
			handle, err := u.Files.Upload(gctx, p, func(delta int64) {
				obs.OnProgress(p, delta)
			})
			if err != nil {
				return fmt.Errorf("upload %s: %w", p, err)
			}
			obs.OnDone(p)
			logger.Debug("bundle: uploaded", "path", p, "handle", handle)

			mu.Lock()
			remote[p] = handle
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := &Handles{
		AppPath:     remote[set.Application],
		TestAppPath: remote[set.TestApplication],
	}
	for _, b := range set.Bundles {
		h.Bundles = append(h.Bundles, api.RunBundle{AppPath: remote[b.App], TestAppPath: remote[b.TestApp]})
	}
	for _, l := range set.Libraries {
		h.Bundles = append(h.Bundles, api.RunBundle{TestAppPath: remote[l]})
	}
	return h, nil
}

// ParseBundle parses an "app,test" pair.
func ParseBundle(s string) (Bundle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Bundle{}, fmt.Errorf("invalid application bundle %q, expected <app>,<test app>", s)
	}
	return Bundle{App: strings.TrimSpace(parts[0]), TestApp: strings.TrimSpace(parts[1])}, nil
}

// ParseBundles parses every value with ParseBundle.
func ParseBundles(values []string) ([]Bundle, error) {
	out := make([]Bundle, 0, len(values))
	for _, v := range values {
		b, err := ParseBundle(v)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
