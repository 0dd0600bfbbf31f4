package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// DefaultAttempts is the number of tries per artifact.
const DefaultAttempts = 3

// ProgressTask is the observer task name used for artifact downloads.
const ProgressTask = "artifacts"

// Fetcher opens the content stream of a file artifact.
type Fetcher interface {
	DownloadArtifact(ctx context.Context, id string) (io.ReadCloser, error)
}

// Task is a single planned download.
type Task struct {
	Artifact  api.Artifact
	LocalPath string
}

// DownloadFailed records an artifact that could not be downloaded.
type DownloadFailed struct {
	Artifact api.Artifact
	Attempts int
	Err      error
}

func (e *DownloadFailed) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("artifact %s: %v", e.Artifact.ID, e.Err)
	}
	return fmt.Sprintf("artifact %s: all %d attempts failed: %v", e.Artifact.ID, e.Attempts, e.Err)
}

func (e *DownloadFailed) Unwrap() error {
	return e.Err
}

// Report summarizes a download pass.
type Report struct {
	Total     int
	Succeeded int
	Failed    []*DownloadFailed
}

// OK reports whether every artifact was downloaded.
func (r *Report) OK() bool {
	return r != nil && len(r.Failed) == 0
}

// Err combines all failures into one error, nil when there were none.
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, f)
	}
	return err
}

// Downloader fetches artifacts into a local directory.
type Downloader struct {
	Fetcher    Fetcher
	Workers    int
	Attempts   int
	RetryDelay time.Duration
	Observer   progress.Observer
	Logger     *slog.Logger
}

// Plan maps artifacts onto local paths below outDir. Artifacts whose path
// would escape outDir are returned as failures.
func Plan(runID, outDir string, arts []api.Artifact) ([]Task, []*DownloadFailed) {
	tasks := make([]Task, 0, len(arts))
	var failed []*DownloadFailed
	for _, a := range arts {
		p, err := LocalPath(runID, outDir, a.ID)
		if err != nil {
			failed = append(failed, &DownloadFailed{Artifact: a, Err: err})
			continue
		}
		tasks = append(tasks, Task{Artifact: a, LocalPath: p})
	}
	return tasks, failed
}

// Download fetches every artifact into outDir. Individual failures are
// collected in the report and never abort the remaining downloads.
func (d *Downloader) Download(ctx context.Context, runID, outDir string, arts []api.Artifact) *Report {
	obs := progress.OrNop(d.Observer)
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	tasks, failed := Plan(runID, outDir, arts)
	report := &Report{Total: len(arts), Failed: failed}
	for _, f := range failed {
		logger.Warn("artifacts: skipping artifact", "id", f.Artifact.ID, "error", f.Err)
	}

	logger.Debug("artifacts: downloading", "count", len(tasks), "output", outDir)
	obs.OnStart(ProgressTask, int64(len(arts)))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(workers)
	for _, task := range tasks {
		g.Go(func() error {
			attempts, err := d.fetchWithRetry(ctx, task, logger)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, &DownloadFailed{Artifact: task.Artifact, Attempts: attempts, Err: err})
				return nil
			}
			report.Succeeded++
			obs.OnProgress(ProgressTask, 1)
			return nil
		})
	}
	_ = g.Wait()
	obs.OnDone(ProgressTask)
	return report
}

func (d *Downloader) fetchWithRetry(ctx context.Context, task Task, logger *slog.Logger) (int, error) {
	attempts := d.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	delay := d.RetryDelay
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	}))

	tried := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tried++
		err := d.fetch(ctx, task)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		logger.Debug("artifacts: download attempt failed",
			"id", task.Artifact.ID,
			"attempt", tried,
			"error", err)
		return retry.RetryableError(err)
	})
	return tried, err
}

// fetch writes one artifact through a temp file so a partial download is
// never visible under its final name.
func (d *Downloader) fetch(ctx context.Context, task Task) (err error) {
	dir := filepath.Dir(task.LocalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	body, err := d.Fetcher.DownloadArtifact(ctx, task.Artifact.ID)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(task.LocalPath)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, body); err != nil {
		return fmt.Errorf("write %s: %w", task.LocalPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", task.LocalPath, err)
	}
	if err = os.Rename(tmp.Name(), task.LocalPath); err != nil {
		return fmt.Errorf("rename %s: %w", task.LocalPath, err)
	}
	return nil
}
