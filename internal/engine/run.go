package engine

import (
	"context"
	"fmt"

	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
	"github.com/marathonlabs/marathon-cloud/internal/result"
)

// Stage names reported to the observer.
const (
	StageSubmit   = "Submitting new run..."
	StageWait     = "Waiting for test run to finish..."
	StageCheck    = "Checking test run state..."
	StageList     = "Fetching file list..."
	StageDownload = "Downloading files..."
	StagePatch    = "Patching local relative paths..."
)

// RunOptions control how far Run follows the submitted run.
type RunOptions struct {
	Wait               bool
	Output             string // artifact directory; empty skips downloads
	IgnoreTestFailures bool
}

// Run submits req and, depending on opts, waits for the run and downloads
// its artifacts. Errors are returned only for failures of the workflow
// itself; a failing test run is reported through Outcome.Success.
func (e *Engine) Run(ctx context.Context, req RunRequest, opts RunOptions) (*Outcome, error) {
	total := 1
	if opts.Wait {
		total = 2
		if opts.Output != "" {
			total = 5
		}
	}
	stages := progress.NewStages(e.obs, total)

	stages.Begin(StageSubmit)
	id, err := e.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if !opts.Wait {
		return &Outcome{RunID: id, Result: result.RunStarted{ID: id}, Success: true}, nil
	}

	stages.Begin(StageWait)
	run, err := e.AwaitTerminal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("wait for run %s: %w", id, err)
	}
	if run.ID == "" {
		run.ID = id
	}
	out := &Outcome{
		RunID:  id,
		Status: run,
		Result: finished(run, e.cfg.ReportURL(id)),
	}

	if opts.Output != "" {
		report, err := e.fetchArtifacts(ctx, stages, id, opts.Output, "")
		if err != nil {
			return nil, err
		}
		out.Downloads = report
	}

	out.Success = Succeeded(run.State, opts.IgnoreTestFailures, out.Downloads)
	return out, nil
}

// DownloadOptions control a standalone artifact download.
type DownloadOptions struct {
	Wait   bool
	Output string
	Glob   string
}

// Download retrieves the artifacts of an existing run. When Wait is false
// the run's current state is used as-is, and an unfinished run is reported
// as RunStarted.
func (e *Engine) Download(ctx context.Context, id string, opts DownloadOptions) (*Outcome, error) {
	if opts.Output == "" {
		return nil, fmt.Errorf("download: output directory is required")
	}
	stages := progress.NewStages(e.obs, 4)

	stages.Begin(StageCheck)
	run, err := e.cfg.Runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.IsTerminal() {
		if opts.Wait {
			if run, err = e.AwaitTerminal(ctx, id); err != nil {
				return nil, fmt.Errorf("wait for run %s: %w", id, err)
			}
		} else {
			e.logger.Warn("engine: run has not finished, artifacts may be incomplete", "id", id, "state", run.State)
		}
	}

	report, err := e.fetchArtifacts(ctx, stages, id, opts.Output, opts.Glob)
	if err != nil {
		return nil, err
	}
	out := &Outcome{RunID: id, Status: run, Downloads: report}
	if run.ID == "" {
		run.ID = id
	}
	if run.IsTerminal() {
		out.Result = finished(run, e.cfg.ReportURL(id))
	} else {
		out.Result = result.RunStarted{ID: id}
	}
	out.Success = report.OK()
	return out, nil
}

// fetchArtifacts runs the list, download and patch stages.
func (e *Engine) fetchArtifacts(ctx context.Context, stages *progress.Stages, id, output, glob string) (*artifacts.Report, error) {
	stages.Begin(StageList)
	arts, err := artifacts.Crawl(ctx, e.cfg.Artifacts, id, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	before := len(arts)
	if arts, err = artifacts.Filter(arts, id, glob); err != nil {
		return nil, err
	}
	e.logger.Debug("engine: artifact list", "id", id, "found", before, "selected", len(arts))

	stages.Begin(StageDownload)
	report := e.downloader().Download(ctx, id, output, arts)
	if !report.OK() {
		e.logger.Warn("engine: some artifacts failed to download", "failed", len(report.Failed), "total", report.Total)
	}

	stages.Begin(StagePatch)
	if err := artifacts.PatchAllurePaths(output); err != nil {
		return nil, fmt.Errorf("patch report paths: %w", err)
	}
	return report, nil
}
