// Package engine orchestrates the lifecycle of a test run: upload, submit,
// wait for a terminal state, and retrieve the artifact tree.
package engine

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/bundle"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
)

// DefaultPollInterval is the delay between status requests.
const DefaultPollInterval = 5 * time.Second

// RunService creates runs and reports their status.
type RunService interface {
	CreateRun(ctx context.Context, req *api.CreateRunRequest) (string, error)
	GetRun(ctx context.Context, id string) (*api.TestRun, error)
}

// ArtifactService lists and fetches run artifacts.
type ArtifactService interface {
	artifacts.Lister
	artifacts.Fetcher
}

// Config wires an Engine to its collaborators.
type Config struct {
	Runs      RunService
	Artifacts ArtifactService
	Files     bundle.FileUploader

	// ReportURL builds the web report link for a run ID.
	ReportURL func(id string) string

	Workers          int
	PollInterval     time.Duration
	MaxWait          time.Duration // zero waits forever
	DownloadAttempts int
	RetryDelay       time.Duration

	Observer progress.Observer
	Logger   *slog.Logger
}

// Engine runs the end-to-end workflow.
type Engine struct {
	cfg    Config
	obs    progress.Observer
	logger *slog.Logger
}

// New creates an Engine, filling unset tunables with defaults.
func New(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DownloadAttempts <= 0 {
		cfg.DownloadAttempts = artifacts.DefaultAttempts
	}
	if cfg.ReportURL == nil {
		cfg.ReportURL = func(id string) string { return id }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:    cfg,
		obs:    progress.OrNop(cfg.Observer),
		logger: logger,
	}
}

func (e *Engine) uploader() *bundle.Uploader {
	return &bundle.Uploader{
		Files:    e.cfg.Files,
		Workers:  e.cfg.Workers,
		Observer: e.obs,
		Logger:   e.logger,
	}
}

func (e *Engine) downloader() *artifacts.Downloader {
	return &artifacts.Downloader{
		Fetcher:    e.cfg.Artifacts,
		Workers:    e.cfg.Workers,
		Attempts:   e.cfg.DownloadAttempts,
		RetryDelay: e.cfg.RetryDelay,
		Observer:   e.obs,
		Logger:     e.logger,
	}
}
