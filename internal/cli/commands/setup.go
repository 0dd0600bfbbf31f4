package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/cli/config"
	"github.com/marathonlabs/marathon-cloud/internal/cli/output"
	"github.com/marathonlabs/marathon-cloud/internal/engine"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
	"github.com/marathonlabs/marathon-cloud/internal/result"
	"github.com/spf13/cobra"
)

// ErrTestRunFailed is returned after a failing outcome has been printed.
// The root command exits 1 without printing it again.
var ErrTestRunFailed = errors.New("test run failed")

// progressBuffer is the capacity of the asynchronous progress queue.
const progressBuffer = 256

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext builds a CommandContext from the command's context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Format)),
	}
}

// NewClient creates an API client for the configured service.
func (c *CommandContext) NewClient() (*api.Client, error) {
	if err := c.Cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return api.New(c.Cfg.BaseURL, c.Cfg.APIKey, api.WithLogger(c.Logger)), nil
}

// NewEngine wires an engine to client. The returned cleanup flushes pending
// progress output and must run before the outcome is printed.
func (c *CommandContext) NewEngine(client *api.Client) (*engine.Engine, func(), error) {
	files, err := api.NewUploader(client, c.Cfg.APIVersion)
	if err != nil {
		return nil, nil, err
	}
	obs := progress.NewAsync(c.Renderer.Observer(c.Cfg.NoProgressBars), progressBuffer)

	eng := engine.New(engine.Config{
		Runs:             client,
		Artifacts:        client,
		Files:            files,
		ReportURL:        client.ReportURL,
		Workers:          c.Cfg.Concurrency,
		PollInterval:     c.Cfg.PollInterval,
		MaxWait:          c.Cfg.MaxWait,
		DownloadAttempts: c.Cfg.DownloadAttempts,
		RetryDelay:       c.Cfg.RetryDelay,
		Observer:         obs,
		Logger:           c.Logger,
	})

	cleanup := func() {
		obs.Close()
		if n := obs.Dropped(); n > 0 {
			c.Logger.Debug("progress events dropped", "count", n)
		}
	}
	return eng, cleanup, nil
}

// report writes the result file, prints the outcome and maps it to an
// error for the exit code.
func (c *CommandContext) report(out *engine.Outcome, resultFile string) error {
	if resultFile != "" && out.Result != nil {
		if err := result.WriteFile(resultFile, out.Result); err != nil {
			return fmt.Errorf("write result file: %w", err)
		}
	}
	if out.Result != nil {
		if err := c.Renderer.Result(out.Result); err != nil {
			return err
		}
	}
	c.Renderer.DownloadReport(out.Downloads)
	if !out.Success {
		return ErrTestRunFailed
	}
	return nil
}
