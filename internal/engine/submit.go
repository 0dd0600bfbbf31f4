package engine

import (
	"context"
	"fmt"

	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/bundle"
)

// RunRequest describes a run to submit. Files are uploaded first and their
// handles fill the path fields of Params.
type RunRequest struct {
	Files  bundle.Set
	Params api.CreateRunRequest
}

// Submit uploads the request's files and creates the run. It is not
// retried: a failed create must not start a duplicate run.
func (e *Engine) Submit(ctx context.Context, req RunRequest) (string, error) {
	handles, err := e.uploader().UploadAll(ctx, req.Files)
	if err != nil {
		return "", fmt.Errorf("upload files: %w", err)
	}

	params := req.Params
	params.AppPath = handles.AppPath
	params.TestAppPath = handles.TestAppPath
	params.Bundles = handles.Bundles

	id, err := e.cfg.Runs.CreateRun(ctx, &params)
	if err != nil {
		return "", err
	}
	e.logger.Info("engine: run created", "id", id, "platform", params.Platform)
	return id, nil
}
