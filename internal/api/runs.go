package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// CreateRun submits a new run and returns its identifier.
func (c *Client) CreateRun(ctx context.Context, req *CreateRunRequest) (string, error) {
	const op = "create run"
	if req == nil {
		return "", fmt.Errorf("%s: nil request", op)
	}
	resp, err := c.postJSON(ctx, op, c.endpoint("/v2/run", c.keyQuery()), req)
	if err != nil {
		return "", err
	}
	var out createRunResponse
	if err := decode(resp, op, &out); err != nil {
		return "", err
	}
	if out.RunID == "" {
		return "", &RequestError{Op: op, Err: fmt.Errorf("%w: empty run_id", ErrDeserialization)}
	}
	return out.RunID, nil
}

// GetRun fetches the current status of a run.
func (c *Client) GetRun(ctx context.Context, id string) (*TestRun, error) {
	const op = "get run"
	rawURL := c.endpoint("/v1/run/"+url.PathEscape(id), c.keyQuery())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	resp, err := c.do(req, op)
	if err != nil {
		return nil, err
	}
	var run TestRun
	if err := decode(resp, op, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
