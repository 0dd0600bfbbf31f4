package api

import (
	"context"
	"io"
	"net/url"
)

// ListArtifacts returns the direct children of the artifact directory id.
// The run ID itself is the root directory.
func (c *Client) ListArtifacts(ctx context.Context, id string) ([]Artifact, error) {
	const op = "list artifacts"
	resp, err := c.doBearer(ctx, op, c.endpoint("/v1/artifact/"+escapePath(id), nil))
	if err != nil {
		return nil, err
	}
	var out []Artifact
	if err := decode(resp, op, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadArtifact opens the content stream of a file artifact. The caller
// must close the returned reader.
func (c *Client) DownloadArtifact(ctx context.Context, id string) (io.ReadCloser, error) {
	const op = "download artifact"
	resp, err := c.doBearer(ctx, op, c.endpoint("/v1/artifact", url.Values{"key": {id}}))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
