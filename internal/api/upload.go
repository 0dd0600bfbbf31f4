package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
)

// ProgressFunc receives the number of bytes sent since the previous call.
type ProgressFunc func(delta int64)

// Uploader transfers a local file to the service and returns the opaque
// remote handle referenced by CreateRunRequest.
type Uploader interface {
	Upload(ctx context.Context, localPath string, progress ProgressFunc) (string, error)
}

// Upload API versions.
const (
	UploadV1 = "v1"
	UploadV2 = "v2"
)

// NewUploader returns the uploader for the given API version. v1 posts a
// multipart form to the service; v2 (the default) PUTs to a presigned URL.
func NewUploader(c *Client, version string) (Uploader, error) {
	switch version {
	case UploadV1:
		return &MultipartUploader{client: c}, nil
	case UploadV2, "":
		return &PresignedUploader{client: c}, nil
	default:
		return nil, fmt.Errorf("unsupported api version %q", version)
	}
}

// PresignedUploader requests a presigned URL and PUTs the file there.
type PresignedUploader struct {
	client *Client
}

func (u *PresignedUploader) Upload(ctx context.Context, localPath string, progress ProgressFunc) (string, error) {
	const op = "upload"
	f, size, err := openUpload(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	c := u.client
	resp, err := c.postJSON(ctx, op, c.endpoint("/v2/upload/presigned-url", c.keyQuery()),
		uploadURLRequest{Filename: filepath.Base(localPath)})
	if err != nil {
		return "", err
	}
	var target uploadURLResponse
	if err := decode(resp, op, &target); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.URL, &countingReader{r: f, progress: progress})
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.ContentLength = size
	if size == 0 {
		req.Body = http.NoBody
	}
	put, err := c.do(req, op)
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, put.Body)
	put.Body.Close()

	c.logger.Debug("api: uploaded file", "path", localPath, "size", size, "handle", target.FilePath)
	return target.FilePath, nil
}

// MultipartUploader streams the file as a multipart form to the service.
type MultipartUploader struct {
	client *Client
}

func (u *MultipartUploader) Upload(ctx context.Context, localPath string, progress ProgressFunc) (string, error) {
	const op = "upload"
	f, size, err := openUpload(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(localPath))
		if err == nil {
			_, err = io.Copy(part, &countingReader{r: f, progress: progress})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	c := u.client
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/upload", c.keyQuery()), pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req, op)
	if err != nil {
		pr.Close()
		return "", err
	}
	var out uploadResponse
	if err := decode(resp, op, &out); err != nil {
		return "", err
	}

	c.logger.Debug("api: uploaded file", "path", localPath, "size", size, "handle", out.FilePath)
	return out.FilePath, nil
}

func openUpload(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, &InputError{Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, &InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, &InputError{Path: path, Err: errors.New("is a directory")}
	}
	return f, info.Size(), nil
}

type countingReader struct {
	r        io.Reader
	progress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.progress != nil {
		c.progress(int64(n))
	}
	return n, err
}
