package network

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/upos-tools/go-uploader/v2/internal/wait"
	"github.com/upos-tools/go-uploader/v2/submission"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

// UposBackend uploads into the web ingest service: sessions come from the preupload endpoint,
// chunks are PUT to the per-file upos endpoint and the upload status call finalizes the file.
// It is also the submission endpoint of the same service.
type UposBackend struct {
	client   apiClient
	acquirer SessionAcquirer
	preDelay time.Duration
	logger   log.Logger
}

var (
	_ Backend             = (*UposBackend)(nil)
	_ CoverUploader       = (*UposBackend)(nil)
	_ submission.Endpoint = (*UposBackend)(nil)
)

// NewUposBackend ...
func NewUposBackend(params APIParams, config SessionConfig, logger log.Logger) (*UposBackend, error) {
	return newUposBackend(newAPIHTTPClient(logger), params, config, logger)
}

// newAPIHTTPClient returns a client that sends every request exactly once.
// Sessions and submissions are retried by SessionAcquirer and submission.Submitter.
func newAPIHTTPClient(logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	return client
}

func newUposBackend(httpClient *retryablehttp.Client, params APIParams, config SessionConfig, logger log.Logger) (*UposBackend, error) {
	client, err := newAPIClient(httpClient, params, logger)
	if err != nil {
		return nil, err
	}

	b := &UposBackend{
		client:   client,
		preDelay: config.PreDelay,
		logger:   logger,
	}
	b.acquirer = NewSessionAcquirer(b, config, logger)
	return b, nil
}

// Name ...
func (b *UposBackend) Name() string {
	return "upos"
}

// AcquireSession ...
func (b *UposBackend) AcquireSession(ctx context.Context, path string, size int64) (*chunkuploader.Session, error) {
	return b.acquirer.AcquireSession(ctx, path, size)
}

// Negotiate requests upload parameters and then an upload ID for them.
func (b *UposBackend) Negotiate(ctx context.Context, path string, size int64) (*chunkuploader.Session, error) {
	name := filepath.Base(path)

	pre, err := b.client.preupload(ctx, name, size)
	if err != nil {
		return nil, fmt.Errorf("preupload: %w", err)
	}
	endpoint := b.client.endpointURL(pre)
	b.logger.Debugf("Upload endpoint: %s", endpoint)

	if err := wait.Sleep(ctx, b.preDelay); err != nil {
		return nil, err
	}

	uploadID, err := b.client.uploadID(ctx, endpoint, pre.Auth)
	if err != nil {
		return nil, fmt.Errorf("get upload ID: %w", err)
	}

	return &chunkuploader.Session{
		Path:        path,
		Filename:    name,
		EndpointURL: endpoint,
		AuthToken:   pre.Auth,
		ChunkSize:   pre.ChunkSize,
		TotalSize:   size,
		UploadID:    uploadID,
		BizID:       pre.BizID,
	}, nil
}

// Sender ...
func (b *UposBackend) Sender() chunkuploader.Sender {
	return chunkuploader.SenderFunc(b.client.uploadChunk)
}

// Finalize ...
func (b *UposBackend) Finalize(ctx context.Context, session *chunkuploader.Session) (FinalizeResult, error) {
	result, err := b.client.uploadStatus(ctx, session)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("upload status: %w", err)
	}
	return result, nil
}

// Abort is a no-op: the ingest service expires unfinished upload sessions on its own.
func (b *UposBackend) Abort(context.Context, *chunkuploader.Session) error {
	return nil
}

// UploadCover uploads the image at path and returns its URL, to be used as submission.Work.Cover.
func (b *UposBackend) UploadCover(ctx context.Context, path string) (string, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read cover: %w", err)
	}
	url, err := b.client.uploadCover(ctx, image)
	if err != nil {
		return "", fmt.Errorf("upload cover %s: %w", filepath.Base(path), err)
	}
	return url, nil
}

// Submit sends a work payload.
func (b *UposBackend) Submit(ctx context.Context, payload map[string]any) (submission.Result, error) {
	return b.client.submit(ctx, payload)
}
