package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

// ErrFinalizeRejected is returned when the remote service does not accept a fully sent file.
var ErrFinalizeRejected = errors.New("upload rejected by the remote service")

// Backend is a storage service the chunk engine can upload into.
type Backend interface {
	// Name identifies the backend in logs and analytics.
	Name() string
	// AcquireSession opens an upload session for the file at path. Errors are fatal for the file.
	AcquireSession(ctx context.Context, path string, size int64) (*chunkuploader.Session, error)
	// Sender puts single chunks of any session of this backend on the wire.
	Sender() chunkuploader.Sender
	// Finalize asks the remote service whether the file of session arrived.
	Finalize(ctx context.Context, session *chunkuploader.Session) (FinalizeResult, error)
	// Abort releases a session that will not be finalized.
	Abort(ctx context.Context, session *chunkuploader.Session) error
}

// CoverUploader is implemented by backends that host cover images for submitted works.
type CoverUploader interface {
	UploadCover(ctx context.Context, path string) (string, error)
}

// FinalizeResult is the status the remote service reported for an uploaded file.
type FinalizeResult struct {
	OK      bool
	Details map[string]any
}

// Err returns nil for accepted uploads and an ErrFinalizeRejected error carrying the details otherwise.
func (r FinalizeResult) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrFinalizeRejected, r.Details)
}
