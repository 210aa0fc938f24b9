package upload

import (
	"time"

	goanalytics "github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/upos-tools/go-uploader/v2/analytics"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

type uploadTracker struct {
	tracker goanalytics.Tracker
	backend string
}

func newUploadTracker(backend string, envRepo env.Repository, logger log.Logger) uploadTracker {
	tracker := analytics.NewDefaultUploadTracker(envRepo, logger)
	if tracker.IsTracking() {
		logger.Debugf("Sending upload analytics events")
	}
	return uploadTracker{tracker: tracker, backend: backend}
}

func (t *uploadTracker) logSessionAcquired(negotiationTime time.Duration, chunkCount int) {
	properties := goanalytics.Properties{
		"backend":            t.backend,
		"negotiation_time_s": negotiationTime.Truncate(time.Millisecond).Seconds(),
		"chunk_count":        chunkCount,
	}
	t.tracker.Enqueue("video_upload_session_acquired", properties)
}

func (t *uploadTracker) logChunksDrained(uploadTime time.Duration, size int64, result chunkuploader.UploadResult) {
	properties := goanalytics.Properties{
		"backend":           t.backend,
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": size,
		"uploaded_chunks":   result.Uploaded,
		"failed_chunks":     len(result.Failed),
		"dirty":             result.Dirty,
	}
	t.tracker.Enqueue("video_upload_chunks_drained", properties)
}

func (t *uploadTracker) logFinalized(ok bool) {
	properties := goanalytics.Properties{
		"backend": t.backend,
		"ok":      ok,
	}
	t.tracker.Enqueue("video_upload_finalized", properties)
}

func (t *uploadTracker) wait() {
	t.tracker.Wait()
}
