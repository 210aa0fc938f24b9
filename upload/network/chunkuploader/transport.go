package chunkuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Transport streams chunks through a Sender, retrying failed attempts without delay.
// Errors never leave UploadChunk: they are logged and turned into a false result.
type Transport struct {
	sender   Sender
	maxRetry int
	logger   log.Logger
	stats    *Stats
}

// NewTransport creates a Transport that sends chunks with sender.
func NewTransport(sender Sender, config Config, logger log.Logger) *Transport {
	config = config.withDefaults()
	return &Transport{
		sender:   sender,
		maxRetry: config.MaxRetryPerChunk,
		logger:   logger,
		stats:    NewStats(),
	}
}

// Stats returns the upload statistics.
func (t *Transport) Stats() *Stats {
	return t.stats
}

// UploadChunk uploads the chunk, making at most MaxRetryPerChunk attempts.
func (t *Transport) UploadChunk(ctx context.Context, chunk Chunk, progress *FileProgress) bool {
	var uploadErr error

	for attempt := 0; attempt < t.maxRetry; attempt++ {
		if ctx.Err() != nil {
			t.logger.Warnf("Chunk %d/%d of %s cancelled: %s", chunk.PartNumber(), chunk.Count, chunk.Path, ctx.Err())
			t.stats.Fail()
			return false
		}

		t.logger.Debugf("Uploading chunk %d/%d of %s (attempt %d/%d) [finished=%d] [avg=%v]",
			chunk.PartNumber(), chunk.Count, chunk.Path, attempt+1, t.maxRetry,
			t.stats.FinishedCount(), t.stats.Average().Round(time.Millisecond))

		start := time.Now()
		uploadErr = t.uploadChunk(ctx, chunk, progress)
		if uploadErr == nil {
			took := time.Since(start)
			t.stats.Update(took)
			t.logger.Debugf("Chunk %d/%d of %s uploaded in %v", chunk.PartNumber(), chunk.Count, chunk.Path, took.Round(time.Millisecond))
			return true
		}

		t.logger.Warnf("Chunk %d/%d attempt %d failed: %s", chunk.PartNumber(), chunk.Count, attempt+1, uploadErr)
	}

	t.stats.Fail()
	t.logger.Errorf("Chunk %d/%d of %s failed after %d attempts: %s", chunk.PartNumber(), chunk.Count, chunk.Path, t.maxRetry, uploadErr)
	return false
}

func (t *Transport) uploadChunk(ctx context.Context, chunk Chunk, progress *FileProgress) error {
	file, err := os.Open(chunk.Path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			t.logger.Warnf("close %s: %s", chunk.Path, err)
		}
	}(file)

	body := newProgressReader(io.NewSectionReader(file, chunk.Start, chunk.Size()), chunk.Size(), progress)
	if err := t.sender.Send(ctx, chunk, body); err != nil {
		body.rollback()
		return err
	}
	return nil
}
