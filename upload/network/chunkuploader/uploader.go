package chunkuploader

import (
	"context"
	"iter"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"golang.org/x/sync/errgroup"
)

// Uploader drains chunk queues through a bounded pool of workers.
type Uploader struct {
	config    Config
	transport ChunkTransport
	sink      ProgressSink
	logger    log.Logger
}

// New creates a new Uploader. sink may be nil if progress reporting is not needed.
func New(config Config, transport ChunkTransport, sink ProgressSink, logger log.Logger) *Uploader {
	return &Uploader{
		config:    config.withDefaults(),
		transport: transport,
		sink:      sink,
		logger:    logger,
	}
}

// Run uploads every chunk of the sequence and blocks until all of them are done.
// The whole sequence is queued before the workers start. A chunk that exhausts its
// attempts marks the result dirty but does not stop the other chunks.
// Files of the chunks are registered in progress, which is sampled for the sink while the queue drains.
func (u *Uploader) Run(ctx context.Context, chunks iter.Seq[Chunk], progress *Progress) UploadResult {
	var pending []Chunk
	for c := range chunks {
		progress.Track(c.Path, c.Total)
		pending = append(pending, c)
	}

	queue := make(chan Chunk, len(pending))
	for _, c := range pending {
		queue <- c
	}
	close(queue)

	drained := make(chan struct{})
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor(progress, u.sink, u.config.ProgressInterval, drained)
	}()

	workers := u.config.Concurrency
	if workers > len(pending) {
		workers = len(pending)
	}
	u.logger.Debugf("Uploading %d chunks with %d workers", len(pending), workers)

	results := make(chan ChunkResult, len(pending))
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for c := range queue {
				ok := u.transport.UploadChunk(ctx, c, progress.File(c.Path))
				results <- ChunkResult{Chunk: c, OK: ok}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	start := time.Now()
	var result UploadResult
	for r := range results {
		if !r.OK {
			result.Dirty = true
			result.Failed = append(result.Failed, r.Chunk)
			continue
		}
		result.Uploaded++
	}

	close(drained)
	<-monitorDone

	u.logger.Debugf("Chunk queue drained in %v: %d uploaded, %d failed",
		time.Since(start).Round(time.Millisecond), result.Uploaded, len(result.Failed))

	return result
}
