// Package chunkuploader splits files into fixed-size chunks and uploads them
// through a bounded worker pool, with per-chunk retries and aggregate progress reporting.
package chunkuploader

import (
	"context"
	"io"
	"iter"
)

// Session holds the parameters negotiated with the remote service for one file.
// It is created once per file and never modified afterwards.
type Session struct {
	// Path is the local path of the file being uploaded.
	Path string
	// Filename is the name reported to the remote service.
	Filename string
	// EndpointURL is where the chunks of this file are sent.
	EndpointURL string
	// AuthToken authorizes chunk requests against EndpointURL.
	AuthToken string
	ChunkSize int64
	TotalSize int64
	// UploadID correlates all chunks and the final status check.
	UploadID string
	// BizID identifies the storage destination.
	BizID int64
}

// NumChunks returns the number of chunks the file is split into.
func (s *Session) NumChunks() int {
	return ChunkCount(s.TotalSize, s.ChunkSize)
}

// Chunks returns the chunk sequence of the session's file.
func (s *Session) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for c := range Segment(s.Path, s.TotalSize, s.ChunkSize) {
			c.Session = s
			if !yield(c) {
				return
			}
		}
	}
}

// Chunk describes the byte range [Start, End) of a file.
type Chunk struct {
	Path  string
	Start int64
	End   int64
	// Index is the zero based position of the chunk, Count the number of chunks in the file.
	Index int
	Count int
	// Total is the size of the whole file.
	Total   int64
	Session *Session
}

// Size returns the number of bytes in the chunk.
func (c Chunk) Size() int64 {
	return c.End - c.Start
}

// PartNumber returns the one based part number of the chunk.
func (c Chunk) PartNumber() int {
	return c.Index + 1
}

// Sender puts the bytes of a single chunk on the wire.
// Implementations report failures as errors and never retry.
type Sender interface {
	Send(ctx context.Context, chunk Chunk, body io.ReadSeeker) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, chunk Chunk, body io.ReadSeeker) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, chunk Chunk, body io.ReadSeeker) error {
	return f(ctx, chunk, body)
}

// ChunkTransport uploads a chunk and reports whether it made it to the remote end.
type ChunkTransport interface {
	UploadChunk(ctx context.Context, chunk Chunk, progress *FileProgress) bool
}

// ChunkResult is posted by a worker once it is done with a chunk.
type ChunkResult struct {
	Chunk Chunk
	OK    bool
}

// UploadResult represents the result of draining a chunk queue.
type UploadResult struct {
	// Dirty is set if at least one chunk failed permanently.
	Dirty bool
	// Failed lists the chunks that exhausted their retries.
	Failed   []Chunk
	Uploaded int
}

// FailedPaths returns the set of files that have at least one failed chunk.
func (r UploadResult) FailedPaths() map[string]bool {
	paths := map[string]bool{}
	for _, c := range r.Failed {
		paths[c.Path] = true
	}
	return paths
}
