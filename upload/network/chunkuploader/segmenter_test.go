package chunkuploader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(seq func(yield func(Chunk) bool)) []Chunk {
	var chunks []Chunk
	for c := range seq {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestSegment_Partition(t *testing.T) {
	const mb = 1024 * 1024

	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		want      int
	}{
		{name: "empty file", size: 0, chunkSize: 10, want: 0},
		{name: "single byte", size: 1, chunkSize: 10, want: 1},
		{name: "smaller than chunk", size: 9, chunkSize: 10, want: 1},
		{name: "exact multiple", size: 30, chunkSize: 10, want: 3},
		{name: "one byte over", size: 31, chunkSize: 10, want: 4},
		{name: "25MB in 10MB chunks", size: 25 * mb, chunkSize: 10 * mb, want: 3},
		{name: "chunk size of one", size: 7, chunkSize: 1, want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := collect(Segment("video.mp4", tt.size, tt.chunkSize))
			require.Len(t, chunks, tt.want)
			require.Equal(t, tt.want, ChunkCount(tt.size, tt.chunkSize))

			var next int64
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.Equal(t, tt.want, c.Count)
				assert.Equal(t, next, c.Start, "gap or overlap before chunk %d", i)
				assert.True(t, c.End > c.Start, "empty chunk %d", i)
				assert.LessOrEqual(t, c.Size(), tt.chunkSize)
				assert.Equal(t, tt.size, c.Total)
				next = c.End
			}
			if tt.want > 0 {
				assert.Equal(t, tt.size, chunks[len(chunks)-1].End)
			}
		})
	}
}

func TestSegment_InvalidChunkSize(t *testing.T) {
	assert.Empty(t, collect(Segment("video.mp4", 100, 0)))
	assert.Empty(t, collect(Segment("video.mp4", 100, -5)))
}

func TestSegment_Restartable(t *testing.T) {
	seq := Segment("video.mp4", 95, 10)

	first := collect(seq)
	second := collect(seq)

	assert.Equal(t, first, second)
	assert.Len(t, first, 10)
}

func TestSegment_StopsEarly(t *testing.T) {
	var seen []int
	for c := range Segment("video.mp4", 100, 10) {
		seen = append(seen, c.Index)
		if c.Index == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestSession_Chunks(t *testing.T) {
	session := &Session{
		Path:      "/videos/a.mp4",
		ChunkSize: 4,
		TotalSize: 10,
		UploadID:  "upload-1",
	}

	chunks := collect(session.Chunks())

	require.Len(t, chunks, session.NumChunks())
	for _, c := range chunks {
		assert.Same(t, session, c.Session)
		assert.Equal(t, "/videos/a.mp4", c.Path)
	}
	assert.Equal(t, []int64{0, 4, 8}, []int64{chunks[0].Start, chunks[1].Start, chunks[2].Start})
	assert.Equal(t, 3, chunks[2].PartNumber())
	assert.Equal(t, int64(2), chunks[2].Size())
}
