package chunkuploader

import "iter"

// ChunkCount returns ceil(size / chunkSize).
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// Segment returns the chunks covering [0, size) of the file at path.
// The sequence is computed from the arguments only, so it can be ranged over any number of times.
// No I/O is performed.
func Segment(path string, size, chunkSize int64) iter.Seq[Chunk] {
	count := ChunkCount(size, chunkSize)

	return func(yield func(Chunk) bool) {
		for i := 0; i < count; i++ {
			start := int64(i) * chunkSize
			end := start + chunkSize
			if end > size {
				end = size
			}

			c := Chunk{
				Path:  path,
				Start: start,
				End:   end,
				Index: i,
				Count: count,
				Total: size,
			}
			if !yield(c) {
				return
			}
		}
	}
}
