package chunkuploader

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// ProgressSink receives aggregate progress samples.
type ProgressSink interface {
	ReportProgress(read, total int64)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(read, total int64)

// ReportProgress calls f.
func (f ProgressFunc) ReportProgress(read, total int64) {
	f(read, total)
}

// FileProgress counts the bytes of one file that were streamed to the remote end.
// Length never changes after creation, so a single atomic load of the read counter
// yields a consistent (read, length) pair.
type FileProgress struct {
	Path   string
	Length int64
	read   atomic.Int64
}

// Read returns the number of bytes streamed so far.
func (p *FileProgress) Read() int64 {
	return p.read.Load()
}

func (p *FileProgress) add(n int64) {
	if p != nil {
		p.read.Add(n)
	}
}

// Progress is the set of files tracked by one upload operation.
type Progress struct {
	mu    sync.RWMutex
	files map[string]*FileProgress
}

// NewProgress creates an empty registry.
func NewProgress() *Progress {
	return &Progress{files: map[string]*FileProgress{}}
}

// Track registers the file at path. Tracking an already registered path returns the existing entry.
func (p *Progress) Track(path string, length int64) *FileProgress {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fp, ok := p.files[path]; ok {
		return fp
	}
	fp := &FileProgress{Path: path, Length: length}
	p.files[path] = fp
	return fp
}

// File returns the entry of path or nil if it is not tracked.
func (p *Progress) File(path string) *FileProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.files[path]
}

// Sample sums the counters of every tracked file.
func (p *Progress) Sample() (read, size int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, fp := range p.files {
		read += fp.Read()
		size += fp.Length
	}
	return read, size
}

// progressReader adds the bytes read from the wrapped section to a FileProgress as they are consumed.
type progressReader struct {
	reader   io.ReadSeeker
	len      int64
	pos      int64
	progress *FileProgress
}

func newProgressReader(reader io.ReadSeeker, size int64, progress *FileProgress) *progressReader {
	return &progressReader{
		reader:   reader,
		len:      size,
		progress: progress,
	}
}

// Read implements io.Reader.
func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)

	if n > 0 {
		pr.pos += int64(n)
		pr.progress.add(int64(n))
	}

	return
}

// Seek implements io.Seeker. Rewinding takes the rewound bytes off the counter.
func (pr *progressReader) Seek(offset int64, whence int) (int64, error) {
	n, err := pr.reader.Seek(offset, whence)

	if err == nil {
		pr.progress.add(n - pr.pos)
		pr.pos = n
	}

	return n, err
}

// Len implements retryablehttp.LenReader.
func (pr *progressReader) Len() int {
	return int(pr.len)
}

// rollback removes the bytes of a failed attempt from the counter.
func (pr *progressReader) rollback() {
	pr.progress.add(-pr.pos)
	pr.pos = 0
}

// monitor samples progress every interval until done is closed, then emits one last sample.
func monitor(progress *Progress, sink ProgressSink, interval time.Duration, done <-chan struct{}) {
	if sink == nil {
		<-done
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sink.ReportProgress(progress.Sample())
	for {
		select {
		case <-done:
			sink.ReportProgress(progress.Sample())
			return
		case <-ticker.C:
			sink.ReportProgress(progress.Sample())
		}
	}
}

// NewLogProgressSink returns a sink that prints human readable samples.
func NewLogProgressSink(logger log.Logger) ProgressSink {
	return ProgressFunc(func(read, total int64) {
		percent := 0.0
		if total > 0 {
			percent = float64(read) / float64(total) * 100
		}
		logger.Printf("Uploaded %s of %s (%.1f%%)",
			units.HumanSizeWithPrecision(float64(read), 3),
			units.HumanSizeWithPrecision(float64(total), 3),
			percent)
	})
}
