package chunkuploader

import (
	"net/http"
	"time"
)

// Config holds configuration for the chunk uploader.
type Config struct {
	// Concurrency is the maximum number of chunks in flight.
	// Default: 3
	Concurrency int

	// MaxRetryPerChunk is the maximum number of attempts per chunk.
	// Default: 5
	MaxRetryPerChunk int

	// ProgressInterval is the time between two aggregate progress samples.
	// Default: 1 second
	ProgressInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:      3,
		MaxRetryPerChunk: 5,
		ProgressInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency < 1 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxRetryPerChunk < 1 {
		c.MaxRetryPerChunk = d.MaxRetryPerChunk
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	return c
}

// DefaultHTTPClient creates an HTTP client optimized for chunk uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - individual chunk timeouts are handled via context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// OptimalChunkSizeBytes calculates optimal chunk size based on total size and concurrency.
// Used by backends that pick their own chunk size.
func OptimalChunkSizeBytes(totalSize int64, concurrency int) int64 {
	if concurrency < 1 {
		concurrency = 1
	}
	return int64(optimalChunkSizeBytes(uint64(totalSize), 8*1024*1024, 100*1024*1024, uint64(concurrency)))
}

func optimalChunkSizeBytes(totalSize, min, max, concurrency uint64) uint64 {
	cs := totalSize / concurrency

	// Reduce chunk size for very large chunks to improve parallelism
	if cs >= 100*1024*1024 {
		cs = cs / 2
	}

	if cs < min {
		cs = min
	}

	if max > 0 && cs > max {
		cs = max
	}

	return cs
}
