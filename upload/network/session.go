package network

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retry"
	"github.com/upos-tools/go-uploader/v2/internal/wait"
	"github.com/upos-tools/go-uploader/v2/upload/network/chunkuploader"
)

// ErrSessionUnavailable is returned when no session could be opened within the configured attempts.
var ErrSessionUnavailable = errors.New("upload session unavailable")

// SessionConfig holds the retry policy of session negotiation.
type SessionConfig struct {
	// Attempts is the maximum number of negotiations.
	// Default: 5
	Attempts int

	// RetryDelay is the wait between two negotiations.
	// Default: 1 second
	RetryDelay time.Duration

	// PreDelay is the wait between receiving the auth token and using it,
	// the token is not valid server side before.
	// Default: 100 milliseconds
	PreDelay time.Duration
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Attempts:   5,
		RetryDelay: time.Second,
		PreDelay:   100 * time.Millisecond,
	}
}

// Negotiator makes a single attempt at opening an upload session.
type Negotiator interface {
	Negotiate(ctx context.Context, path string, size int64) (*chunkuploader.Session, error)
}

// NegotiatorFunc adapts a function to the Negotiator interface.
type NegotiatorFunc func(ctx context.Context, path string, size int64) (*chunkuploader.Session, error)

// Negotiate calls f.
func (f NegotiatorFunc) Negotiate(ctx context.Context, path string, size int64) (*chunkuploader.Session, error) {
	return f(ctx, path, size)
}

// SessionAcquirer retries a Negotiator until it returns a session.
type SessionAcquirer struct {
	negotiator Negotiator
	config     SessionConfig
	logger     log.Logger
}

// NewSessionAcquirer ...
func NewSessionAcquirer(negotiator Negotiator, config SessionConfig, logger log.Logger) SessionAcquirer {
	return SessionAcquirer{
		negotiator: negotiator,
		config:     config,
		logger:     logger,
	}
}

// AcquireSession negotiates a session for the file at path. Any failure of a negotiation is retried
// after RetryDelay, the wait ends early when ctx is done. The returned session is complete; a session is never published half negotiated.
func (a SessionAcquirer) AcquireSession(ctx context.Context, path string, size int64) (*chunkuploader.Session, error) {
	attempts := a.config.Attempts
	if attempts < 1 {
		attempts = 1
	}
	name := filepath.Base(path)

	var session *chunkuploader.Session
	err := retry.New(uint(attempts-1), a.config.RetryDelay, wait.NewSleeper(ctx)).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return err, true
		}

		a.logger.Debugf("Negotiating upload session for %s (attempt %d/%d)", name, attempt+1, attempts)
		s, err := a.negotiator.Negotiate(ctx, path, size)
		if err != nil {
			a.logger.Warnf("Session attempt %d/%d for %s failed: %s", attempt+1, attempts, name, err)
			return err, false
		}
		if s.ChunkSize <= 0 {
			return fmt.Errorf("invalid chunk size: %d", s.ChunkSize), false
		}

		session = s
		return nil, true
	})
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrSessionUnavailable, name, err)
	}

	a.logger.Debugf("Session %s for %s: %d chunks of %d bytes", session.UploadID, name, session.NumChunks(), session.ChunkSize)
	return session, nil
}
