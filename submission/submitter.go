package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retry"
	"github.com/upos-tools/go-uploader/v2/internal/wait"
)

// Config holds the retry policy of per-part submissions.
type Config struct {
	// MaxAttempts bounds the submissions of one part. Non-positive values mean a single attempt.
	// Default: 5
	MaxAttempts int

	// RateLimitDelay is the wait before retrying a rate-limited part.
	// Default: 30 seconds
	RateLimitDelay time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		RateLimitDelay: 30 * time.Second,
	}
}

// Result is the response to one submission request.
type Result struct {
	Code    int
	Message string
	Raw     json.RawMessage
}

// Outcome aggregates the final results of a Submit call.
type Outcome struct {
	// Code is the sum of the final codes, so it is 0 only if every item succeeded.
	Code    int
	Results []Result
}

// Endpoint sends one submission request.
type Endpoint interface {
	Submit(ctx context.Context, payload map[string]any) (Result, error)
}

var (
	errRateLimited = errors.New("rate limited")
	errRejected    = errors.New("rejected")
)

// Submitter publishes works through an Endpoint.
type Submitter struct {
	endpoint Endpoint
	config   Config
	logger   log.Logger
}

// NewSubmitter ...
func NewSubmitter(endpoint Endpoint, config Config, logger log.Logger) *Submitter {
	return &Submitter{
		endpoint: endpoint,
		config:   config,
		logger:   logger,
	}
}

// Submit publishes work. With perPart unset the whole work is sent once without retries.
// Otherwise every part is submitted as its own single-part work, rate-limited parts are retried
// after RateLimitDelay (cut short when ctx is done), and a hard failure only ends the part it happened to.
// Transport errors abort the call and the results collected so far are returned with the error.
func (s *Submitter) Submit(ctx context.Context, work Work, perPart bool) (Outcome, error) {
	if !perPart {
		s.logger.Debugf("Submitting %d-part work: %s", len(work.Parts), work.Title)
		result, err := s.endpoint.Submit(ctx, work.Payload())
		if err != nil {
			return Outcome{}, fmt.Errorf("submit %s: %w", work.Title, err)
		}
		s.logResult(work.Title, result)
		return Outcome{Code: result.Code, Results: []Result{result}}, nil
	}

	var outcome Outcome
	for _, part := range work.Split() {
		result, err := s.submitPart(ctx, part)
		if err != nil {
			return outcome, err
		}
		outcome.Code += result.Code
		outcome.Results = append(outcome.Results, result)
	}
	return outcome, nil
}

func (s *Submitter) submitPart(ctx context.Context, work Work) (Result, error) {
	attempts := s.config.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	payload := work.Payload()

	s.logger.Debugf("Submitting single-part work: %s", work.Title)

	var result Result
	var sendErr error
	err := retry.New(uint(attempts-1), s.config.RateLimitDelay, wait.NewSleeper(ctx)).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			sendErr = err
			return err, true
		}

		r, err := s.endpoint.Submit(ctx, payload)
		if err != nil {
			sendErr = err
			return err, true
		}
		result = r

		switch Classify(r.Code) {
		case Success:
			return nil, true
		case RateLimited:
			s.logger.Warnf("Submission of %s rate limited (attempt %d/%d, code %d), retrying in %s",
				work.Title, attempt+1, attempts, r.Code, s.config.RateLimitDelay)
			return errRateLimited, false
		default:
			s.logger.Errorf("Submission of %s failed (code %d): %s, skipping", work.Title, r.Code, r.Message)
			return errRejected, true
		}
	})
	if sendErr != nil {
		return Result{}, fmt.Errorf("submit %s: %w", work.Title, sendErr)
	}
	if errors.Is(err, errRateLimited) {
		s.logger.Errorf("Submission of %s still rate limited after %d attempts", work.Title, attempts)
	}
	if err == nil {
		s.logResult(work.Title, result)
	}
	return result, nil
}

func (s *Submitter) logResult(title string, result Result) {
	if result.Code == 0 {
		s.logger.Donef("Submitted %s", title)
		return
	}
	s.logger.Errorf("Submission of %s returned code %d: %s", title, result.Code, result.Message)
}
