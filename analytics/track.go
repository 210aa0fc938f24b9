package analytics

import (
	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
)

type TrackerFactory func(...analytics.Properties) analytics.Tracker

const (
	EnabledEnvKey = "UPLOAD_ANALYTICS"
	RunIDEnvKey   = "UPLOAD_RUN_ID"
	RunID         = "run_id"
)

// NewUploadTracker creates a tracker that tags every event with the run ID.
// The run ID comes from RunIDEnvKey, a random one is generated if it is not set.
func NewUploadTracker(repository env.Repository, trackerFactory TrackerFactory) analytics.Tracker {
	runID := repository.Get(RunIDEnvKey)
	if runID == "" {
		runID = uuid.NewString()
	}
	return trackerFactory(analytics.Properties{RunID: runID})
}

// NewDefaultUploadTracker returns a tracker sending events to the default analytics endpoint.
// Events are dropped unless EnabledEnvKey is "true".
func NewDefaultUploadTracker(repository env.Repository, logger log.Logger) analytics.Tracker {
	if repository.Get(EnabledEnvKey) != "true" {
		repository = disabledRepository{Repository: repository}
	}
	return NewUploadTracker(repository, func(properties ...analytics.Properties) analytics.Tracker {
		return analytics.NewDefaultTracker(logger, repository, properties...)
	})
}

// analyticsDisabledEnvKey turns analytics.NewDefaultTracker into a no-op tracker.
const analyticsDisabledEnvKey = "ANALYTICS_DISABLED"

type disabledRepository struct {
	env.Repository
}

func (r disabledRepository) Get(key string) string {
	if key == analyticsDisabledEnvKey {
		return "true"
	}
	return r.Repository.Get(key)
}
