package analytics

import (
	"testing"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/upos-tools/go-uploader/v2/analytics/mocks"
)

func TestNewUploadTrackerAddsRunIDToNewTracker(t *testing.T) {
	repository := new(mocks.Repository)
	repository.On("Get", "UPLOAD_RUN_ID").Return("123")
	factory := new(mocks.TrackerFactory)
	factory.On("Execute", analytics.Properties{"run_id": "123"}).Return(nil)

	NewUploadTracker(repository, factory.Execute)

	factory.AssertExpectations(t)
}

func TestNewUploadTrackerGeneratesRunID(t *testing.T) {
	repository := new(mocks.Repository)
	repository.On("Get", "UPLOAD_RUN_ID").Return("")
	factory := new(mocks.TrackerFactory)
	factory.On("Execute", mock.MatchedBy(func(p analytics.Properties) bool {
		runID, ok := p[RunID].(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(runID)
		return err == nil
	})).Return(nil)

	NewUploadTracker(repository, factory.Execute)

	factory.AssertExpectations(t)
}

func TestNewDefaultUploadTrackerIsDisabledByDefault(t *testing.T) {
	repository := new(mocks.Repository)
	repository.On("Get", "UPLOAD_ANALYTICS").Return("")
	repository.On("Get", "UPLOAD_RUN_ID").Return("123")

	tracker := NewDefaultUploadTracker(repository, log.NewLogger())

	assert.False(t, tracker.IsTracking())
	tracker.Enqueue("event")
	tracker.Wait()
	repository.AssertExpectations(t)
}

func TestNewDefaultUploadTrackerIsEnabledByEnv(t *testing.T) {
	repository := new(mocks.Repository)
	repository.On("Get", "UPLOAD_ANALYTICS").Return("true")
	repository.On("Get", "UPLOAD_RUN_ID").Return("123")
	repository.On("Get", "ANALYTICS_DISABLED").Return("")

	tracker := NewDefaultUploadTracker(repository, log.NewLogger())

	assert.True(t, tracker.IsTracking())
	tracker.Wait()
	repository.AssertExpectations(t)
}

func Test_disabledRepository(t *testing.T) {
	repository := new(mocks.Repository)
	repository.On("Get", "UPLOAD_RUN_ID").Return("123")

	disabled := disabledRepository{Repository: repository}

	assert.Equal(t, "true", disabled.Get("ANALYTICS_DISABLED"))
	assert.Equal(t, "123", disabled.Get("UPLOAD_RUN_ID"))
	repository.AssertExpectations(t)
}
