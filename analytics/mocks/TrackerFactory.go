package mocks

import (
	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/stretchr/testify/mock"
)

type TrackerFactory struct {
	mock.Mock
}

func (_m *TrackerFactory) Execute(properties ...analytics.Properties) analytics.Tracker {
	_ca := make([]interface{}, 0, len(properties))
	for _, p := range properties {
		_ca = append(_ca, p)
	}
	ret := _m.Called(_ca...)

	var r0 analytics.Tracker
	if rf, ok := ret.Get(0).(func(...analytics.Properties) analytics.Tracker); ok {
		r0 = rf(properties...)
	} else {
		r0, _ = ret.Get(0).(analytics.Tracker)
	}

	return r0
}

type Tracker struct {
	mock.Mock
}

func (_m *Tracker) Enqueue(eventName string, properties ...analytics.Properties) {
	_ca := []interface{}{eventName}
	for _, p := range properties {
		_ca = append(_ca, p)
	}
	_m.Called(_ca...)
}

func (_m *Tracker) Wait() {
	_m.Called()
}

func (_m *Tracker) IsTracking() bool {
	ret := _m.Called()

	var r0 bool
	if rf, ok := ret.Get(0).(func() bool); ok {
		r0 = rf()
	} else {
		r0, _ = ret.Get(0).(bool)
	}

	return r0
}
