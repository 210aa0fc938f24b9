package mocks

import "github.com/stretchr/testify/mock"

type Repository struct {
	mock.Mock
}

func (_m *Repository) Get(key string) string {
	ret := _m.Called(key)

	var r0 string
	if rf, ok := ret.Get(0).(func(string) string); ok {
		r0 = rf(key)
	} else {
		r0, _ = ret.Get(0).(string)
	}

	return r0
}

func (_m *Repository) Set(key string, value string) error {
	ret := _m.Called(key, value)
	return ret.Error(0)
}

func (_m *Repository) Unset(key string) error {
	ret := _m.Called(key)
	return ret.Error(0)
}

func (_m *Repository) List() []string {
	ret := _m.Called()

	var r0 []string
	if rf, ok := ret.Get(0).(func() []string); ok {
		r0 = rf()
	} else {
		r0, _ = ret.Get(0).([]string)
	}

	return r0
}
