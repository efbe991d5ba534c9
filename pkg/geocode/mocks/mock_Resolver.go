// Package mocks provides test doubles for the geocode resolver.
package mocks

import (
	"context"

	model "github.com/sells-group/pin-ingest/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockResolver is a mock type for the Resolver interface.
type MockResolver struct {
	mock.Mock
}

// Resolve provides a mock function with given fields: ctx, address
func (_m *MockResolver) Resolve(ctx context.Context, address string) model.Coordinate {
	ret := _m.Called(ctx, address)

	if len(ret) == 0 {
		panic("no return value specified for Resolve")
	}

	var r0 model.Coordinate
	if rf, ok := ret.Get(0).(func(context.Context, string) model.Coordinate); ok {
		r0 = rf(ctx, address)
	} else {
		r0 = ret.Get(0).(model.Coordinate)
	}

	return r0
}

// ResolveMany provides a mock function with given fields: ctx, addresses, limit
func (_m *MockResolver) ResolveMany(ctx context.Context, addresses []string, limit int) []model.Coordinate {
	ret := _m.Called(ctx, addresses, limit)

	if len(ret) == 0 {
		panic("no return value specified for ResolveMany")
	}

	var r0 []model.Coordinate
	if rf, ok := ret.Get(0).(func(context.Context, []string, int) []model.Coordinate); ok {
		r0 = rf(ctx, addresses, limit)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.Coordinate)
		}
	}

	return r0
}

// NewMockResolver creates a new instance of MockResolver.
func NewMockResolver(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockResolver {
	mock := &MockResolver{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
