// Package mocks provides test doubles for submission sinks.
package mocks

import (
	"context"

	model "github.com/sells-group/pin-ingest/internal/model"
	submit "github.com/sells-group/pin-ingest/internal/submit"
	mock "github.com/stretchr/testify/mock"
)

// MockBulkCreator is a mock type for the BulkCreator interface.
type MockBulkCreator struct {
	mock.Mock
}

// BulkCreate provides a mock function with given fields: ctx, drafts
func (_m *MockBulkCreator) BulkCreate(ctx context.Context, drafts []model.PinDraft) (submit.BulkResult, error) {
	ret := _m.Called(ctx, drafts)

	if len(ret) == 0 {
		panic("no return value specified for BulkCreate")
	}

	var r0 submit.BulkResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []model.PinDraft) (submit.BulkResult, error)); ok {
		return rf(ctx, drafts)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []model.PinDraft) submit.BulkResult); ok {
		r0 = rf(ctx, drafts)
	} else {
		r0 = ret.Get(0).(submit.BulkResult)
	}

	if rf, ok := ret.Get(1).(func(context.Context, []model.PinDraft) error); ok {
		r1 = rf(ctx, drafts)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockBulkCreator creates a new instance of MockBulkCreator.
func NewMockBulkCreator(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockBulkCreator {
	mock := &MockBulkCreator{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
