package mocks

import (
	"context"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockStoryOptionLookup is a mock type for the StoryOptionLookup type
type MockStoryOptionLookup struct {
	mock.Mock
}

// FindOption provides a mock function with given fields: ctx, kind, id
func (_m *MockStoryOptionLookup) FindOption(ctx context.Context, kind domain.OptionKind, id string) (domain.StoryOption, bool, error) {
	ret := _m.Called(ctx, kind, id)
	return ret.Get(0).(domain.StoryOption), ret.Bool(1), ret.Error(2)
}

// NewMockStoryOptionLookup creates a new instance of MockStoryOptionLookup.
func NewMockStoryOptionLookup(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStoryOptionLookup {
	m := &MockStoryOptionLookup{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockJobDispatcher is a mock type for the JobDispatcher type
type MockJobDispatcher struct {
	mock.Mock
}

// Dispatch provides a mock function with given fields: ctx, jobType, payload
func (_m *MockJobDispatcher) Dispatch(ctx context.Context, jobType string, payload any) (domain.DispatchResult, error) {
	ret := _m.Called(ctx, jobType, payload)
	return ret.Get(0).(domain.DispatchResult), ret.Error(1)
}

// NewMockJobDispatcher creates a new instance of MockJobDispatcher.
func NewMockJobDispatcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockJobDispatcher {
	m := &MockJobDispatcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockEventPublisher is a mock type for the EventPublisher type
type MockEventPublisher struct {
	mock.Mock
}

// Publish provides a mock function with given fields: ctx, event
func (_m *MockEventPublisher) Publish(ctx context.Context, event domain.Event) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

// NewMockEventPublisher creates a new instance of MockEventPublisher.
func NewMockEventPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEventPublisher {
	m := &MockEventPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockWebhookEventLedger is a mock type for the WebhookEventLedger type
type MockWebhookEventLedger struct {
	mock.Mock
}

// IsProcessed provides a mock function with given fields: ctx, eventID
func (_m *MockWebhookEventLedger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	ret := _m.Called(ctx, eventID)
	return ret.Bool(0), ret.Error(1)
}

// Claim provides a mock function with given fields: ctx, record, claimUntil
func (_m *MockWebhookEventLedger) Claim(ctx context.Context, record domain.WebhookEventRecord, claimUntil time.Time) (domain.ClaimOutcome, error) {
	ret := _m.Called(ctx, record, claimUntil)
	return ret.Get(0).(domain.ClaimOutcome), ret.Error(1)
}

// MarkProcessed provides a mock function with given fields: ctx, eventID, at
func (_m *MockWebhookEventLedger) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	ret := _m.Called(ctx, eventID, at)
	return ret.Error(0)
}

// MarkFailed provides a mock function with given fields: ctx, eventID, message, at
func (_m *MockWebhookEventLedger) MarkFailed(ctx context.Context, eventID, message string, at time.Time) error {
	ret := _m.Called(ctx, eventID, message, at)
	return ret.Error(0)
}

// NewMockWebhookEventLedger creates a new instance of MockWebhookEventLedger.
func NewMockWebhookEventLedger(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockWebhookEventLedger {
	m := &MockWebhookEventLedger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// MockEntitlementWriter is a mock type for the EntitlementWriter type
type MockEntitlementWriter struct {
	mock.Mock
}

// SetEntitlement provides a mock function with given fields: ctx, subjectID, status
func (_m *MockEntitlementWriter) SetEntitlement(ctx context.Context, subjectID string, status domain.EntitlementStatus) error {
	ret := _m.Called(ctx, subjectID, status)
	return ret.Error(0)
}

// NewMockEntitlementWriter creates a new instance of MockEntitlementWriter.
func NewMockEntitlementWriter(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockEntitlementWriter {
	m := &MockEntitlementWriter{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var (
	_ service.StoryOptionLookup  = (*MockStoryOptionLookup)(nil)
	_ service.JobDispatcher      = (*MockJobDispatcher)(nil)
	_ service.EventPublisher     = (*MockEventPublisher)(nil)
	_ service.WebhookEventLedger = (*MockWebhookEventLedger)(nil)
	_ service.EntitlementWriter  = (*MockEntitlementWriter)(nil)
)
