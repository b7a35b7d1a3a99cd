package mocks

import (
	"context"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockGenerationRepository is a mock type for the GenerationRepository type
type MockGenerationRepository struct {
	mock.Mock
}

// CountByOwnerInPeriod provides a mock function with given fields: ctx, ownerID, from, to
func (_m *MockGenerationRepository) CountByOwnerInPeriod(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (int, error) {
	ret := _m.Called(ctx, ownerID, from, to)
	return ret.Int(0), ret.Error(1)
}

// FindActiveByOwner provides a mock function with given fields: ctx, ownerID
func (_m *MockGenerationRepository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.GenerationRequest, bool, error) {
	ret := _m.Called(ctx, ownerID)

	var r0 *domain.GenerationRequest
	if v := ret.Get(0); v != nil {
		r0 = v.(*domain.GenerationRequest)
	}
	return r0, ret.Bool(1), ret.Error(2)
}

// FindByID provides a mock function with given fields: ctx, id
func (_m *MockGenerationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, bool, error) {
	ret := _m.Called(ctx, id)

	var r0 *domain.GenerationRequest
	if v := ret.Get(0); v != nil {
		r0 = v.(*domain.GenerationRequest)
	}
	return r0, ret.Bool(1), ret.Error(2)
}

// Create provides a mock function with given fields: ctx, g
func (_m *MockGenerationRepository) Create(ctx context.Context, g *domain.GenerationRequest) error {
	ret := _m.Called(ctx, g)
	return ret.Error(0)
}

// Save provides a mock function with given fields: ctx, g
func (_m *MockGenerationRepository) Save(ctx context.Context, g *domain.GenerationRequest) error {
	ret := _m.Called(ctx, g)
	return ret.Error(0)
}

// NewMockGenerationRepository creates a new instance of MockGenerationRepository. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockGenerationRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGenerationRepository {
	m := &MockGenerationRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ service.GenerationRepository = (*MockGenerationRepository)(nil)
