package service

import (
	"context"
	"time"

	"storybook-server/internal/domain"

	"github.com/google/uuid"
)

// GenerationRepository persists GenerationRequest aggregates.
type GenerationRepository interface {
	// CountByOwnerInPeriod counts requests created in [from, to).
	CountByOwnerInPeriod(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (int, error)
	// FindActiveByOwner returns the owner's pending or generating request, if any.
	FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.GenerationRequest, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, bool, error)
	// Create returns domain.ErrActiveGenerationExists when the owner already has an
	// active request. The storage constraint behind this is the source of truth.
	Create(ctx context.Context, g *domain.GenerationRequest) error
	Save(ctx context.Context, g *domain.GenerationRequest) error
}

// StoryOptionLookup resolves opaque option ids. A missing option is reported as
// found == false, never as an error.
type StoryOptionLookup interface {
	FindOption(ctx context.Context, kind domain.OptionKind, id string) (domain.StoryOption, bool, error)
}

// JobDispatcher hands a job to the external runner.
type JobDispatcher interface {
	Dispatch(ctx context.Context, jobType string, payload any) (domain.DispatchResult, error)
}

// EventPublisher publishes domain events; *notifier.Registry implements it.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// SubmissionLocker serializes the dedup-check/insert window per owner.
type SubmissionLocker interface {
	Acquire(ctx context.Context, ownerID uuid.UUID) (release func(), err error)
}

// WebhookEventLedger records provider event ids and their outcome.
type WebhookEventLedger interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// Claim inserts the record if absent, or re-claims an unprocessed record whose
	// claim expired. It is atomic at the storage layer.
	Claim(ctx context.Context, record domain.WebhookEventRecord, claimUntil time.Time) (domain.ClaimOutcome, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID, message string, at time.Time) error
}

// EntitlementWriter updates the account entitlement.
type EntitlementWriter interface {
	SetEntitlement(ctx context.Context, subjectID string, status domain.EntitlementStatus) error
}

// EntitlementReader reads the account entitlement.
type EntitlementReader interface {
	GetEntitlement(ctx context.Context, subjectID string) (domain.EntitlementStatus, bool, error)
}

// Clock is injected so time-dependent behaviour is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator is injected so aggregate ids are deterministic in tests.
type IDGenerator interface {
	NewID() uuid.UUID
}

// SystemClock returns the current UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// UUIDGenerator returns random v4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, uuid.UUID) (func(), error) { return func() {}, nil }

// NoopLocker relies on the storage constraint alone.
var NoopLocker SubmissionLocker = noopLocker{}
