package domain

import (
	"time"

	"github.com/google/uuid"
)

// Domain event names.
const (
	EventGenerationSubmitted = "generation.submitted"
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
	EventEntitlementChanged  = "entitlement.changed"
)

// Event is anything published through the notifier.
type Event interface {
	EventName() string
}

type GenerationSubmitted struct {
	GenerationID uuid.UUID
	OwnerID      uuid.UUID
	JobID        string
	OccurredAt   time.Time
}

type GenerationCompleted struct {
	GenerationID uuid.UUID
	OwnerID      uuid.UUID
	ArtifactRef  string
	OccurredAt   time.Time
}

type GenerationFailed struct {
	GenerationID uuid.UUID
	OwnerID      uuid.UUID
	Reason       string
	OccurredAt   time.Time
}

type EntitlementChanged struct {
	EventID    string
	SubjectID  string
	Status     EntitlementStatus
	OccurredAt time.Time
}

func (GenerationSubmitted) EventName() string { return EventGenerationSubmitted }
func (GenerationCompleted) EventName() string { return EventGenerationCompleted }
func (GenerationFailed) EventName() string    { return EventGenerationFailed }
func (EntitlementChanged) EventName() string  { return EventEntitlementChanged }
