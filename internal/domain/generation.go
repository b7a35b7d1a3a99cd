package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus is the persisted name of a lifecycle state.
type GenerationStatus string

const (
	StatusPending    GenerationStatus = "pending"
	StatusGenerating GenerationStatus = "generating"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// IsActive reports whether a request in this status blocks a new submission by its owner.
func (s GenerationStatus) IsActive() bool {
	return s == StatusPending || s == StatusGenerating
}

// IsTerminal reports whether no further transition is possible.
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DispatchFailureReason is recorded when the job runner did not hand back a job id.
const DispatchFailureReason = "dispatch failed"

// RecordFailureReason is recorded when the job was dispatched but its id could
// not be saved.
const RecordFailureReason = "dispatched job could not be recorded"

// GenerationState is one of Pending, Generating, Completed or Failed. Each variant
// carries exactly the fields that exist in that state.
type GenerationState interface {
	Status() GenerationStatus
	isGenerationState()
}

// Pending: persisted, not yet handed to the job runner.
type Pending struct{}

// Generating: the job runner accepted the job.
type Generating struct {
	JobID     string
	StartedAt time.Time
}

// Completed: the job produced an artifact.
type Completed struct {
	JobID       string
	StartedAt   time.Time
	CompletedAt time.Time
	ArtifactRef string
}

// Failed: the request ended without an artifact. JobID and StartedAt are empty
// when the failure happened before dispatch succeeded.
type Failed struct {
	JobID       string
	StartedAt   *time.Time
	CompletedAt time.Time
	Reason      string
}

func (Pending) Status() GenerationStatus    { return StatusPending }
func (Generating) Status() GenerationStatus { return StatusGenerating }
func (Completed) Status() GenerationStatus  { return StatusCompleted }
func (Failed) Status() GenerationStatus     { return StatusFailed }

func (Pending) isGenerationState()    {}
func (Generating) isGenerationState() {}
func (Completed) isGenerationState()  {}
func (Failed) isGenerationState()     {}

// GenerationConfig is the configuration snapshot taken at submission. Every field
// is an opaque reference resolved by the story-option lookup.
type GenerationConfig struct {
	ThemeID      string `json:"theme_id"`
	ToneID       string `json:"tone_id"`
	LanguageID   string `json:"language_id"`
	AgeGroupID   string `json:"age_group_id,omitempty"`
	ChapterCount int    `json:"chapter_count,omitempty"`
}

// GenerationRequest is the aggregate root for one story generation.
// State is only changed through StartGeneration, CompleteGeneration and FailGeneration.
type GenerationRequest struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Config    GenerationConfig
	CreatedAt time.Time
	UpdatedAt time.Time

	state GenerationState
}

// NewGenerationRequest creates an aggregate in the pending state.
func NewGenerationRequest(id, ownerID uuid.UUID, cfg GenerationConfig, now time.Time) *GenerationRequest {
	return &GenerationRequest{
		ID:        id,
		OwnerID:   ownerID,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
		state:     Pending{},
	}
}

// RestoreGenerationRequest rebuilds an aggregate from storage.
func RestoreGenerationRequest(id, ownerID uuid.UUID, cfg GenerationConfig, state GenerationState, createdAt, updatedAt time.Time) (*GenerationRequest, error) {
	if state == nil {
		return nil, fmt.Errorf("generation %s: missing state", id)
	}
	return &GenerationRequest{
		ID:        id,
		OwnerID:   ownerID,
		Config:    cfg,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		state:     state,
	}, nil
}

func (g *GenerationRequest) State() GenerationState   { return g.state }
func (g *GenerationRequest) Status() GenerationStatus { return g.state.Status() }

// ExternalJobID returns the job id assigned by the runner, if any.
func (g *GenerationRequest) ExternalJobID() (string, bool) {
	switch s := g.state.(type) {
	case Generating:
		return s.JobID, true
	case Completed:
		return s.JobID, true
	case Failed:
		return s.JobID, s.JobID != ""
	}
	return "", false
}

func (g *GenerationRequest) StartedAt() (time.Time, bool) {
	switch s := g.state.(type) {
	case Generating:
		return s.StartedAt, true
	case Completed:
		return s.StartedAt, true
	case Failed:
		if s.StartedAt != nil {
			return *s.StartedAt, true
		}
	}
	return time.Time{}, false
}

func (g *GenerationRequest) CompletedAt() (time.Time, bool) {
	switch s := g.state.(type) {
	case Completed:
		return s.CompletedAt, true
	case Failed:
		return s.CompletedAt, true
	}
	return time.Time{}, false
}

func (g *GenerationRequest) LastError() (string, bool) {
	if s, ok := g.state.(Failed); ok {
		return s.Reason, true
	}
	return "", false
}

func (g *GenerationRequest) ArtifactRef() (string, bool) {
	if s, ok := g.state.(Completed); ok {
		return s.ArtifactRef, true
	}
	return "", false
}

// StartGeneration records the job id returned by the runner. Legal only from pending.
func (g *GenerationRequest) StartGeneration(jobID string, now time.Time) error {
	if _, ok := g.state.(Pending); !ok {
		return &InvalidTransitionError{From: g.Status(), Action: "start generation"}
	}
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", ErrInvalidTransition)
	}
	g.state = Generating{JobID: jobID, StartedAt: now}
	g.UpdatedAt = now
	return nil
}

// CompleteGeneration attaches the produced artifact. Legal only from generating.
func (g *GenerationRequest) CompleteGeneration(artifactRef string, now time.Time) error {
	s, ok := g.state.(Generating)
	if !ok {
		return &InvalidTransitionError{From: g.Status(), Action: "complete generation"}
	}
	g.state = Completed{JobID: s.JobID, StartedAt: s.StartedAt, CompletedAt: now, ArtifactRef: artifactRef}
	g.UpdatedAt = now
	return nil
}

// FailGeneration is legal from pending or generating. Failing an already failed
// request is a no-op and keeps the first reason.
func (g *GenerationRequest) FailGeneration(reason string, now time.Time) error {
	switch s := g.state.(type) {
	case Pending:
		g.state = Failed{CompletedAt: now, Reason: reason}
	case Generating:
		startedAt := s.StartedAt
		g.state = Failed{JobID: s.JobID, StartedAt: &startedAt, CompletedAt: now, Reason: reason}
	case Failed:
		return nil
	default:
		return &InvalidTransitionError{From: g.Status(), Action: "fail generation"}
	}
	g.UpdatedAt = now
	return nil
}
