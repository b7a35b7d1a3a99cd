package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound = errors.New("resource not found")

	// Admission & Submission Errors
	ErrQuotaExceeded          = errors.New("monthly generation quota exceeded")
	ErrConfigurationNotFound  = errors.New("story configuration option not found")
	ErrActiveGenerationExists = errors.New("owner already has an active generation")
	ErrDispatchFailed         = errors.New("generation job dispatch failed")

	// State machine
	ErrInvalidTransition = errors.New("invalid generation state transition")

	// Billing reconciliation
	ErrReconciliationFailed = errors.New("billing event reconciliation failed")
	ErrInvalidBillingEvent  = errors.New("invalid billing event")
)

// QuotaExceededError is returned by admission control when the owner has used up
// the generations allowed for the current period.
type QuotaExceededError struct {
	Count   int
	Limit   int
	ResetAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %d of %d used, resets at %s",
		ErrQuotaExceeded, e.Count, e.Limit, e.ResetAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ConfigurationNotFoundError names the option that could not be resolved.
type ConfigurationNotFoundError struct {
	Kind OptionKind
	ID   string
}

func (e *ConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %q", ErrConfigurationNotFound, e.Kind, e.ID)
}

func (e *ConfigurationNotFoundError) Unwrap() error { return ErrConfigurationNotFound }

// DispatchFailedError keeps the id of the aggregate left in the failed state so
// operators can find it. Cause may be nil when the runner returned an empty job id.
type DispatchFailedError struct {
	GenerationID uuid.UUID
	Cause        error
}

func (e *DispatchFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s for generation %s: %v", ErrDispatchFailed, e.GenerationID, e.Cause)
	}
	return fmt.Sprintf("%s for generation %s", ErrDispatchFailed, e.GenerationID)
}

func (e *DispatchFailedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrDispatchFailed, e.Cause}
	}
	return []error{ErrDispatchFailed}
}

// InvalidTransitionError names the rejected action and the state it was attempted from.
type InvalidTransitionError struct {
	From   GenerationStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s", ErrInvalidTransition, e.Action, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
