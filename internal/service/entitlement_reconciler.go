package service

import (
	"context"
	"fmt"
	"time"

	"storybook-server/internal/domain"

	"go.uber.org/zap"
)

// ReconcileOutcome classifies a reconciliation for transport and metrics.
type ReconcileOutcome string

const (
	OutcomeApplied          ReconcileOutcome = "applied"
	OutcomeAlreadyProcessed ReconcileOutcome = "already_processed"
	OutcomeIgnored          ReconcileOutcome = "ignored"
	OutcomeInFlight         ReconcileOutcome = "in_flight"
	OutcomeFailed           ReconcileOutcome = "failed"
)

// Messages returned in ReconcileResult.
const (
	MessageApplied          = "entitlement updated"
	MessageAlreadyProcessed = "already processed"
	MessageIgnored          = "event type ignored"
	MessageInFlight         = "processing in progress"
)

// ReconcileResult reports what happened to one delivery of a billing event.
// Err is set, wrapping domain.ErrReconciliationFailed, when Outcome is failed.
type ReconcileResult struct {
	Accepted bool
	Applied  bool
	Message  string
	Outcome  ReconcileOutcome
	Err      error
}

// EntitlementReconciler applies billing events to account entitlements at most
// once per event id.
type EntitlementReconciler struct {
	ledger   WebhookEventLedger
	writer   EntitlementWriter
	events   EventPublisher
	clock    Clock
	claimTTL time.Duration
	logger   *zap.Logger
}

// NewEntitlementReconciler creates a reconciler. claimTTL bounds how long one
// delivery may hold an event before a redelivery may take over.
func NewEntitlementReconciler(
	ledger WebhookEventLedger,
	writer EntitlementWriter,
	events EventPublisher,
	clock Clock,
	claimTTL time.Duration,
	logger *zap.Logger,
) *EntitlementReconciler {
	return &EntitlementReconciler{
		ledger:   ledger,
		writer:   writer,
		events:   events,
		clock:    clock,
		claimTTL: claimTTL,
		logger:   logger.Named("EntitlementReconciler"),
	}
}

// Reconcile processes one delivery. A failed entitlement write is recorded in the
// ledger and reported in the result, not as an error; the returned error is
// reserved for ledger failures where nothing could be recorded reliably.
func (r *EntitlementReconciler) Reconcile(ctx context.Context, event domain.BillingEvent) (ReconcileResult, error) {
	if event.ID == "" || event.SubjectID == "" {
		return ReconcileResult{}, fmt.Errorf("%w: event id and subject id are required", domain.ErrInvalidBillingEvent)
	}
	log := r.logger.With(
		zap.String("eventID", event.ID),
		zap.String("eventType", string(event.Type)),
		zap.String("subjectID", event.SubjectID),
	)

	processed, err := r.ledger.IsProcessed(ctx, event.ID)
	if err != nil {
		log.Error("Error checking event ledger", zap.Error(err))
		return ReconcileResult{}, fmt.Errorf("error checking event ledger: %w", err)
	}
	if processed {
		log.Info("Billing event already processed")
		return alreadyProcessed(), nil
	}

	now := r.clock.Now()
	outcome, err := r.ledger.Claim(ctx, domain.WebhookEventRecord{
		EventID:   event.ID,
		EventType: string(event.Type),
		SubjectID: event.SubjectID,
		Payload:   event.Payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, now.Add(r.claimTTL))
	if err != nil {
		log.Error("Error recording event in ledger", zap.Error(err))
		return ReconcileResult{}, fmt.Errorf("error recording event %s: %w", event.ID, err)
	}
	switch outcome {
	case domain.ClaimAlreadyProcessed:
		log.Info("Billing event processed by a concurrent delivery")
		return alreadyProcessed(), nil
	case domain.ClaimInFlight:
		log.Warn("Billing event is being processed by another delivery")
		return ReconcileResult{Message: MessageInFlight, Outcome: OutcomeInFlight}, nil
	}

	status, changed := domain.DeriveEntitlement(event.Type, event.EntitlementIDs)
	if !changed {
		if err := r.ledger.MarkProcessed(ctx, event.ID, r.clock.Now()); err != nil {
			log.Error("Error marking ignored event processed", zap.Error(err))
			return ReconcileResult{}, fmt.Errorf("error marking event %s processed: %w", event.ID, err)
		}
		log.Info("Billing event carries no entitlement change")
		return ReconcileResult{Accepted: true, Message: MessageIgnored, Outcome: OutcomeIgnored}, nil
	}

	if err := r.writer.SetEntitlement(ctx, event.SubjectID, status); err != nil {
		msg := err.Error()
		log.Error("Error applying entitlement", zap.String("status", string(status)), zap.Error(err))
		if markErr := r.ledger.MarkFailed(context.WithoutCancel(ctx), event.ID, msg, r.clock.Now()); markErr != nil {
			log.Error("Error recording reconciliation failure", zap.Error(markErr))
		}
		return ReconcileResult{
			Message: msg,
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("%w: %w", domain.ErrReconciliationFailed, err),
		}, nil
	}

	applied := ReconcileResult{Accepted: true, Applied: true, Message: MessageApplied, Outcome: OutcomeApplied}
	if err := r.ledger.MarkProcessed(ctx, event.ID, r.clock.Now()); err != nil {
		// Redelivery re-applies the same status, which is harmless.
		log.Error("Entitlement applied but ledger not marked processed", zap.Error(err))
		return applied, fmt.Errorf("error marking event %s processed: %w", event.ID, err)
	}
	log.Info("Entitlement updated", zap.String("status", string(status)))

	if r.events != nil {
		changedEvent := domain.EntitlementChanged{
			EventID:    event.ID,
			SubjectID:  event.SubjectID,
			Status:     status,
			OccurredAt: r.clock.Now(),
		}
		if err := r.events.Publish(ctx, changedEvent); err != nil {
			log.Error("Error publishing domain event", zap.String("event", changedEvent.EventName()), zap.Error(err))
		}
	}
	return applied, nil
}

func alreadyProcessed() ReconcileResult {
	return ReconcileResult{Accepted: true, Message: MessageAlreadyProcessed, Outcome: OutcomeAlreadyProcessed}
}
