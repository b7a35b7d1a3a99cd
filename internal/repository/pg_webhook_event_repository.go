package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ service.WebhookEventLedger = (*PgWebhookEventRepository)(nil)

const (
	isEventProcessedQuery = `SELECT processed_successfully FROM webhook_events WHERE event_id = $1`
	// The conditional DO UPDATE only re-claims rows that are unprocessed and whose
	// previous claim has lapsed; otherwise no row is returned.
	claimEventQuery = `
        INSERT INTO webhook_events (event_id, event_type, subject_id, payload, processed_successfully,
                                    attempts, claimed_until, created_at, updated_at)
        VALUES ($1, $2, $3, $4, FALSE, 1, $5, $6, $6)
        ON CONFLICT (event_id) DO UPDATE SET
            attempts = webhook_events.attempts + 1,
            claimed_until = EXCLUDED.claimed_until,
            updated_at = EXCLUDED.updated_at
        WHERE NOT webhook_events.processed_successfully
          AND (webhook_events.claimed_until IS NULL OR webhook_events.claimed_until <= EXCLUDED.updated_at)
        RETURNING attempts`
	markEventProcessedQuery = `
        UPDATE webhook_events
        SET processed_successfully = TRUE, error_message = NULL, claimed_until = NULL, updated_at = $2
        WHERE event_id = $1`
	markEventFailedQuery = `
        UPDATE webhook_events
        SET processed_successfully = FALSE, error_message = $2, claimed_until = NULL, updated_at = $3
        WHERE event_id = $1`
	getEventQuery = `
        SELECT event_id, event_type, subject_id, processed_successfully, payload, error_message,
               attempts, claimed_until, created_at, updated_at
        FROM webhook_events WHERE event_id = $1`
)

// PgWebhookEventRepository is the PostgreSQL webhook event ledger.
type PgWebhookEventRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgWebhookEventRepository(db DBTX, logger *zap.Logger) *PgWebhookEventRepository {
	return &PgWebhookEventRepository{
		db:     db,
		logger: logger.Named("PgWebhookEventRepo"),
	}
}

func (r *PgWebhookEventRepository) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := r.db.QueryRow(ctx, isEventProcessedQuery, eventID).Scan(&processed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("Failed to check webhook event", zap.String("eventID", eventID), zap.Error(err))
		return false, fmt.Errorf("failed to check webhook event %s: %w", eventID, err)
	}
	return processed, nil
}

func (r *PgWebhookEventRepository) Claim(ctx context.Context, record domain.WebhookEventRecord, claimUntil time.Time) (domain.ClaimOutcome, error) {
	log := r.logger.With(zap.String("eventID", record.EventID))

	var payload []byte
	if len(record.Payload) > 0 {
		payload = record.Payload
	}
	var attempts int
	err := r.db.QueryRow(ctx, claimEventQuery,
		record.EventID, record.EventType, record.SubjectID, payload, claimUntil, record.UpdatedAt,
	).Scan(&attempts)
	if err == nil {
		log.Debug("Webhook event claimed", zap.Int("attempts", attempts))
		return domain.ClaimAcquired, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		log.Error("Failed to claim webhook event", zap.Error(err))
		return 0, fmt.Errorf("failed to claim webhook event %s: %w", record.EventID, err)
	}

	// The row exists and was not re-claimed.
	processed, err := r.IsProcessed(ctx, record.EventID)
	if err != nil {
		return 0, err
	}
	if processed {
		return domain.ClaimAlreadyProcessed, nil
	}
	return domain.ClaimInFlight, nil
}

func (r *PgWebhookEventRepository) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return r.update(ctx, markEventProcessedQuery, eventID, at)
}

func (r *PgWebhookEventRepository) MarkFailed(ctx context.Context, eventID, message string, at time.Time) error {
	return r.update(ctx, markEventFailedQuery, eventID, message, at)
}

func (r *PgWebhookEventRepository) update(ctx context.Context, query, eventID string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{eventID}, args...)...)
	if err != nil {
		r.logger.Error("Failed to update webhook event", zap.String("eventID", eventID), zap.Error(err))
		return fmt.Errorf("failed to update webhook event %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get returns the full ledger row.
func (r *PgWebhookEventRepository) Get(ctx context.Context, eventID string) (*domain.WebhookEventRecord, error) {
	var rec domain.WebhookEventRecord
	if err := pgxscan.Get(ctx, r.db, &rec, getEventQuery, eventID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get webhook event %s: %w", eventID, err)
	}
	return &rec, nil
}
