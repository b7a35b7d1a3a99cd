package repository

import (
	"context"
	"errors"
	"fmt"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	_ service.EntitlementWriter = (*PgAccountRepository)(nil)
	_ service.EntitlementReader = (*PgAccountRepository)(nil)
	_ service.StoryOptionLookup = (*PgStoryOptionRepository)(nil)
)

const (
	upsertEntitlementQuery = `
        INSERT INTO accounts (subject_id, entitlement, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (subject_id) DO UPDATE SET
            entitlement = EXCLUDED.entitlement,
            updated_at = NOW()`
	getEntitlementQuery = `SELECT entitlement FROM accounts WHERE subject_id = $1`

	findStoryOptionQuery = `SELECT kind, id, name, prompt_hint FROM story_options WHERE kind = $1 AND id = $2`
	listStoryOptionsQuery = `SELECT kind, id, name, prompt_hint FROM story_options ORDER BY kind, id`
)

// PgAccountRepository stores the entitlement of each billing subject.
type PgAccountRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgAccountRepository(db DBTX, logger *zap.Logger) *PgAccountRepository {
	return &PgAccountRepository{
		db:     db,
		logger: logger.Named("PgAccountRepo"),
	}
}

func (r *PgAccountRepository) SetEntitlement(ctx context.Context, subjectID string, status domain.EntitlementStatus) error {
	if _, err := r.db.Exec(ctx, upsertEntitlementQuery, subjectID, string(status)); err != nil {
		r.logger.Error("Failed to set entitlement", zap.String("subjectID", subjectID), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("failed to set entitlement for %s: %w", subjectID, err)
	}
	return nil
}

func (r *PgAccountRepository) GetEntitlement(ctx context.Context, subjectID string) (domain.EntitlementStatus, bool, error) {
	var status string
	if err := r.db.QueryRow(ctx, getEntitlementQuery, subjectID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		r.logger.Error("Failed to get entitlement", zap.String("subjectID", subjectID), zap.Error(err))
		return "", false, fmt.Errorf("failed to get entitlement for %s: %w", subjectID, err)
	}
	return domain.EntitlementStatus(status), true, nil
}

// PgStoryOptionRepository resolves story options seeded by the migrations.
type PgStoryOptionRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgStoryOptionRepository(db DBTX, logger *zap.Logger) *PgStoryOptionRepository {
	return &PgStoryOptionRepository{
		db:     db,
		logger: logger.Named("PgStoryOptionRepo"),
	}
}

func (r *PgStoryOptionRepository) FindOption(ctx context.Context, kind domain.OptionKind, id string) (domain.StoryOption, bool, error) {
	var opt domain.StoryOption
	if err := pgxscan.Get(ctx, r.db, &opt, findStoryOptionQuery, string(kind), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StoryOption{}, false, nil
		}
		r.logger.Error("Failed to find story option", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		return domain.StoryOption{}, false, fmt.Errorf("failed to find %s option %s: %w", kind, id, err)
	}
	return opt, true, nil
}

// List returns every option, ordered by kind and id.
func (r *PgStoryOptionRepository) List(ctx context.Context) ([]domain.StoryOption, error) {
	var opts []domain.StoryOption
	if err := pgxscan.Select(ctx, r.db, &opts, listStoryOptionsQuery); err != nil {
		r.logger.Error("Failed to list story options", zap.Error(err))
		return nil, fmt.Errorf("failed to list story options: %w", err)
	}
	return opts, nil
}
