package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Compile-time check to ensure pgGenerationRepository implements GenerationRepository
var _ service.GenerationRepository = (*pgGenerationRepository)(nil)

// activeGenerationIndex is the partial unique index allowing one active request per owner.
const activeGenerationIndex = "generation_requests_one_active_per_owner"

const generationFields = `id, owner_id, theme_id, tone_id, language_id, age_group_id, chapter_count,
	status, external_job_id, started_at, completed_at, last_error, artifact_ref, created_at, updated_at`

const (
	countGenerationsInPeriodQuery = `
        SELECT COUNT(*) FROM generation_requests
        WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3`
	findActiveGenerationQuery = `
        SELECT ` + generationFields + ` FROM generation_requests
        WHERE owner_id = $1 AND status IN ('pending', 'generating')
        LIMIT 1`
	findGenerationByIDQuery = `SELECT ` + generationFields + ` FROM generation_requests WHERE id = $1`
	insertGenerationQuery   = `
        INSERT INTO generation_requests (` + generationFields + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	updateGenerationQuery = `
        UPDATE generation_requests
        SET status = $2, external_job_id = $3, started_at = $4, completed_at = $5,
            last_error = $6, artifact_ref = $7, updated_at = $8
        WHERE id = $1`
)

// generationRow is the flat storage shape of a GenerationRequest.
type generationRow struct {
	ID            uuid.UUID  `db:"id"`
	OwnerID       uuid.UUID  `db:"owner_id"`
	ThemeID       string     `db:"theme_id"`
	ToneID        string     `db:"tone_id"`
	LanguageID    string     `db:"language_id"`
	AgeGroupID    string     `db:"age_group_id"`
	ChapterCount  int        `db:"chapter_count"`
	Status        string     `db:"status"`
	ExternalJobID *string    `db:"external_job_id"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	LastError     *string    `db:"last_error"`
	ArtifactRef   *string    `db:"artifact_ref"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

func rowFromGeneration(g *domain.GenerationRequest) generationRow {
	row := generationRow{
		ID:           g.ID,
		OwnerID:      g.OwnerID,
		ThemeID:      g.Config.ThemeID,
		ToneID:       g.Config.ToneID,
		LanguageID:   g.Config.LanguageID,
		AgeGroupID:   g.Config.AgeGroupID,
		ChapterCount: g.Config.ChapterCount,
		Status:       string(g.Status()),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	if v, ok := g.ExternalJobID(); ok {
		row.ExternalJobID = &v
	}
	if v, ok := g.StartedAt(); ok {
		row.StartedAt = &v
	}
	if v, ok := g.CompletedAt(); ok {
		row.CompletedAt = &v
	}
	if v, ok := g.LastError(); ok {
		row.LastError = &v
	}
	if v, ok := g.ArtifactRef(); ok {
		row.ArtifactRef = &v
	}
	return row
}

func (r generationRow) toDomain() (*domain.GenerationRequest, error) {
	state, err := r.state()
	if err != nil {
		return nil, err
	}
	cfg := domain.GenerationConfig{
		ThemeID:      r.ThemeID,
		ToneID:       r.ToneID,
		LanguageID:   r.LanguageID,
		AgeGroupID:   r.AgeGroupID,
		ChapterCount: r.ChapterCount,
	}
	return domain.RestoreGenerationRequest(r.ID, r.OwnerID, cfg, state, r.CreatedAt, r.UpdatedAt)
}

func (r generationRow) state() (domain.GenerationState, error) {
	switch domain.GenerationStatus(r.Status) {
	case domain.StatusPending:
		return domain.Pending{}, nil
	case domain.StatusGenerating:
		if r.ExternalJobID == nil || r.StartedAt == nil {
			return nil, fmt.Errorf("generation %s: generating row without job id or start time", r.ID)
		}
		return domain.Generating{JobID: *r.ExternalJobID, StartedAt: *r.StartedAt}, nil
	case domain.StatusCompleted:
		if r.ExternalJobID == nil || r.StartedAt == nil || r.CompletedAt == nil {
			return nil, fmt.Errorf("generation %s: completed row missing job id or timestamps", r.ID)
		}
		return domain.Completed{
			JobID:       *r.ExternalJobID,
			StartedAt:   *r.StartedAt,
			CompletedAt: *r.CompletedAt,
			ArtifactRef: deref(r.ArtifactRef),
		}, nil
	case domain.StatusFailed:
		failed := domain.Failed{
			JobID:     deref(r.ExternalJobID),
			StartedAt: r.StartedAt,
			Reason:    deref(r.LastError),
		}
		if r.CompletedAt != nil {
			failed.CompletedAt = *r.CompletedAt
		} else {
			failed.CompletedAt = r.UpdatedAt
		}
		return failed, nil
	}
	return nil, fmt.Errorf("generation %s: unknown status %q", r.ID, r.Status)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type pgGenerationRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgGenerationRepository creates a new PostgreSQL-backed GenerationRepository.
func NewPgGenerationRepository(db DBTX, logger *zap.Logger) service.GenerationRepository {
	return &pgGenerationRepository{
		db:     db,
		logger: logger.Named("PgGenerationRepo"),
	}
}

func (r *pgGenerationRepository) CountByOwnerInPeriod(ctx context.Context, ownerID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, countGenerationsInPeriodQuery, ownerID, from, to).Scan(&count); err != nil {
		r.logger.Error("Failed to count generations", zap.String("ownerID", ownerID.String()), zap.Error(err))
		return 0, fmt.Errorf("failed to count generations for owner %s: %w", ownerID, err)
	}
	return count, nil
}

func (r *pgGenerationRepository) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) (*domain.GenerationRequest, bool, error) {
	return r.findOne(ctx, findActiveGenerationQuery, ownerID)
}

func (r *pgGenerationRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.GenerationRequest, bool, error) {
	return r.findOne(ctx, findGenerationByIDQuery, id)
}

func (r *pgGenerationRepository) findOne(ctx context.Context, query string, arg uuid.UUID) (*domain.GenerationRequest, bool, error) {
	var row generationRow
	if err := pgxscan.Get(ctx, r.db, &row, query, arg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		r.logger.Error("Failed to load generation", zap.String("arg", arg.String()), zap.Error(err))
		return nil, false, fmt.Errorf("failed to load generation: %w", err)
	}
	g, err := row.toDomain()
	if err != nil {
		r.logger.Error("Corrupt generation row", zap.String("generationID", row.ID.String()), zap.Error(err))
		return nil, false, err
	}
	return g, true, nil
}

func (r *pgGenerationRepository) Create(ctx context.Context, g *domain.GenerationRequest) error {
	row := rowFromGeneration(g)
	_, err := r.db.Exec(ctx, insertGenerationQuery,
		row.ID, row.OwnerID, row.ThemeID, row.ToneID, row.LanguageID, row.AgeGroupID, row.ChapterCount,
		row.Status, row.ExternalJobID, row.StartedAt, row.CompletedAt, row.LastError, row.ArtifactRef,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeGenerationIndex {
			r.logger.Warn("Owner already has an active generation",
				zap.String("ownerID", g.OwnerID.String()), zap.String("generationID", g.ID.String()))
			return domain.ErrActiveGenerationExists
		}
		r.logger.Error("Failed to insert generation", zap.String("generationID", g.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to insert generation %s: %w", g.ID, err)
	}
	r.logger.Debug("Generation inserted", zap.String("generationID", g.ID.String()), zap.String("status", row.Status))
	return nil
}

func (r *pgGenerationRepository) Save(ctx context.Context, g *domain.GenerationRequest) error {
	row := rowFromGeneration(g)
	tag, err := r.db.Exec(ctx, updateGenerationQuery,
		row.ID, row.Status, row.ExternalJobID, row.StartedAt, row.CompletedAt, row.LastError, row.ArtifactRef, row.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update generation", zap.String("generationID", g.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update generation %s: %w", g.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
