package service

import (
	"context"
	"errors"
	"fmt"

	"storybook-server/internal/domain"
	"storybook-server/internal/quota"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStaleJobResult is returned when a worker result names a job id that does not
// belong to the generation.
var ErrStaleJobResult = errors.New("job result does not match the generation's current job")

// SubmitResult is returned by Submit for both new and existing requests.
type SubmitResult struct {
	ID            uuid.UUID               `json:"id"`
	ExternalJobID *string                 `json:"external_job_id"`
	Status        domain.GenerationStatus `json:"status"`
	// Existing is true when an active request was returned instead of creating one.
	Existing bool `json:"-"`
}

func newSubmitResult(g *domain.GenerationRequest, existing bool) *SubmitResult {
	res := &SubmitResult{ID: g.ID, Status: g.Status(), Existing: existing}
	if jobID, ok := g.ExternalJobID(); ok {
		res.ExternalJobID = &jobID
	}
	return res
}

// GenerationService orchestrates admission, deduplication, creation and dispatch
// of story generations, and applies results reported by the worker.
type GenerationService struct {
	repo       GenerationRepository
	options    StoryOptionLookup
	dispatcher JobDispatcher
	locker     SubmissionLocker
	events     EventPublisher
	policy     *quota.Policy
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// NewGenerationService creates a new GenerationService. A nil locker means the
// storage constraint alone guards against concurrent submissions.
func NewGenerationService(
	repo GenerationRepository,
	options StoryOptionLookup,
	dispatcher JobDispatcher,
	locker SubmissionLocker,
	events EventPublisher,
	policy *quota.Policy,
	clock Clock,
	ids IDGenerator,
	logger *zap.Logger,
) *GenerationService {
	if locker == nil {
		locker = NoopLocker
	}
	return &GenerationService{
		repo:       repo,
		options:    options,
		dispatcher: dispatcher,
		locker:     locker,
		events:     events,
		policy:     policy,
		clock:      clock,
		ids:        ids,
		logger:     logger.Named("GenerationService"),
	}
}

// Submit admits, deduplicates, persists and dispatches a generation request.
// The aggregate is stored as pending before dispatch is attempted.
func (s *GenerationService) Submit(ctx context.Context, ownerID uuid.UUID, role domain.Role, cfg domain.GenerationConfig) (*SubmitResult, error) {
	log := s.logger.With(zap.String("ownerID", ownerID.String()), zap.String("role", string(role)))
	log.Info("Submit called")

	snapshot, err := s.quotaSnapshot(ctx, ownerID, role)
	if err != nil {
		log.Error("Error counting generations for period", zap.Error(err))
		return nil, err
	}
	if !snapshot.CanCreate {
		log.Warn("Monthly generation quota exceeded",
			zap.Int("count", snapshot.CountThisPeriod), zap.Int("limit", *snapshot.Limit))
		return nil, &domain.QuotaExceededError{
			Count:   snapshot.CountThisPeriod,
			Limit:   *snapshot.Limit,
			ResetAt: *snapshot.ResetAt,
		}
	}

	release, err := s.locker.Acquire(ctx, ownerID)
	if err != nil {
		// The unique index still rejects a second active request.
		log.Warn("Submission lock not acquired, relying on storage constraint", zap.Error(err))
		release = func() {}
	}
	g, resolved, existing, err := s.createPending(ctx, ownerID, cfg, log)
	release()
	if err != nil {
		return nil, err
	}
	if existing {
		log.Info("Returning existing active generation", zap.String("generationID", g.ID.String()), zap.String("status", string(g.Status())))
		return newSubmitResult(g, true), nil
	}

	return s.dispatch(ctx, g, resolved, log)
}

// createPending returns either the owner's active request (existing == true) or a
// newly persisted pending one together with its resolved configuration.
func (s *GenerationService) createPending(ctx context.Context, ownerID uuid.UUID, cfg domain.GenerationConfig, log *zap.Logger) (*domain.GenerationRequest, domain.ResolvedConfig, bool, error) {
	active, found, err := s.repo.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		log.Error("Error looking up active generation", zap.Error(err))
		return nil, domain.ResolvedConfig{}, false, fmt.Errorf("error looking up active generation: %w", err)
	}
	if found {
		return active, domain.ResolvedConfig{}, true, nil
	}

	resolved, err := s.resolveConfig(ctx, cfg)
	if err != nil {
		log.Warn("Configuration could not be resolved", zap.Error(err))
		return nil, domain.ResolvedConfig{}, false, err
	}

	g := domain.NewGenerationRequest(s.ids.NewID(), ownerID, cfg, s.clock.Now())
	if err := s.repo.Create(ctx, g); err != nil {
		if !errors.Is(err, domain.ErrActiveGenerationExists) {
			log.Error("Error saving pending generation", zap.String("generationID", g.ID.String()), zap.Error(err))
			return nil, domain.ResolvedConfig{}, false, fmt.Errorf("error saving pending generation: %w", err)
		}
		// Lost the race against a concurrent submission; return the winner.
		winner, found, findErr := s.repo.FindActiveByOwner(ctx, ownerID)
		if findErr != nil {
			return nil, domain.ResolvedConfig{}, false, fmt.Errorf("error looking up active generation after conflict: %w", findErr)
		}
		if !found {
			return nil, domain.ResolvedConfig{}, false, fmt.Errorf("error saving pending generation: %w", err)
		}
		return winner, domain.ResolvedConfig{}, true, nil
	}
	log.Info("Pending generation created", zap.String("generationID", g.ID.String()))
	return g, resolved, false, nil
}

func (s *GenerationService) resolveConfig(ctx context.Context, cfg domain.GenerationConfig) (domain.ResolvedConfig, error) {
	resolved := domain.ResolvedConfig{AgeGroupID: cfg.AgeGroupID, ChapterCount: cfg.ChapterCount}
	lookups := []struct {
		kind domain.OptionKind
		id   string
		dst  *domain.StoryOption
	}{
		{domain.OptionTheme, cfg.ThemeID, &resolved.Theme},
		{domain.OptionLanguage, cfg.LanguageID, &resolved.Language},
		{domain.OptionTone, cfg.ToneID, &resolved.Tone},
	}
	for _, l := range lookups {
		opt, found, err := s.options.FindOption(ctx, l.kind, l.id)
		if err != nil {
			return domain.ResolvedConfig{}, fmt.Errorf("error resolving %s %q: %w", l.kind, l.id, err)
		}
		if !found {
			return domain.ResolvedConfig{}, &domain.ConfigurationNotFoundError{Kind: l.kind, ID: l.id}
		}
		*l.dst = opt
	}
	return resolved, nil
}

func (s *GenerationService) dispatch(ctx context.Context, g *domain.GenerationRequest, resolved domain.ResolvedConfig, log *zap.Logger) (*SubmitResult, error) {
	log = log.With(zap.String("generationID", g.ID.String()))

	res, dispatchErr := s.dispatcher.Dispatch(ctx, domain.JobTypeStoryGeneration, domain.NewStoryGenerationJob(g, resolved))
	if dispatchErr != nil || res.ID == "" {
		log.Error("Error dispatching generation job, marking generation failed", zap.Error(dispatchErr))
		if err := g.FailGeneration(domain.DispatchFailureReason, s.clock.Now()); err != nil {
			return nil, err
		}
		// Persist even if the caller went away: the failed row is what operators see.
		saveCtx := context.WithoutCancel(ctx)
		if err := s.repo.Save(saveCtx, g); err != nil {
			log.Error("CRITICAL: failed to persist failed status after dispatch error", zap.Error(err))
		}
		s.publish(saveCtx, domain.GenerationFailed{
			GenerationID: g.ID,
			OwnerID:      g.OwnerID,
			Reason:       domain.DispatchFailureReason,
			OccurredAt:   g.UpdatedAt,
		}, log)
		return nil, &domain.DispatchFailedError{GenerationID: g.ID, Cause: dispatchErr}
	}

	if err := g.StartGeneration(res.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	// The job is already running, so the caller going away must not lose it.
	saveCtx := context.WithoutCancel(ctx)
	if err := s.repo.Save(saveCtx, g); err != nil {
		log.Error("Error saving generating status, marking generation failed", zap.String("jobID", res.ID), zap.Error(err))
		s.failUnrecorded(saveCtx, g, log)
		return nil, fmt.Errorf("error saving generation %s after dispatch: %w", g.ID, err)
	}
	log.Info("Generation job dispatched", zap.String("jobID", res.ID))

	s.publish(ctx, domain.GenerationSubmitted{
		GenerationID: g.ID,
		OwnerID:      g.OwnerID,
		JobID:        res.ID,
		OccurredAt:   g.UpdatedAt,
	}, log)
	return newSubmitResult(g, false), nil
}

// failUnrecorded moves a dispatched request whose job id could not be saved to
// failed. If that save fails too the row stays pending and the worker result
// adopts it in loadForResult.
func (s *GenerationService) failUnrecorded(ctx context.Context, g *domain.GenerationRequest, log *zap.Logger) {
	if err := g.FailGeneration(domain.RecordFailureReason, s.clock.Now()); err != nil {
		log.Error("Unable to mark unrecorded generation failed", zap.Error(err))
		return
	}
	if err := s.repo.Save(ctx, g); err != nil {
		log.Error("CRITICAL: generation left pending with a running job", zap.Error(err))
		return
	}
	s.publish(ctx, domain.GenerationFailed{
		GenerationID: g.ID,
		OwnerID:      g.OwnerID,
		Reason:       domain.RecordFailureReason,
		OccurredAt:   g.UpdatedAt,
	}, log)
}

// CompleteGeneration applies a successful worker result. An empty jobID skips the
// job id check.
func (s *GenerationService) CompleteGeneration(ctx context.Context, id uuid.UUID, jobID, artifactRef string) error {
	log := s.logger.With(zap.String("generationID", id.String()), zap.String("jobID", jobID))

	g, err := s.loadForResult(ctx, id, jobID)
	if err != nil {
		return err
	}
	if err := g.CompleteGeneration(artifactRef, s.clock.Now()); err != nil {
		log.Warn("Completion rejected", zap.String("status", string(g.Status())), zap.Error(err))
		return err
	}
	if err := s.repo.Save(ctx, g); err != nil {
		log.Error("Error saving completed generation", zap.Error(err))
		return fmt.Errorf("error saving completed generation %s: %w", id, err)
	}
	log.Info("Generation completed", zap.String("artifactRef", artifactRef))

	s.publish(ctx, domain.GenerationCompleted{
		GenerationID: g.ID,
		OwnerID:      g.OwnerID,
		ArtifactRef:  artifactRef,
		OccurredAt:   g.UpdatedAt,
	}, log)
	return nil
}

// FailGeneration applies a failed worker result. Repeated failures keep the first
// reason and are not saved again.
func (s *GenerationService) FailGeneration(ctx context.Context, id uuid.UUID, jobID, reason string) error {
	log := s.logger.With(zap.String("generationID", id.String()), zap.String("jobID", jobID))

	g, err := s.loadForResult(ctx, id, jobID)
	if err != nil {
		return err
	}
	if g.Status() == domain.StatusFailed {
		log.Info("Generation already failed, ignoring duplicate failure")
		return nil
	}
	if err := g.FailGeneration(reason, s.clock.Now()); err != nil {
		log.Warn("Failure rejected", zap.String("status", string(g.Status())), zap.Error(err))
		return err
	}
	if err := s.repo.Save(ctx, g); err != nil {
		log.Error("Error saving failed generation", zap.Error(err))
		return fmt.Errorf("error saving failed generation %s: %w", id, err)
	}
	log.Info("Generation failed", zap.String("reason", reason))

	s.publish(ctx, domain.GenerationFailed{
		GenerationID: g.ID,
		OwnerID:      g.OwnerID,
		Reason:       reason,
		OccurredAt:   g.UpdatedAt,
	}, log)
	return nil
}

func (s *GenerationService) loadForResult(ctx context.Context, id uuid.UUID, jobID string) (*domain.GenerationRequest, error) {
	g, found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading generation %s: %w", id, err)
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	if jobID == "" {
		return g, nil
	}
	if current, ok := g.ExternalJobID(); ok && current != jobID {
		return nil, fmt.Errorf("%w: got %s, current %s", ErrStaleJobResult, jobID, current)
	}
	// A pending row with a result means the dispatched job id was never saved.
	if g.Status() == domain.StatusPending {
		if err := g.StartGeneration(jobID, s.clock.Now()); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// GetGeneration returns the owner's generation. Other owners' requests are
// reported as not found.
func (s *GenerationService) GetGeneration(ctx context.Context, ownerID, id uuid.UUID) (*domain.GenerationRequest, error) {
	g, found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error loading generation %s: %w", id, err)
	}
	if !found || g.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return g, nil
}

// GetQuota returns the owner's quota snapshot for the current period.
func (s *GenerationService) GetQuota(ctx context.Context, ownerID uuid.UUID, role domain.Role) (quota.Snapshot, error) {
	return s.quotaSnapshot(ctx, ownerID, role)
}

func (s *GenerationService) quotaSnapshot(ctx context.Context, ownerID uuid.UUID, role domain.Role) (quota.Snapshot, error) {
	now := s.clock.Now()
	from, to := quota.PeriodBounds(now)
	count, err := s.repo.CountByOwnerInPeriod(ctx, ownerID, from, to)
	if err != nil {
		return quota.Snapshot{}, fmt.Errorf("error counting generations for period: %w", err)
	}
	return s.policy.Evaluate(role, count, now), nil
}

// publish never fails the operation: the state change is already durable.
func (s *GenerationService) publish(ctx context.Context, event domain.Event, log *zap.Logger) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		log.Error("Error publishing domain event", zap.String("event", event.EventName()), zap.Error(err))
	}
}
