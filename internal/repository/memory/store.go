// Package memory holds in-process implementations of the repositories. They keep
// the same uniqueness rules as the PostgreSQL schema and are used by tests and by
// STORAGE_DRIVER=memory local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"storybook-server/internal/domain"

	"github.com/google/uuid"
)

// GenerationStore stores aggregates in a map. At most one active request per owner.
type GenerationStore struct {
	mu          sync.RWMutex
	generations map[uuid.UUID]*domain.GenerationRequest
}

func NewGenerationStore() *GenerationStore {
	return &GenerationStore{generations: make(map[uuid.UUID]*domain.GenerationRequest)}
}

func (s *GenerationStore) CountByOwnerInPeriod(_ context.Context, ownerID uuid.UUID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, g := range s.generations {
		if g.OwnerID == ownerID && !g.CreatedAt.Before(from) && g.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (s *GenerationStore) FindActiveByOwner(_ context.Context, ownerID uuid.UUID) (*domain.GenerationRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.generations {
		if g.OwnerID == ownerID && g.Status().IsActive() {
			return clone(g), true, nil
		}
	}
	return nil, false, nil
}

func (s *GenerationStore) FindByID(_ context.Context, id uuid.UUID) (*domain.GenerationRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.generations[id]
	if !ok {
		return nil, false, nil
	}
	return clone(g), true, nil
}

func (s *GenerationStore) Create(_ context.Context, g *domain.GenerationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.generations[g.ID]; exists {
		return domain.ErrActiveGenerationExists
	}
	if g.Status().IsActive() {
		for _, other := range s.generations {
			if other.OwnerID == g.OwnerID && other.Status().IsActive() {
				return domain.ErrActiveGenerationExists
			}
		}
	}
	s.generations[g.ID] = clone(g)
	return nil
}

func (s *GenerationStore) Save(_ context.Context, g *domain.GenerationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.generations[g.ID]; !exists {
		return domain.ErrNotFound
	}
	s.generations[g.ID] = clone(g)
	return nil
}

// ListByOwner returns the owner's requests oldest first.
func (s *GenerationStore) ListByOwner(ownerID uuid.UUID) []*domain.GenerationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.GenerationRequest
	for _, g := range s.generations {
		if g.OwnerID == ownerID {
			out = append(out, clone(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// State values are immutable, so a shallow copy is independent of the original.
func clone(g *domain.GenerationRequest) *domain.GenerationRequest {
	c := *g
	return &c
}

// Ledger is the in-memory webhook event ledger.
type Ledger struct {
	mu      sync.Mutex
	records map[string]domain.WebhookEventRecord
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]domain.WebhookEventRecord)}
}

func (l *Ledger) IsProcessed(_ context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[eventID]
	return ok && rec.ProcessedSuccessfully, nil
}

func (l *Ledger) Claim(_ context.Context, record domain.WebhookEventRecord, claimUntil time.Time) (domain.ClaimOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.records[record.EventID]
	if !ok {
		record.ProcessedSuccessfully = false
		record.Attempts = 1
		record.ClaimedUntil = &claimUntil
		l.records[record.EventID] = record
		return domain.ClaimAcquired, nil
	}
	if existing.ProcessedSuccessfully {
		return domain.ClaimAlreadyProcessed, nil
	}
	if existing.ClaimedUntil != nil && existing.ClaimedUntil.After(record.UpdatedAt) {
		return domain.ClaimInFlight, nil
	}
	existing.Attempts++
	existing.ClaimedUntil = &claimUntil
	existing.UpdatedAt = record.UpdatedAt
	l.records[record.EventID] = existing
	return domain.ClaimAcquired, nil
}

func (l *Ledger) MarkProcessed(_ context.Context, eventID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ProcessedSuccessfully = true
	rec.ErrorMessage = nil
	rec.ClaimedUntil = nil
	rec.UpdatedAt = at
	l.records[eventID] = rec
	return nil
}

func (l *Ledger) MarkFailed(_ context.Context, eventID, message string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	rec.ProcessedSuccessfully = false
	rec.ErrorMessage = &message
	rec.ClaimedUntil = nil
	rec.UpdatedAt = at
	l.records[eventID] = rec
	return nil
}

// Get returns a copy of the record for eventID.
func (l *Ledger) Get(eventID string) (domain.WebhookEventRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[eventID]
	return rec, ok
}

// Accounts stores entitlements by subject id.
type Accounts struct {
	mu           sync.RWMutex
	entitlements map[string]domain.EntitlementStatus
	writes       int
}

func NewAccounts() *Accounts {
	return &Accounts{entitlements: make(map[string]domain.EntitlementStatus)}
}

func (a *Accounts) SetEntitlement(_ context.Context, subjectID string, status domain.EntitlementStatus) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entitlements[subjectID] = status
	a.writes++
	return nil
}

func (a *Accounts) GetEntitlement(_ context.Context, subjectID string) (domain.EntitlementStatus, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	status, ok := a.entitlements[subjectID]
	return status, ok, nil
}

// Writes returns how many times SetEntitlement was called.
func (a *Accounts) Writes() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.writes
}

// OptionCatalog is a fixed set of story options.
type OptionCatalog struct {
	options map[domain.OptionKind]map[string]domain.StoryOption
}

func NewOptionCatalog(options ...domain.StoryOption) *OptionCatalog {
	c := &OptionCatalog{options: make(map[domain.OptionKind]map[string]domain.StoryOption)}
	for _, opt := range options {
		if c.options[opt.Kind] == nil {
			c.options[opt.Kind] = make(map[string]domain.StoryOption)
		}
		c.options[opt.Kind][opt.ID] = opt
	}
	return c
}

func (c *OptionCatalog) FindOption(_ context.Context, kind domain.OptionKind, id string) (domain.StoryOption, bool, error) {
	opt, ok := c.options[kind][id]
	return opt, ok, nil
}

// List returns every option ordered by kind and id.
func (c *OptionCatalog) List(_ context.Context) ([]domain.StoryOption, error) {
	var out []domain.StoryOption
	for _, byID := range c.options {
		for _, opt := range byID {
			out = append(out, opt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DefaultOptions seeds local runs; the same rows are inserted by the initial migration.
func DefaultOptions() []domain.StoryOption {
	return []domain.StoryOption{
		{Kind: domain.OptionTheme, ID: "space", Name: "Space adventure", PromptHint: "a voyage between the stars"},
		{Kind: domain.OptionTheme, ID: "forest", Name: "Enchanted forest", PromptHint: "a forest full of talking animals"},
		{Kind: domain.OptionTheme, ID: "ocean", Name: "Under the sea", PromptHint: "an underwater kingdom"},
		{Kind: domain.OptionTone, ID: "funny", Name: "Funny", PromptHint: "light and playful"},
		{Kind: domain.OptionTone, ID: "calm", Name: "Bedtime calm", PromptHint: "gentle and soothing"},
		{Kind: domain.OptionTone, ID: "brave", Name: "Adventurous", PromptHint: "bold and exciting"},
		{Kind: domain.OptionLanguage, ID: "en", Name: "English", PromptHint: "Write in English."},
		{Kind: domain.OptionLanguage, ID: "ru", Name: "Русский", PromptHint: "Пиши на русском языке."},
		{Kind: domain.OptionLanguage, ID: "de", Name: "Deutsch", PromptHint: "Schreibe auf Deutsch."},
	}
}
