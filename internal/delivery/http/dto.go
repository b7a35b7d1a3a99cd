package http

import (
	"time"

	"storybook-server/internal/domain"

	"github.com/google/uuid"
)

type submitGenerationRequest struct {
	ThemeID      string `json:"theme_id" validate:"required,max=64"`
	ToneID       string `json:"tone_id" validate:"required,max=64"`
	LanguageID   string `json:"language_id" validate:"required,max=64"`
	AgeGroupID   string `json:"age_group_id" validate:"omitempty,max=32"`
	ChapterCount int    `json:"chapter_count" validate:"omitempty,min=1,max=20"`
}

func (r submitGenerationRequest) toConfig() domain.GenerationConfig {
	return domain.GenerationConfig{
		ThemeID:      r.ThemeID,
		ToneID:       r.ToneID,
		LanguageID:   r.LanguageID,
		AgeGroupID:   r.AgeGroupID,
		ChapterCount: r.ChapterCount,
	}
}

// GenerationResponse is the client view of a generation request.
type GenerationResponse struct {
	ID            uuid.UUID               `json:"id"`
	Status        domain.GenerationStatus `json:"status"`
	Config        domain.GenerationConfig `json:"config"`
	ExternalJobID *string                 `json:"external_job_id,omitempty"`
	ArtifactRef   *string                 `json:"artifact_ref,omitempty"`
	LastError     *string                 `json:"last_error,omitempty"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func newGenerationResponse(g *domain.GenerationRequest) GenerationResponse {
	resp := GenerationResponse{
		ID:        g.ID,
		Status:    g.Status(),
		Config:    g.Config,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if v, ok := g.ExternalJobID(); ok {
		resp.ExternalJobID = &v
	}
	if v, ok := g.ArtifactRef(); ok {
		resp.ArtifactRef = &v
	}
	if v, ok := g.LastError(); ok {
		resp.LastError = &v
	}
	if v, ok := g.StartedAt(); ok {
		resp.StartedAt = &v
	}
	if v, ok := g.CompletedAt(); ok {
		resp.CompletedAt = &v
	}
	return resp
}

// billingWebhookEnvelope is the provider delivery body.
type billingWebhookEnvelope struct {
	Event billingEventPayload `json:"event"`
}

type billingEventPayload struct {
	ID               string   `json:"id" validate:"required,max=255"`
	Type             string   `json:"type" validate:"required,max=64"`
	AppUserID        string   `json:"app_user_id" validate:"required,max=255"`
	EntitlementIDs   []string `json:"entitlement_ids" validate:"omitempty,dive,required"`
	EventTimestampMs int64    `json:"event_timestamp_ms" validate:"gte=0"`
}

// BillingWebhookResponse tells the provider whether the delivery was accepted.
type BillingWebhookResponse struct {
	Accepted bool   `json:"accepted"`
	Applied  bool   `json:"applied"`
	Message  string `json:"message"`
}

// ErrorResponse is the error body of every endpoint. Optional fields carry the
// structured payload of quota and configuration errors.
type ErrorResponse struct {
	Error        string     `json:"error"`
	Code         string     `json:"code,omitempty"`
	Count        *int       `json:"count,omitempty"`
	Limit        *int       `json:"limit,omitempty"`
	ResetAt      *time.Time `json:"reset_at,omitempty"`
	Kind         string     `json:"kind,omitempty"`
	OptionID     string     `json:"option_id,omitempty"`
	GenerationID *uuid.UUID `json:"generation_id,omitempty"`
	Fields       []string   `json:"fields,omitempty"`
}
