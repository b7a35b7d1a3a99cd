package http

import (
	"context"

	"storybook-server/internal/delivery/http/middleware"
	"storybook-server/internal/domain"
	"storybook-server/internal/metrics"
	"storybook-server/internal/quota"
	"storybook-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerationAPI is the part of service.GenerationService used by the handlers.
type GenerationAPI interface {
	Submit(ctx context.Context, ownerID uuid.UUID, role domain.Role, cfg domain.GenerationConfig) (*service.SubmitResult, error)
	GetGeneration(ctx context.Context, ownerID, id uuid.UUID) (*domain.GenerationRequest, error)
	GetQuota(ctx context.Context, ownerID uuid.UUID, role domain.Role) (quota.Snapshot, error)
}

// BillingReconciler applies provider billing events.
type BillingReconciler interface {
	Reconcile(ctx context.Context, event domain.BillingEvent) (service.ReconcileResult, error)
}

// StoryOptionLister lists the selectable story options.
type StoryOptionLister interface {
	List(ctx context.Context) ([]domain.StoryOption, error)
}

// Handler serves the storybook API.
type Handler struct {
	generations  GenerationAPI
	reconciler   BillingReconciler
	entitlements service.EntitlementReader
	options      StoryOptionLister
	metrics      *metrics.Metrics
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewHandler(
	generations GenerationAPI,
	reconciler BillingReconciler,
	entitlements service.EntitlementReader,
	options StoryOptionLister,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		generations:  generations,
		reconciler:   reconciler,
		entitlements: entitlements,
		options:      options,
		metrics:      m,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger.Named("StorybookHandler"),
	}
}

// RegisterRoutes mounts the user API behind auth and the billing webhook behind
// the provider token.
func (h *Handler) RegisterRoutes(router gin.IRouter, auth, webhookAuth gin.HandlerFunc) {
	api := router.Group("/api/v1", auth)
	{
		api.POST("/generations", h.submitGeneration)
		api.GET("/generations/:id", h.getGeneration)
		api.GET("/quota", h.getQuota)
		api.GET("/story-options", h.listStoryOptions)
	}

	router.POST("/webhooks/billing", webhookAuth, h.billingWebhook)
}

// effectiveRole combines token roles with the stored account entitlement.
func (h *Handler) effectiveRole(c *gin.Context, userID uuid.UUID) (domain.Role, error) {
	entitlement, _, err := h.entitlements.GetEntitlement(c.Request.Context(), userID.String())
	if err != nil {
		return "", err
	}
	return domain.EffectiveRole(middleware.GetRoles(c), entitlement), nil
}
