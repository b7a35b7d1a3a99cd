package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"storybook-server/internal/domain"
	"storybook-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// billingWebhook ingests one provider delivery. The status code drives provider
// redelivery: 409 and 500 are retried, 200 is final.
func (h *Handler) billingWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	raw, err := c.GetRawData()
	if err != nil {
		h.metrics.ObserveWebhook("invalid")
		badRequest(c, "unable to read request body")
		return
	}

	var envelope billingWebhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.logger.Warn("Malformed billing webhook body", zap.Error(err))
		h.metrics.ObserveWebhook("invalid")
		badRequest(c, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(envelope); err != nil {
		h.logger.Warn("Billing webhook validation failed", zap.Error(err))
		h.metrics.ObserveWebhook("invalid")
		validationFailed(c, err)
		return
	}

	event := domain.BillingEvent{
		ID:             envelope.Event.ID,
		Type:           domain.BillingEventType(envelope.Event.Type),
		SubjectID:      envelope.Event.AppUserID,
		EntitlementIDs: envelope.Event.EntitlementIDs,
		Payload:        json.RawMessage(raw),
	}
	if envelope.Event.EventTimestampMs > 0 {
		event.OccurredAt = time.UnixMilli(envelope.Event.EventTimestampMs).UTC()
	}

	result, err := h.reconciler.Reconcile(c.Request.Context(), event)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidBillingEvent) {
			h.metrics.ObserveWebhook("invalid")
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: codeInvalidBilling})
			return
		}
		h.metrics.ObserveWebhook(string(service.OutcomeFailed))
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: "billing event could not be processed",
			Code:  codeReconcileFailure,
		})
		return
	}

	h.metrics.ObserveWebhook(string(result.Outcome))
	c.JSON(webhookStatus(result.Outcome), BillingWebhookResponse{
		Accepted: result.Accepted,
		Applied:  result.Applied,
		Message:  result.Message,
	})
}

func webhookStatus(outcome service.ReconcileOutcome) int {
	switch outcome {
	case service.OutcomeInFlight:
		return http.StatusConflict
	case service.OutcomeFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}
