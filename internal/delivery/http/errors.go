package http

import (
	"errors"
	"net/http"

	"storybook-server/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest       = "bad_request"
	codeValidation       = "validation_failed"
	codeUnauthorized     = "unauthorized"
	codeNotFound         = "not_found"
	codeQuotaExceeded    = "quota_exceeded"
	codeConfigNotFound   = "configuration_not_found"
	codeDispatchFailed   = "dispatch_failed"
	codeInternal         = "internal_error"
	codeInvalidBilling   = "invalid_billing_event"
	codeReconcileFailure = "reconciliation_failed"
)

// handleServiceError maps service errors to status codes and aborts the request.
// Infrastructure details never reach the client; they are attached to the gin
// context for the request logger.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var (
		quotaErr    *domain.QuotaExceededError
		configErr   *domain.ConfigurationNotFoundError
		dispatchErr *domain.DispatchFailedError
	)

	switch {
	case errors.As(err, &quotaErr):
		h.metrics.ObserveRejection(codeQuotaExceeded)
		resetAt := quotaErr.ResetAt
		c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
			Error:   domain.ErrQuotaExceeded.Error(),
			Code:    codeQuotaExceeded,
			Count:   &quotaErr.Count,
			Limit:   &quotaErr.Limit,
			ResetAt: &resetAt,
		})
	case errors.As(err, &configErr):
		h.metrics.ObserveRejection(codeConfigNotFound)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:    domain.ErrConfigurationNotFound.Error(),
			Code:     codeConfigNotFound,
			Kind:     string(configErr.Kind),
			OptionID: configErr.ID,
		})
	case errors.As(err, &dispatchErr):
		h.metrics.ObserveRejection(codeDispatchFailed)
		_ = c.Error(err)
		id := dispatchErr.GenerationID
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:        "generation could not be started, please retry later",
			Code:         codeDispatchFailed,
			GenerationID: &id,
		})
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Error: "resource not found",
			Code:  codeNotFound,
		})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  codeInternal,
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: message, Code: codeBadRequest})
}

// validationFailed reports the fields that failed validation.
func validationFailed(c *gin.Context, err error) {
	resp := ErrorResponse{Error: "request validation failed", Code: codeValidation}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.Fields = append(resp.Fields, fe.Namespace())
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}
