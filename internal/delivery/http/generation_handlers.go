package http

import (
	"net/http"

	"storybook-server/internal/delivery/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *Handler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.GetUserID(c)
	if err != nil {
		h.logger.Error("Authenticated route without user id", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: codeUnauthorized})
		return uuid.Nil, false
	}
	return id, true
}

// submitGeneration answers 202 for a newly dispatched request and 200 when the
// owner's active request is returned instead.
func (h *Handler) submitGeneration(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req submitGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid submit generation body", zap.Stringer("userID", userID), zap.Error(err))
		badRequest(c, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.logger.Warn("Submit generation validation failed", zap.Stringer("userID", userID), zap.Error(err))
		validationFailed(c, err)
		return
	}

	role, err := h.effectiveRole(c, userID)
	if err != nil {
		h.logger.Error("Error reading entitlement", zap.Stringer("userID", userID), zap.Error(err))
		h.handleServiceError(c, err)
		return
	}

	result, err := h.generations.Submit(c.Request.Context(), userID, role, req.toConfig())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	status := http.StatusAccepted
	if result.Existing {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *Handler) getGeneration(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid generation id")
		return
	}

	g, err := h.generations.GetGeneration(c.Request.Context(), userID, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newGenerationResponse(g))
}

func (h *Handler) getQuota(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	role, err := h.effectiveRole(c, userID)
	if err != nil {
		h.logger.Error("Error reading entitlement", zap.Stringer("userID", userID), zap.Error(err))
		h.handleServiceError(c, err)
		return
	}

	snapshot, err := h.generations.GetQuota(c.Request.Context(), userID, role)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role, "quota": snapshot})
}

func (h *Handler) listStoryOptions(c *gin.Context) {
	options, err := h.options.List(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}
