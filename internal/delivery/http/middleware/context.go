package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by Auth.
const (
	userIDKey = "user_id"
	rolesKey  = "user_roles"
)

var errNoUserInContext = errors.New("user id not found in request context")

// GetUserID returns the authenticated user id stored by Auth.
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, errNoUserInContext
	}
	id, ok := raw.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, errNoUserInContext
	}
	return id, nil
}

// GetRoles returns the token roles stored by Auth.
func GetRoles(c *gin.Context) []string {
	return c.GetStringSlice(rolesKey)
}
