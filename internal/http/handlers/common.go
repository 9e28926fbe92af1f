package handlers

import (
	"net/http"

	"carpool/internal/domain"
	"carpool/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// BindJSONOrError ensures body is present and parsable.
func BindJSONOrError[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "empty body", nil)
		return false
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload", err.Error())
		return false
	}
	return true
}

// actor is the authenticated caller as seen by the services.
func actor(c *gin.Context) domain.Actor {
	return domain.Actor{UserID: middleware.UserID(c), Role: middleware.UserRole(c)}
}
