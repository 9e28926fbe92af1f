package handlers

import (
	"errors"
	"net/http"

	"carpool/internal/domain"
	"carpool/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	resp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}
	reqID := middleware.GetRequestID(c)
	if reqID != "" {
		c.JSON(status, gin.H{
			"error":      resp.Error,
			"code":       resp.Code,
			"details":    resp.Details,
			"request_id": reqID,
			"message":    message,
		})
		return
	}
	c.JSON(status, resp)
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	code := domain.Code(err)
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, code, err.Error(), nil)
	case domain.IsForbidden(err):
		respondError(c, http.StatusForbidden, code, err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, code, err.Error(), nil)
	case errors.Is(err, domain.ErrExpired):
		respondError(c, http.StatusGone, code, err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, code, err.Error(), nil)
	default:
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
