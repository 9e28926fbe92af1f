package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GET /api/drivers/:id/stats
func (a *API) DriverStats(c *gin.Context) {
	stats, err := a.Stats.DriverStats(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// POST /api/admin/earnings/rollover is triggered by an external scheduler.
func (a *API) RolloverEarnings(c *gin.Context) {
	if err := a.Stats.RollOverPeriod(c.Request.Context(), actor(c)); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "earnings period rolled over"})
}
