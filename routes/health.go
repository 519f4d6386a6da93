package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-ingest-platform/services"
	"knowledge-ingest-platform/utils"
)

// HandleSystemHealth reports document counts and derived health flags.
func HandleSystemHealth(monitor *services.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		health, err := monitor.SystemStatus(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Health check failed", nil)
			return
		}
		c.JSON(http.StatusOK, health)
	}
}

// HandleStalledDocuments lists processing documents past their stall
// thresholds with escalating severity.
func HandleStalledDocuments(monitor *services.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		stalled, err := monitor.StalledDocuments(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Stall detection failed", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"stalled": stalled,
			"count":   len(stalled),
		})
	}
}

// HandleEmbeddingGaps lists completed documents with chunks missing
// embeddings.
func HandleEmbeddingGaps(monitor *services.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		gaps, err := monitor.EmbeddingGaps(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Gap detection failed", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"gaps":  gaps,
			"count": len(gaps),
		})
	}
}

// HandleDimensionDiagnostic reports embedding-dimension uniformity across
// the store.
func HandleDimensionDiagnostic(monitor *services.HealthMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		diag, err := monitor.DimensionDiagnostic(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Dimension diagnostic failed", nil)
			return
		}
		c.JSON(http.StatusOK, diag)
	}
}
