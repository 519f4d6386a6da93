package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"knowledge-ingest-platform/internal/config"
	"knowledge-ingest-platform/internal/telemetry"
	"knowledge-ingest-platform/services"
	"knowledge-ingest-platform/utils"
)

type searchRequest struct {
	Query         string   `json:"query" binding:"required"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// HandleSearch embeds the query text and runs the cosine-similarity search
// over all stored chunks.
func HandleSearch(cfg *config.Config, store *services.KnowledgeStore, metrics *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "query is required", nil)
			return
		}

		topK := req.TopK
		if topK <= 0 {
			topK = cfg.SearchDefaultTopK
		}
		minSimilarity := cfg.SearchMinSimilarity
		if req.MinSimilarity != nil {
			minSimilarity = *req.MinSimilarity
		}

		start := time.Now()
		results, err := store.SearchText(c.Request.Context(), req.Query, topK, minSimilarity)
		if err != nil {
			utils.RespondWithInternalError(c, "Search failed", nil)
			return
		}

		if metrics != nil {
			metrics.RecordSearch(time.Since(start).Seconds(), len(results))
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"results": results,
			"count":   len(results),
		})
	}
}
