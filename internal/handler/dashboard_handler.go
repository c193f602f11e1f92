package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nidocare/nido-api/internal/service"
	"github.com/nidocare/nido-api/pkg/response"
)

type dashboardService interface {
	Today(ctx context.Context) (*service.DashboardResponse, bool, error)
}

// DashboardHandler exposes the director dashboard endpoint.
type DashboardHandler struct {
	dashboard dashboardService
	metrics   *service.MetricsService
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard dashboardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, metrics: metrics}
}

// Today godoc
// @Summary Director dashboard for today
// @Description Presence counts and roster, cached for a short window
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Today(c *gin.Context) {
	start := time.Now()
	payload, cacheHit, err := h.dashboard.Today(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCacheOperation(cacheHit)

	meta := map[string]interface{}{
		"cache_hit":          cacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
	response.JSON(c, http.StatusOK, payload, nil, meta)
}
