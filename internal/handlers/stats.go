package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/services"
)

type StatsHandler struct {
	log          *logger.Logger
	statsService services.StatsService
}

func NewStatsHandler(log *logger.Logger, statsService services.StatsService) *StatsHandler {
	return &StatsHandler{
		log:          log.With("handler", "StatsHandler"),
		statsService: statsService,
	}
}

// GET /api/schools/:id/stats?fresh=1
// fresh recomputes from the source tables and repairs counter drift.
func (h *StatsHandler) SchoolStats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_school_id", err)
		return
	}
	fresh, _ := strconv.ParseBool(c.Query("fresh"))
	stats, err := h.statsService.SchoolStats(c.Request.Context(), id, fresh)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, stats)
}

// GET /api/stats
func (h *StatsHandler) PlatformStats(c *gin.Context) {
	stats, err := h.statsService.PlatformStats(c.Request.Context())
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, stats)
}
