package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/requestdata"
	"github.com/edushare/edushare-backend/internal/services"
)

type ModerationHandler struct {
	log               *logger.Logger
	moderationService services.ModerationService
}

func NewModerationHandler(log *logger.Logger, moderationService services.ModerationService) *ModerationHandler {
	return &ModerationHandler{
		log:               log.With("handler", "ModerationHandler"),
		moderationService: moderationService,
	}
}

type moderationRequest struct {
	Notes string `json:"notes"`
}

// POST /api/admin/resources/:id/approve
func (h *ModerationHandler) Approve(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	var in moderationRequest
	_ = c.ShouldBindJSON(&in) // notes are optional on approve
	res, err := h.moderationService.Approve(c.Request.Context(), id, rd.UserID, in.Notes)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, res)
}

// POST /api/admin/resources/:id/reject
func (h *ModerationHandler) Reject(c *gin.Context) {
	rd := requestdata.Get(c.Request.Context())
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	var in moderationRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.moderationService.Reject(c.Request.Context(), id, rd.UserID, in.Notes)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, res)
}

// GET /api/admin/moderation/pending
// FIFO queue: oldest pending uploads come first.
func (h *ModerationHandler) Pending(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, total, err := h.moderationService.PendingQueue(c.Request.Context(), page, limit)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondList(c, rows, total, page, limit)
}

// GET /api/admin/resources/:id/history
func (h *ModerationHandler) History(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_resource_id", err)
		return
	}
	rows, err := h.moderationService.History(c.Request.Context(), id)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, rows)
}

// GET /api/admin/moderation/activity?from=RFC3339&to=RFC3339
func (h *ModerationHandler) Activity(c *gin.Context) {
	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_from", err)
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_to", err)
			return
		}
		to = &t
	}
	rows, err := h.moderationService.Activity(c.Request.Context(), from, to)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, rows)
}
