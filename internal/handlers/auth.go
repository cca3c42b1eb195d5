package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/services"
)

type AuthHandler struct {
	log         *logger.Logger
	authService services.AuthService
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		log:         log.With("handler", "AuthHandler"),
		authService: authService,
	}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var in services.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, err := h.authService.Register(c.Request.Context(), in)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondCreated(c, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pair, err := h.authService.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var in refreshRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pair, err := h.authService.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		RespondErr(c, err)
		return
	}
	RespondOK(c, pair)
}
