package http

import (
	stderrors "errors"
	"net/http"
	"strings"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
	"duocall/internal/core/services"
	"duocall/pkg/errors"
	"duocall/pkg/validation"

	"github.com/gin-gonic/gin"
)

var _ ports.AuthHandler = (*AuthHandler)(nil)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router gin.IRoutes) {
	router.POST("/auth", h.IssueToken)
}

type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	RoomID   string `json:"roomId"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// IssueToken exchanges a username, password and room for a signaling token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.InvalidInput("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.Username == "" || req.Password == "" || req.RoomID == "" {
		c.Error(errors.InvalidInput("missing fields"))
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		c.Error(errors.InvalidInput(err.Error()))
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.Error(errors.InvalidInput(err.Error()))
		return
	}
	if err := validation.ValidateRoomID(req.RoomID); err != nil {
		c.Error(errors.InvalidInput(err.Error()))
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password, domain.RoomID(req.RoomID))
	if err != nil {
		if stderrors.Is(err, domain.ErrInvalidCredential) {
			c.Error(errors.Unauthorized("invalid credentials"))
			return
		}
		c.Error(errors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}
