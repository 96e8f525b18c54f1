package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/auth"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

type AuthHandler struct {
	sessions *auth.Service
}

func NewAuthHandler(sessions *auth.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// RequestMagicLink emails a single-use sign-in link.
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}

	if err := h.sessions.RequestLink(c.Request.Context(), input.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Check your email for a sign-in link"})
}

// Verify exchanges a magic-link token for a JWT
func (h *AuthHandler) Verify(c *gin.Context) {
	var input struct {
		Token string `json:"token" binding:"required"`
	}
	if !bindJSON(c, &input) {
		return
	}

	session, err := h.sessions.Verify(c.Request.Context(), input.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, err := h.sessions.Me(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
