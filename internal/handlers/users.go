package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

type UserHandler struct {
	feedback *feedback.Service
}

func NewUserHandler(fb *feedback.Service) *UserHandler {
	return &UserHandler{feedback: fb}
}

// GetMyPosts returns the current user's posts, anonymous ones included
func (h *UserHandler) GetMyPosts(c *gin.Context) {
	posts, err := h.feedback.ListUserPosts(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if posts == nil {
		posts = []feedback.PostView{}
	}
	c.JSON(http.StatusOK, posts)
}
