package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/auth"
	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

// Handler combines all handler types
type Handler struct {
	Auth         *AuthHandler
	Post         *PostHandler
	Comment      *CommentHandler
	Vote         *VoteHandler
	User         *UserHandler
	Notification *NotificationHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(fb *feedback.Service, counters *counter.Maintainer, sessions *auth.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(sessions),
		Post:         NewPostHandler(fb, counters),
		Comment:      NewCommentHandler(fb, counters),
		Vote:         NewVoteHandler(counters),
		User:         NewUserHandler(fb),
		Notification: NewNotificationHandler(fb),
	}
}

func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid request body"))
		return false
	}
	return true
}
