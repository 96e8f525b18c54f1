package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

type CommentHandler struct {
	feedback *feedback.Service
	counters *counter.Maintainer
}

func NewCommentHandler(fb *feedback.Service, counters *counter.Maintainer) *CommentHandler {
	return &CommentHandler{feedback: fb, counters: counters}
}

// GetComments returns a post's comments, oldest first
func (h *CommentHandler) GetComments(c *gin.Context) {
	comments, err := h.feedback.ListComments(c.Request.Context(), middleware.Actor(c), c.Param("postId"))
	if err != nil {
		respondError(c, err)
		return
	}

	if comments == nil {
		comments = []feedback.CommentView{}
	}
	c.JSON(http.StatusOK, comments)
}

// CreateComment creates a new comment on a post
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var input struct {
		Content     string `json:"content" binding:"required"`
		IsAnonymous bool   `json:"is_anonymous"`
	}
	if !bindJSON(c, &input) {
		return
	}

	actor := middleware.Actor(c)
	res, err := h.counters.AddComment(c.Request.Context(), actor, counter.NewComment{
		PostID:      c.Param("postId"),
		Content:     input.Content,
		IsAnonymous: input.IsAnonymous,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	view := feedback.CommentView{Comment: res.Comment}
	if !res.Comment.IsAnonymous {
		email := actor.Email
		view.AuthorEmail = &email
	}
	c.JSON(http.StatusCreated, gin.H{
		"comment":       view,
		"comment_count": res.CommentCount,
	})
}
