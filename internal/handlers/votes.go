package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
)

type VoteHandler struct {
	counters *counter.Maintainer
}

func NewVoteHandler(counters *counter.Maintainer) *VoteHandler {
	return &VoteHandler{counters: counters}
}

func (h *VoteHandler) vote(c *gin.Context, target models.VoteTarget) {
	res, err := h.counters.ApplyVote(c.Request.Context(), middleware.Actor(c), target)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if res.AlreadyVoted {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"already_voted": res.AlreadyVoted,
		"upvote_count":  res.Count,
	})
}

func (h *VoteHandler) unvote(c *gin.Context, target models.VoteTarget) {
	res, err := h.counters.RevokeVote(c.Request.Context(), middleware.Actor(c), target)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed":      res.Removed,
		"upvote_count": res.Count,
	})
}

// VotePost upvotes a post. Voting twice is reported, not rejected.
func (h *VoteHandler) VotePost(c *gin.Context) {
	h.vote(c, models.PostTarget(c.Param("postId")))
}

func (h *VoteHandler) UnvotePost(c *gin.Context) {
	h.unvote(c, models.PostTarget(c.Param("postId")))
}

func (h *VoteHandler) VoteComment(c *gin.Context) {
	h.vote(c, models.CommentTarget(c.Param("commentId")))
}

func (h *VoteHandler) UnvoteComment(c *gin.Context) {
	h.unvote(c, models.CommentTarget(c.Param("commentId")))
}
