package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/counter"
	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

type PostHandler struct {
	feedback *feedback.Service
	counters *counter.Maintainer
}

func NewPostHandler(fb *feedback.Service, counters *counter.Maintainer) *PostHandler {
	return &PostHandler{feedback: fb, counters: counters}
}

// queryTags accepts both ?tags=a,b and repeated ?tags=a&tags=b.
func queryTags(c *gin.Context) []string {
	var tags []string
	for _, raw := range c.QueryArray("tags") {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func queryLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation("limit must be a positive integer")
	}
	return n, nil
}

// GetPosts returns posts ranked by ?sortBy (trending, recent, upvotes)
func (h *PostHandler) GetPosts(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}

	posts, err := h.feedback.ListPosts(c.Request.Context(), middleware.Actor(c), feedback.ListOptions{
		Tags:   queryTags(c),
		Status: c.Query("status"),
		Sort:   c.Query("sortBy"),
		Limit:  limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if posts == nil {
		posts = []feedback.PostView{}
	}
	c.JSON(http.StatusOK, posts)
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.feedback.GetPost(c.Request.Context(), middleware.Actor(c), c.Param("postId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	var input struct {
		Title       string   `json:"title" binding:"required"`
		Content     string   `json:"content" binding:"required"`
		ImageURL    *string  `json:"image_url"`
		Tags        []string `json:"tags"`
		IsAnonymous bool     `json:"is_anonymous"`
	}
	if !bindJSON(c, &input) {
		return
	}

	post, err := h.feedback.CreatePost(c.Request.Context(), middleware.Actor(c), feedback.NewPost{
		Title:       input.Title,
		Content:     input.Content,
		ImageURL:    input.ImageURL,
		Tags:        input.Tags,
		IsAnonymous: input.IsAnonymous,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, post)
}

// UpdateStatus changes a post's status (ADMIN)
func (h *PostHandler) UpdateStatus(c *gin.Context) {
	var input struct {
		Status      string  `json:"status" binding:"required"`
		SGAResponse *string `json:"sga_response"`
	}
	if !bindJSON(c, &input) {
		return
	}

	change, err := h.feedback.ChangeStatus(c.Request.Context(), middleware.Actor(c), c.Param("postId"), input.Status, input.SGAResponse)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post":              change.Post,
		"notification_sent": change.Notification != nil,
	})
}

// Reconcile recomputes a post's counters from source rows (ADMIN)
func (h *PostHandler) Reconcile(c *gin.Context) {
	counts, err := h.counters.ReconcilePost(c.Request.Context(), middleware.Actor(c), c.Param("postId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, counts)
}
