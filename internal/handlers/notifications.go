package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/feedback"
	"github.com/fisk-sga/campus-feedback/backend/internal/middleware"
)

type NotificationHandler struct {
	feedback *feedback.Service
}

func NewNotificationHandler(fb *feedback.Service) *NotificationHandler {
	return &NotificationHandler{feedback: fb}
}

func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	list, unread, err := h.feedback.ListNotifications(c.Request.Context(), middleware.Actor(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"unread_count":  unread,
	})
}

// GetUnreadCount backs the notification badge without loading the feed.
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	n, err := h.feedback.UnreadCount(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.feedback.MarkRead(c.Request.Context(), middleware.Actor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.feedback.MarkAllRead(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": n})
}
