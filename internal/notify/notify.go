// Package notify creates the notifications that status changes, comments
// and upvote milestones owe a post's author. Creation is best effort: it runs
// in a savepoint of the caller's transaction and a failure is logged, never
// returned. The caller reports committed notifications with Record.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/metrics"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

// Milestones are the post upvote counts that earn the author a notification.
var Milestones = []int{10, 25, 50, 100, 250, 500, 1000}

func IsMilestone(count int) bool {
	return slices.Contains(Milestones, count)
}

type Notifier struct {
	clock clockwork.Clock
	log   *slog.Logger
	newID func() string
}

func New(clock clockwork.Clock, log *slog.Logger) *Notifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{clock: clock, log: log, newID: uuid.NewString}
}

func StatusUpdate(post models.Post) (title, message string) {
	return "Status Updated", "SGA updated your post status to: " + post.Status.Label()
}

func NewComment(post models.Post) (title, message string) {
	return "New Comment", fmt.Sprintf(`Someone commented on your post: "%s"`, post.Title)
}

func Milestone(post models.Post, count int) (title, message string) {
	return "Milestone Reached", fmt.Sprintf(`Your post "%s" reached %d upvotes`, post.Title, count)
}

// StatusChanged notifies the author that post (already carrying its new
// status) was updated by actorID.
func (n *Notifier) StatusChanged(ctx context.Context, q storage.Querier, post models.Post, actorID string) *models.Notification {
	title, message := StatusUpdate(post)
	return n.create(ctx, q, actorID, models.Notification{
		UserID:  post.UserID,
		Kind:    models.KindStatusUpdate,
		PostID:  post.ID,
		Title:   title,
		Message: message,
	})
}

func (n *Notifier) CommentAdded(ctx context.Context, q storage.Querier, post models.Post, comment models.Comment) *models.Notification {
	title, message := NewComment(post)
	commentID := comment.ID
	return n.create(ctx, q, comment.UserID, models.Notification{
		UserID:    post.UserID,
		Kind:      models.KindComment,
		PostID:    post.ID,
		CommentID: &commentID,
		Title:     title,
		Message:   message,
	})
}

// UpvoteMilestone notifies the author when count is a milestone.
func (n *Notifier) UpvoteMilestone(ctx context.Context, q storage.Querier, post models.Post, count int, actorID string) *models.Notification {
	if !IsMilestone(count) {
		return nil
	}
	title, message := Milestone(post, count)
	return n.create(ctx, q, actorID, models.Notification{
		UserID:  post.UserID,
		Kind:    models.KindMilestone,
		PostID:  post.ID,
		Title:   title,
		Message: message,
	})
}

func (n *Notifier) create(ctx context.Context, q storage.Querier, actorID string, notif models.Notification) *models.Notification {
	if notif.UserID == "" || notif.UserID == actorID {
		return nil
	}
	notif.ID = n.newID()
	notif.CreatedAt = n.clock.Now().UTC()

	err := q.Transaction(ctx, func(q storage.Querier) error {
		return q.InsertNotification(ctx, &notif)
	})
	if err != nil {
		n.log.Warn("notification not created",
			"kind", notif.Kind,
			"post_id", notif.PostID,
			"recipient", notif.UserID,
			"error", err,
		)
		return nil
	}
	return &notif
}

// Record counts notifications once the transaction that created them has
// committed. Nil entries are skipped.
func Record(notifs ...*models.Notification) {
	for _, n := range notifs {
		if n != nil {
			metrics.NotificationsCreatedTotal.WithLabelValues(string(n.Kind)).Inc()
		}
	}
}
