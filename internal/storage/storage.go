package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateVote = errors.New("duplicate vote")
	ErrDuplicateKey  = errors.New("duplicate key")
)

// CounterKind names one denormalized counter column.
type CounterKind string

const (
	PostUpvotes    CounterKind = "post_upvotes"
	PostComments   CounterKind = "post_comments"
	CommentUpvotes CounterKind = "comment_upvotes"
)

// CounterRef identifies a single counter cell: the column and the owning row.
type CounterRef struct {
	Kind CounterKind
	ID   string
}

// UpvoteCounter returns the counter a vote on target feeds.
func UpvoteCounter(target models.VoteTarget) CounterRef {
	if target.IsComment() {
		return CounterRef{Kind: CommentUpvotes, ID: target.ID()}
	}
	return CounterRef{Kind: PostUpvotes, ID: target.ID()}
}

func (r CounterRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

type PostFilter struct {
	// Tags must all be present on a post.
	Tags     []string
	Status   *models.Status
	AuthorID string
}

type PostStore interface {
	InsertPost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ListPosts returns matching posts newest first.
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	UpdatePostStatus(ctx context.Context, id string, status models.Status, response *string) (models.Post, error)
}

type CommentStore interface {
	InsertComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (models.Comment, error)
	// ListComments returns a post's comments oldest first.
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	CountComments(ctx context.Context, postID string) (int64, error)
}

type VoteStore interface {
	// InsertVote fails with ErrDuplicateVote when the user already voted on
	// the target and ErrNotFound when the target does not exist.
	InsertVote(ctx context.Context, vote *models.Vote) error
	DeleteVote(ctx context.Context, userID string, target models.VoteTarget) (int64, error)
	// VotedTargets reports which of ids (all of the given kind) userID voted on.
	VotedTargets(ctx context.Context, userID string, kind models.TargetKind, ids []string) (map[string]bool, error)
	CountVotes(ctx context.Context, target models.VoteTarget) (int64, error)
}

// CounterStore is the only write path to upvote_count and comment_count.
type CounterStore interface {
	// AdjustCounter adds delta atomically, flooring at zero, and returns the
	// new value.
	AdjustCounter(ctx context.Context, ref CounterRef, delta int) (int, error)
	// RecountCounter overwrites the counter with the count of its source rows
	// and returns the new value.
	RecountCounter(ctx context.Context, ref CounterRef) (int, error)
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns a user's notifications newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

type UserStore interface {
	InsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
	SetAdmin(ctx context.Context, id string, admin bool) error
}

type MagicLinkStore interface {
	InsertMagicLink(ctx context.Context, token *models.MagicLinkToken) error
	GetMagicLink(ctx context.Context, id string) (models.MagicLinkToken, error)
	DeleteMagicLink(ctx context.Context, id string) (int64, error)
	DeleteExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error)
}

// Querier is the full set of storage operations, usable either on the root
// store or inside a transaction.
type Querier interface {
	PostStore
	CommentStore
	VoteStore
	CounterStore
	NotificationStore
	UserStore
	MagicLinkStore

	// Transaction runs fn atomically. Called on a Querier that is already
	// inside a transaction it opens a savepoint, so a failure in fn rolls
	// back only fn's work.
	Transaction(ctx context.Context, fn func(q Querier) error) error
}

// Store is the root Querier: Transaction called on it opens a top-level
// transaction.
type Store interface {
	Querier
}
