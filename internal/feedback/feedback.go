// Package feedback is the post, comment-listing, status and notification-feed
// service that sits between the HTTP handlers and storage.
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/ledger"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/notify"
	"github.com/fisk-sga/campus-feedback/backend/internal/ranking"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

const (
	MaxTitleLength   = 200
	MaxContentLength = 5000
	MaxTags          = 10

	DefaultListLimit = 100
	MaxListLimit     = 500

	DefaultNotificationLimit = 50
)

type Service struct {
	store    storage.Store
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	clock    clockwork.Clock
	log      *slog.Logger
	newID    func() string
}

func New(store storage.Store, l *ledger.Ledger, n *notify.Notifier, clock clockwork.Clock, log *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, ledger: l, notifier: n, clock: clock, log: log, newID: uuid.NewString}
}

// PostView is a post as a particular viewer sees it.
type PostView struct {
	models.Post
	AuthorEmail *string `json:"author_email,omitempty"`
	HasUpvoted  bool    `json:"has_upvoted"`
}

type CommentView struct {
	models.Comment
	AuthorEmail *string `json:"author_email,omitempty"`
	HasUpvoted  bool    `json:"has_upvoted"`
}

type NewPost struct {
	Title       string
	Content     string
	ImageURL    *string
	Tags        []string
	IsAnonymous bool
}

func (s *Service) CreatePost(ctx context.Context, actor access.Actor, in NewPost) (PostView, error) {
	if err := actor.RequireUser(); err != nil {
		return PostView{}, err
	}

	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	tags := models.NormalizeTags(in.Tags)
	switch {
	case title == "":
		return PostView{}, apperr.Validation("title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return PostView{}, apperr.Validation("title is too long")
	case content == "":
		return PostView{}, apperr.Validation("content is required")
	case utf8.RuneCountInString(content) > MaxContentLength:
		return PostView{}, apperr.Validation("content is too long")
	case len(tags) == 0:
		return PostView{}, apperr.Validation("at least one tag is required")
	case len(tags) > MaxTags:
		return PostView{}, apperr.Validation("too many tags")
	}

	var image *string
	if in.ImageURL != nil {
		if u := strings.TrimSpace(*in.ImageURL); u != "" {
			image = &u
		}
	}

	post := models.Post{
		ID:          s.newID(),
		UserID:      actor.UserID,
		Title:       title,
		Content:     content,
		ImageURL:    image,
		Tags:        tags,
		IsAnonymous: in.IsAnonymous,
		Status:      models.StatusPending,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.store.InsertPost(ctx, &post); err != nil {
		return PostView{}, storeError(err, "user not found", "could not create post")
	}

	s.log.Info("post created", "post_id", post.ID, "user_id", actor.UserID, "anonymous", post.IsAnonymous)

	views, err := s.enrichPosts(ctx, actor, []models.Post{post})
	if err != nil {
		return PostView{}, err
	}
	return views[0], nil
}

type ListOptions struct {
	Tags   []string
	Status string
	Sort   string
	Limit  int
}

// ListPosts filters in storage, ranks against the current time, applies the
// limit and then enriches the surviving posts for viewer.
func (s *Service) ListPosts(ctx context.Context, viewer access.Actor, opts ListOptions) ([]PostView, error) {
	mode, err := ranking.ParseMode(opts.Sort)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}

	filter := storage.PostFilter{Tags: models.NormalizeTags(opts.Tags)}
	if opts.Status != "" {
		st, err := models.ParseStatus(opts.Status)
		if err != nil {
			return nil, apperr.Validation(err.Error())
		}
		filter.Status = &st
	}

	limit := opts.Limit
	switch {
	case limit < 0:
		return nil, apperr.Validation("limit must be positive")
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	posts, err := s.store.ListPosts(ctx, filter)
	if err != nil {
		return nil, apperr.Unavailable("could not load posts", err)
	}

	posts = ranking.Rank(posts, mode, s.clock.Now())
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return s.enrichPosts(ctx, viewer, posts)
}

func (s *Service) GetPost(ctx context.Context, viewer access.Actor, id string) (PostView, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return PostView{}, storeError(err, "post not found", "could not load post")
	}
	views, err := s.enrichPosts(ctx, viewer, []models.Post{post})
	if err != nil {
		return PostView{}, err
	}
	return views[0], nil
}

// ListUserPosts returns the actor's own posts, newest first.
func (s *Service) ListUserPosts(ctx context.Context, actor access.Actor) ([]PostView, error) {
	if err := actor.RequireUser(); err != nil {
		return nil, err
	}
	posts, err := s.store.ListPosts(ctx, storage.PostFilter{AuthorID: actor.UserID})
	if err != nil {
		return nil, apperr.Unavailable("could not load posts", err)
	}
	return s.enrichPosts(ctx, actor, posts)
}

type StatusChange struct {
	Post         PostView
	Notification *models.Notification
}

// ChangeStatus sets a post's status and optional SGA response and notifies
// the author in the same transaction.
func (s *Service) ChangeStatus(ctx context.Context, actor access.Actor, postID, status string, response *string) (StatusChange, error) {
	if err := actor.RequireAdmin(); err != nil {
		return StatusChange{}, err
	}
	st, err := models.ParseStatus(status)
	if err != nil {
		return StatusChange{}, apperr.Validation(err.Error())
	}
	if response != nil {
		r := strings.TrimSpace(*response)
		if utf8.RuneCountInString(r) > MaxContentLength {
			return StatusChange{}, apperr.Validation("response is too long")
		}
		response = &r
	}

	var (
		post  models.Post
		notif *models.Notification
	)
	err = s.store.Transaction(ctx, func(q storage.Querier) error {
		var err error
		post, err = q.UpdatePostStatus(ctx, postID, st, response)
		if err != nil {
			return err
		}
		notif = s.notifier.StatusChanged(ctx, q, post, actor.UserID)
		return nil
	})
	if err != nil {
		return StatusChange{}, storeError(err, "post not found", "could not update status")
	}

	notify.Record(notif)
	s.log.Info("post status changed", "post_id", postID, "status", st, "admin_id", actor.UserID)

	views, err := s.enrichPosts(ctx, actor, []models.Post{post})
	if err != nil {
		return StatusChange{}, err
	}
	return StatusChange{Post: views[0], Notification: notif}, nil
}

// ListComments returns a post's comments oldest first.
func (s *Service) ListComments(ctx context.Context, viewer access.Actor, postID string) ([]CommentView, error) {
	if _, err := s.store.GetPost(ctx, postID); err != nil {
		return nil, storeError(err, "post not found", "could not load comments")
	}
	comments, err := s.store.ListComments(ctx, postID)
	if err != nil {
		return nil, apperr.Unavailable("could not load comments", err)
	}
	return s.enrichComments(ctx, viewer, comments)
}

func (s *Service) ListNotifications(ctx context.Context, actor access.Actor, limit int) ([]models.Notification, int64, error) {
	if err := actor.RequireUser(); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = DefaultNotificationLimit
	}
	list, err := s.store.ListNotifications(ctx, actor.UserID, limit)
	if err != nil {
		return nil, 0, apperr.Unavailable("could not load notifications", err)
	}
	unread, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, 0, apperr.Unavailable("could not load notifications", err)
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, unread, nil
}

// MarkRead flips one of the actor's own notifications to read.
func (s *Service) MarkRead(ctx context.Context, actor access.Actor, id string) error {
	if err := actor.RequireUser(); err != nil {
		return err
	}
	if err := s.store.MarkNotificationRead(ctx, actor.UserID, id); err != nil {
		return storeError(err, "notification not found", "could not update notification")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor access.Actor) (int64, error) {
	if err := actor.RequireUser(); err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllNotificationsRead(ctx, actor.UserID)
	if err != nil {
		return 0, apperr.Unavailable("could not update notifications", err)
	}
	return n, nil
}

func (s *Service) UnreadCount(ctx context.Context, actor access.Actor) (int64, error) {
	if err := actor.RequireUser(); err != nil {
		return 0, err
	}
	n, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, apperr.Unavailable("could not count notifications", err)
	}
	return n, nil
}

func storeError(err error, notFound, unavailable string) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(notFound)
	default:
		return apperr.Unavailable(unavailable, err)
	}
}
