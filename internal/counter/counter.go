// Package counter keeps the denormalized upvote and comment counters in step
// with the vote and comment rows they summarize.
//
// Every mutation commits its authoritative row and the counter change in one
// transaction. The counter is moved with an atomic adjust; if that fails the
// counter is recounted from source rows in the same transaction, and if the
// recount fails too the row is committed anyway and the counter is repaired
// right after commit. Counter trouble is never reported to the caller.
package counter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/ledger"
	"github.com/fisk-sga/campus-feedback/backend/internal/metrics"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/notify"
	"github.com/fisk-sga/campus-feedback/backend/internal/retry"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

const MaxCommentLength = 2000

const repairTimeout = 5 * time.Second

var DefaultRepairPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
}

type Maintainer struct {
	store    storage.Store
	ledger   *ledger.Ledger
	notifier *notify.Notifier
	clock    clockwork.Clock
	log      *slog.Logger
	repair   retry.Policy
	newID    func() string
}

type Option func(*Maintainer)

func WithLogger(log *slog.Logger) Option {
	return func(m *Maintainer) { m.log = log }
}

func WithRepairPolicy(p retry.Policy) Option {
	return func(m *Maintainer) { m.repair = p }
}

func New(store storage.Store, l *ledger.Ledger, n *notify.Notifier, clock clockwork.Clock, opts ...Option) *Maintainer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Maintainer{
		store:    store,
		ledger:   l,
		notifier: n,
		clock:    clock,
		log:      slog.Default(),
		repair:   DefaultRepairPolicy,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type VoteResult struct {
	Vote         models.Vote
	AlreadyVoted bool
	Count        int
}

type RevokeResult struct {
	Removed bool
	Count   int
}

type NewComment struct {
	PostID      string
	Content     string
	IsAnonymous bool
}

type CommentResult struct {
	Comment      models.Comment
	CommentCount int
	Notification *models.Notification
}

// ApplyVote casts actor's vote on target and, only when a new vote row was
// written, increments the target's counter by one.
func (m *Maintainer) ApplyVote(ctx context.Context, actor access.Actor, target models.VoteTarget) (VoteResult, error) {
	if err := actor.RequireUser(); err != nil {
		return VoteResult{}, err
	}
	if err := target.Validate(); err != nil {
		return VoteResult{}, apperr.Validation(err.Error())
	}

	ref := storage.UpvoteCounter(target)
	var (
		res       VoteResult
		pending   bool
		milestone *models.Notification
	)
	err := m.store.Transaction(ctx, func(q storage.Querier) error {
		vote, cast, err := m.ledger.Cast(ctx, q, actor.UserID, target)
		if err != nil {
			return err
		}
		if cast == ledger.AlreadyVoted {
			res.AlreadyVoted = true
			res.Count, err = readCounter(ctx, q, ref)
			return err
		}

		res.Vote = vote
		count, ok := m.adjust(ctx, q, ref, 1)
		if !ok {
			pending = true
			return nil
		}
		res.Count = count

		if target.IsPost() && notify.IsMilestone(count) {
			if post, err := q.GetPost(ctx, target.ID()); err == nil {
				milestone = m.notifier.UpvoteMilestone(ctx, q, post, count, actor.UserID)
			}
		}
		return nil
	})
	if err != nil {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "error").Inc()
		return VoteResult{}, failure(err, target.Kind().String()+" not found", "could not record vote")
	}

	if res.AlreadyVoted {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "already_voted").Inc()
	} else {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "created").Inc()
	}
	notify.Record(milestone)
	if pending {
		res.Count = m.repairAfterCommit(ctx, ref)
	}
	return res, nil
}

// RevokeVote retracts actor's vote on target and, only when a row was
// actually removed, decrements the counter by one (never below zero).
func (m *Maintainer) RevokeVote(ctx context.Context, actor access.Actor, target models.VoteTarget) (RevokeResult, error) {
	if err := actor.RequireUser(); err != nil {
		return RevokeResult{}, err
	}
	if err := target.Validate(); err != nil {
		return RevokeResult{}, apperr.Validation(err.Error())
	}

	ref := storage.UpvoteCounter(target)
	var (
		res     RevokeResult
		pending bool
	)
	err := m.store.Transaction(ctx, func(q storage.Querier) error {
		removed, err := m.ledger.Retract(ctx, q, actor.UserID, target)
		if err != nil {
			return err
		}
		if removed == 0 {
			res.Count, err = readCounter(ctx, q, ref)
			return err
		}

		res.Removed = true
		count, ok := m.adjust(ctx, q, ref, -1)
		if !ok {
			pending = true
			return nil
		}
		res.Count = count
		return nil
	})
	if err != nil {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "error").Inc()
		return RevokeResult{}, failure(err, target.Kind().String()+" not found", "could not remove vote")
	}

	if res.Removed {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "removed").Inc()
	} else {
		metrics.VotesTotal.WithLabelValues(target.Kind().String(), "noop").Inc()
	}
	if pending {
		res.Count = m.repairAfterCommit(ctx, ref)
	}
	return res, nil
}

// AddComment inserts a comment, bumps the post's comment counter and
// notifies the post's author unless the actor is the author.
func (m *Maintainer) AddComment(ctx context.Context, actor access.Actor, in NewComment) (CommentResult, error) {
	if err := actor.RequireUser(); err != nil {
		return CommentResult{}, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return CommentResult{}, apperr.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return CommentResult{}, apperr.Validation("content is too long")
	}
	if in.PostID == "" {
		return CommentResult{}, apperr.Validation("post id is required")
	}

	ref := storage.CounterRef{Kind: storage.PostComments, ID: in.PostID}
	var (
		res     CommentResult
		pending bool
	)
	err := m.store.Transaction(ctx, func(q storage.Querier) error {
		post, err := q.GetPost(ctx, in.PostID)
		if err != nil {
			return err
		}

		comment := models.Comment{
			ID:          m.newID(),
			PostID:      post.ID,
			UserID:      actor.UserID,
			Content:     content,
			IsAnonymous: in.IsAnonymous,
			CreatedAt:   m.clock.Now().UTC(),
		}
		if err := q.InsertComment(ctx, &comment); err != nil {
			return err
		}
		res.Comment = comment

		count, ok := m.adjust(ctx, q, ref, 1)
		if ok {
			res.CommentCount = count
		} else {
			pending = true
		}

		res.Notification = m.notifier.CommentAdded(ctx, q, post, comment)
		return nil
	})
	if err != nil {
		return CommentResult{}, failure(err, "post not found", "could not add comment")
	}

	metrics.CommentsCreatedTotal.Inc()
	notify.Record(res.Notification)
	if pending {
		res.CommentCount = m.repairAfterCommit(ctx, ref)
	}
	return res, nil
}

// Reconcile recomputes a single counter from its source rows and overwrites
// it.
func (m *Maintainer) Reconcile(ctx context.Context, ref storage.CounterRef) (int, error) {
	return m.store.RecountCounter(ctx, ref)
}

type PostCounts struct {
	Upvotes  int `json:"upvote_count"`
	Comments int `json:"comment_count"`
}

// ReconcilePost recomputes both counters of a post.
func (m *Maintainer) ReconcilePost(ctx context.Context, actor access.Actor, postID string) (PostCounts, error) {
	if err := actor.RequireAdmin(); err != nil {
		return PostCounts{}, err
	}

	var counts PostCounts
	err := m.store.Transaction(ctx, func(q storage.Querier) error {
		var err error
		counts.Upvotes, err = q.RecountCounter(ctx, storage.CounterRef{Kind: storage.PostUpvotes, ID: postID})
		if err != nil {
			return err
		}
		counts.Comments, err = q.RecountCounter(ctx, storage.CounterRef{Kind: storage.PostComments, ID: postID})
		return err
	})
	if err != nil {
		return PostCounts{}, failure(err, "post not found", "could not reconcile counters")
	}
	m.log.Info("counters reconciled", "post_id", postID, "upvotes", counts.Upvotes, "comments", counts.Comments)
	return counts, nil
}

// adjust moves the counter by delta inside the caller's transaction. It
// reports false when neither the atomic adjust nor the recount succeeded.
func (m *Maintainer) adjust(ctx context.Context, q storage.Querier, ref storage.CounterRef, delta int) (int, bool) {
	var value int
	err := q.Transaction(ctx, func(q storage.Querier) error {
		v, err := q.AdjustCounter(ctx, ref, delta)
		value = v
		return err
	})
	if err == nil {
		return value, true
	}

	metrics.CounterFallbacksTotal.WithLabelValues(string(ref.Kind)).Inc()
	m.log.Warn("counter adjust failed, recounting", "counter", ref.String(), "delta", delta, "error", err)

	err = q.Transaction(ctx, func(q storage.Querier) error {
		v, err := q.RecountCounter(ctx, ref)
		value = v
		return err
	})
	if err == nil {
		return value, true
	}

	m.log.Error("counter recount failed, repairing after commit", "counter", ref.String(), "error", err)
	return 0, false
}

// repairAfterCommit recounts ref outside the request's transaction. The
// request may already be cancelled, so it runs on a detached context.
func (m *Maintainer) repairAfterCommit(ctx context.Context, ref storage.CounterRef) int {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), repairTimeout)
	defer cancel()

	stopOnMissing := func(err error) retry.Action {
		if errors.Is(err, storage.ErrNotFound) {
			return retry.Stop
		}
		return retry.Retry
	}

	value, err := retry.Do(ctx, m.repair, stopOnMissing, func(ctx context.Context) (int, error) {
		return m.Reconcile(ctx, ref)
	})
	if err != nil {
		metrics.CounterRepairsTotal.WithLabelValues("failed").Inc()
		m.log.Error("counter repair failed", "counter", ref.String(), "error", err)
		return m.observedCount(ctx, ref)
	}

	metrics.CounterRepairsTotal.WithLabelValues("repaired").Inc()
	m.log.Info("counter repaired", "counter", ref.String(), "value", value)
	return value
}

// observedCount is the best count available when the stored counter could
// not be repaired: the source rows, else the stored value.
func (m *Maintainer) observedCount(ctx context.Context, ref storage.CounterRef) int {
	var (
		n   int64
		err error
	)
	switch ref.Kind {
	case storage.PostComments:
		n, err = m.store.CountComments(ctx, ref.ID)
	case storage.CommentUpvotes:
		n, err = m.store.CountVotes(ctx, models.CommentTarget(ref.ID))
	default:
		n, err = m.store.CountVotes(ctx, models.PostTarget(ref.ID))
	}
	if err == nil {
		return int(n)
	}

	stored, err := readCounter(ctx, m.store, ref)
	if err != nil {
		m.log.Warn("counter unreadable after failed repair", "counter", ref.String(), "error", err)
	}
	return stored
}

func readCounter(ctx context.Context, q storage.Querier, ref storage.CounterRef) (int, error) {
	switch ref.Kind {
	case storage.CommentUpvotes:
		c, err := q.GetComment(ctx, ref.ID)
		return c.UpvoteCount, err
	case storage.PostComments:
		p, err := q.GetPost(ctx, ref.ID)
		return p.CommentCount, err
	default:
		p, err := q.GetPost(ctx, ref.ID)
		return p.UpvoteCount, err
	}
}

// failure maps a failed transaction onto the error the caller sees. Nothing
// was committed, so storage failures are retryable.
func failure(err error, notFound, unavailable string) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, models.ErrInvalidTarget):
		return apperr.Validation(err.Error())
	default:
		return apperr.Unavailable(unavailable, err)
	}
}
