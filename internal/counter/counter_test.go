package counter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/ledger"
	"github.com/fisk-sga/campus-feedback/backend/internal/metrics"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/notify"
	"github.com/fisk-sga/campus-feedback/backend/internal/retry"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage/memory"
)

var (
	author  = access.Actor{UserID: "author"}
	student = access.Actor{UserID: "student"}
	admin   = access.Actor{UserID: "admin", IsAdmin: true}
)

type fixture struct {
	m     *Maintainer
	store *memory.Store
	post  models.Post
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	for _, id := range []string{"author", "student", "admin"} {
		require.NoError(t, s.InsertUser(ctx, &models.User{ID: id, Email: id + "@my.fisk.edu"}))
	}
	post := models.Post{ID: "p1", UserID: author.UserID, Title: "Longer library hours", Content: "Please", Tags: []string{"academics"}}
	require.NoError(t, s.InsertPost(ctx, &post))

	clock := clockwork.NewFakeClockAt(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	m := New(s, ledger.New(clock), notify.New(clock, nil), clock,
		WithRepairPolicy(retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
	)
	return fixture{m: m, store: s, post: post}
}

func (f fixture) upvotes(t *testing.T) int {
	t.Helper()
	p, err := f.store.GetPost(context.Background(), f.post.ID)
	require.NoError(t, err)
	return p.UpvoteCount
}

func (f fixture) voteRows(t *testing.T) int64 {
	t.Helper()
	n, err := f.store.CountVotes(context.Background(), models.PostTarget(f.post.ID))
	require.NoError(t, err)
	return n
}

func TestApplyVote(t *testing.T) {
	ctx := context.Background()

	t.Run("cast twice counts once", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)

		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.False(t, res.AlreadyVoted)
		assert.Equal(t, 1, res.Count)

		res, err = f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.True(t, res.AlreadyVoted)
		assert.Equal(t, 1, res.Count)

		assert.Equal(t, 1, f.upvotes(t))
		assert.EqualValues(t, 1, f.voteRows(t))
	})

	t.Run("cast retract cast", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)

		_, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		_, err = f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 1, f.upvotes(t))
		assert.EqualValues(t, 1, f.voteRows(t))
	})

	t.Run("comment target", func(t *testing.T) {
		f := setup(t)
		c, err := f.m.AddComment(ctx, author, NewComment{PostID: f.post.ID, Content: "agreed"})
		require.NoError(t, err)

		res, err := f.m.ApplyVote(ctx, student, models.CommentTarget(c.Comment.ID))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)

		got, err := f.store.GetComment(ctx, c.Comment.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.UpvoteCount)
		assert.Equal(t, 0, f.upvotes(t))
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		f := setup(t)
		_, err := f.m.ApplyVote(ctx, access.Anonymous, models.PostTarget(f.post.ID))
		assert.True(t, apperr.Is(err, apperr.TypeUnauthorized))
	})

	t.Run("invalid target rejected before storage", func(t *testing.T) {
		f := setup(t)
		_, err := f.m.ApplyVote(ctx, student, models.VoteTarget{})
		assert.True(t, apperr.Is(err, apperr.TypeValidation))
		assert.Zero(t, f.store.Calls("InsertVote"))
	})

	t.Run("missing post", func(t *testing.T) {
		f := setup(t)
		_, err := f.m.ApplyVote(ctx, student, models.PostTarget("nope"))
		assert.True(t, apperr.Is(err, apperr.TypeNotFound))
	})

	t.Run("insert failure surfaces and commits nothing", func(t *testing.T) {
		f := setup(t)
		f.store.InjectFault("InsertVote", errors.New("connection reset"), 1)

		_, err := f.m.ApplyVote(ctx, student, models.PostTarget(f.post.ID))
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.TypeUnavailable))
		assert.Zero(t, f.voteRows(t))
		assert.Zero(t, f.upvotes(t))
	})
}

func TestConcurrentApplyVote(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	target := models.PostTarget(f.post.ID)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.m.ApplyVote(ctx, student, target)
			assert.NoError(t, err)
			if !res.AlreadyVoted {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.EqualValues(t, 1, f.voteRows(t))
	assert.Equal(t, 1, f.upvotes(t))
}

func TestRevokeVote(t *testing.T) {
	ctx := context.Background()

	t.Run("retract twice equals once", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		_, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)

		res, err := f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		assert.True(t, res.Removed)
		assert.Equal(t, 0, res.Count)

		res, err = f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		assert.False(t, res.Removed)
		assert.Equal(t, 0, res.Count)
		assert.Equal(t, 2, f.store.Calls("AdjustCounter"), "the no-op retract must not touch the counter")
	})

	t.Run("no-op retract leaves other votes counted", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		_, err := f.m.ApplyVote(ctx, author, target)
		require.NoError(t, err)

		res, err := f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		assert.False(t, res.Removed)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 1, f.upvotes(t))
	})

	t.Run("decrement floors at zero", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		// A vote row whose increment never landed.
		require.NoError(t, f.store.InsertVote(ctx, &models.Vote{ID: "v1", UserID: student.UserID, Target: target}))

		res, err := f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		assert.True(t, res.Removed)
		assert.Equal(t, 0, res.Count)
		assert.Equal(t, 0, f.upvotes(t))
	})
}

func TestCounterFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("recount in transaction when adjust fails", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		_, err := f.m.ApplyVote(ctx, author, target)
		require.NoError(t, err)

		before := testutil.ToFloat64(metrics.CounterFallbacksTotal.WithLabelValues(string(storage.PostUpvotes)))
		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 1)

		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
		assert.Equal(t, 2, f.upvotes(t))
		assert.Equal(t, 1, f.store.Calls("RecountCounter"))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.CounterFallbacksTotal.WithLabelValues(string(storage.PostUpvotes))))
	})

	t.Run("fallback reaches same state as fast path on retract", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		_, err := f.m.ApplyVote(ctx, author, target)
		require.NoError(t, err)
		_, err = f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)

		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 1)
		res, err := f.m.RevokeVote(ctx, student, target)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 1, f.upvotes(t))
	})

	t.Run("repair after commit when recount also fails", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 1)
		f.store.InjectFault("RecountCounter", errors.New("statement timeout"), 1)

		before := testutil.ToFloat64(metrics.CounterRepairsTotal.WithLabelValues("repaired"))
		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.False(t, res.AlreadyVoted)
		assert.Equal(t, 1, res.Count)
		assert.EqualValues(t, 1, f.voteRows(t))
		assert.Equal(t, 1, f.upvotes(t))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.CounterRepairsTotal.WithLabelValues("repaired")))
	})

	t.Run("failed repair is not surfaced", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 0)
		f.store.InjectFault("RecountCounter", errors.New("statement timeout"), 0)

		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.False(t, res.AlreadyVoted)
		assert.EqualValues(t, 1, f.voteRows(t), "vote row is committed")
		assert.Equal(t, 1, res.Count, "count comes from the vote rows")
		assert.Equal(t, 0, f.upvotes(t), "stored counter is still stale")

		f.store.ClearFaults()
		count, err := f.m.Reconcile(ctx, storage.UpvoteCounter(target))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, 1, f.upvotes(t))
	})

	t.Run("failed repair reports the stored count when rows are unreadable", func(t *testing.T) {
		f := setup(t)
		target := models.PostTarget(f.post.ID)
		for _, a := range []access.Actor{author, admin} {
			_, err := f.m.ApplyVote(ctx, a, target)
			require.NoError(t, err)
		}

		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 0)
		f.store.InjectFault("RecountCounter", errors.New("statement timeout"), 0)
		f.store.InjectFault("CountVotes", errors.New("statement timeout"), 0)

		res, err := f.m.ApplyVote(ctx, student, target)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Count)
	})
}

func TestNotificationMetricCountsCommittedOnly(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	comments := metrics.NotificationsCreatedTotal.WithLabelValues(string(models.KindComment))
	before := testutil.ToFloat64(comments)

	_, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "agreed"})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(comments))

	_, err = f.m.AddComment(ctx, author, NewComment{PostID: f.post.ID, Content: "thanks"})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(comments), "no self-notification")
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()

	t.Run("count five becomes six with one notification", func(t *testing.T) {
		f := setup(t)
		for i := range 5 {
			_, err := f.m.AddComment(ctx, author, NewComment{PostID: f.post.ID, Content: fmt.Sprintf("note %d", i)})
			require.NoError(t, err)
		}
		p, err := f.store.GetPost(ctx, f.post.ID)
		require.NoError(t, err)
		require.Equal(t, 5, p.CommentCount)

		res, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "  +1  ", IsAnonymous: true})
		require.NoError(t, err)
		assert.Equal(t, 6, res.CommentCount)
		assert.Equal(t, "+1", res.Comment.Content)
		assert.True(t, res.Comment.IsAnonymous)
		require.NotNil(t, res.Notification)

		comments, err := f.store.ListComments(ctx, f.post.ID)
		require.NoError(t, err)
		assert.Len(t, comments, 6)

		list, err := f.store.ListNotifications(ctx, author.UserID, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.KindComment, list[0].Kind)
		assert.Equal(t, `Someone commented on your post: "Longer library hours"`, list[0].Message)
	})

	t.Run("author comment does not notify", func(t *testing.T) {
		f := setup(t)
		res, err := f.m.AddComment(ctx, author, NewComment{PostID: f.post.ID, Content: "update"})
		require.NoError(t, err)
		assert.Nil(t, res.Notification)
		assert.Equal(t, 1, res.CommentCount)
	})

	t.Run("notification failure does not block comment", func(t *testing.T) {
		f := setup(t)
		f.store.InjectFault("InsertNotification", errors.New("boom"), 1)
		res, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "hi"})
		require.NoError(t, err)
		assert.Nil(t, res.Notification)
		assert.Equal(t, 1, res.CommentCount)
	})

	t.Run("counter fallback", func(t *testing.T) {
		f := setup(t)
		f.store.InjectFault("AdjustCounter", errors.New("rpc unavailable"), 1)
		res, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "hi"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.CommentCount)
	})

	t.Run("validation", func(t *testing.T) {
		f := setup(t)
		_, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "   "})
		assert.True(t, apperr.Is(err, apperr.TypeValidation))

		_, err = f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: strings.Repeat("a", MaxCommentLength+1)})
		assert.True(t, apperr.Is(err, apperr.TypeValidation))

		_, err = f.m.AddComment(ctx, access.Anonymous, NewComment{PostID: f.post.ID, Content: "hi"})
		assert.True(t, apperr.Is(err, apperr.TypeUnauthorized))
	})

	t.Run("missing post", func(t *testing.T) {
		f := setup(t)
		_, err := f.m.AddComment(ctx, student, NewComment{PostID: "nope", Content: "hi"})
		assert.True(t, apperr.Is(err, apperr.TypeNotFound))
	})

	t.Run("insert failure surfaces", func(t *testing.T) {
		f := setup(t)
		f.store.InjectFault("InsertComment", errors.New("connection reset"), 1)
		_, err := f.m.AddComment(ctx, student, NewComment{PostID: f.post.ID, Content: "hi"})
		assert.True(t, apperr.Is(err, apperr.TypeUnavailable))

		p, err := f.store.GetPost(ctx, f.post.ID)
		require.NoError(t, err)
		assert.Zero(t, p.CommentCount)
	})
}

func TestMilestoneNotification(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	target := models.PostTarget(f.post.ID)

	for i := range 10 {
		id := fmt.Sprintf("voter-%d", i)
		require.NoError(t, f.store.InsertUser(ctx, &models.User{ID: id, Email: id + "@my.fisk.edu"}))
		_, err := f.m.ApplyVote(ctx, access.Actor{UserID: id}, target)
		require.NoError(t, err)
	}

	list, err := f.store.ListNotifications(ctx, author.UserID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.KindMilestone, list[0].Kind)
	assert.Equal(t, 10, f.upvotes(t))
}

func TestReconcilePost(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	target := models.PostTarget(f.post.ID)

	require.NoError(t, f.store.InsertVote(ctx, &models.Vote{ID: "v1", UserID: student.UserID, Target: target}))
	require.NoError(t, f.store.InsertComment(ctx, &models.Comment{ID: "c1", PostID: f.post.ID, UserID: student.UserID, Content: "x"}))

	_, err := f.m.ReconcilePost(ctx, student, f.post.ID)
	assert.True(t, apperr.Is(err, apperr.TypeForbidden))

	counts, err := f.m.ReconcilePost(ctx, admin, f.post.ID)
	require.NoError(t, err)
	assert.Equal(t, PostCounts{Upvotes: 1, Comments: 1}, counts)

	_, err = f.m.ReconcilePost(ctx, admin, "nope")
	assert.True(t, apperr.Is(err, apperr.TypeNotFound))
}
