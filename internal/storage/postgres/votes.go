package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

// voteRecord is the row shape of the votes table; exactly one of PostID and
// CommentID is set.
type voteRecord struct {
	ID        string
	UserID    string
	PostID    *string
	CommentID *string
	CreatedAt time.Time
}

func (voteRecord) TableName() string { return "votes" }

func (r voteRecord) vote() (models.Vote, error) {
	target, err := models.TargetFromColumns(r.PostID, r.CommentID)
	if err != nil {
		return models.Vote{}, fmt.Errorf("vote %s: %w", r.ID, err)
	}
	return models.Vote{ID: r.ID, UserID: r.UserID, Target: target, CreatedAt: r.CreatedAt}, nil
}

func targetColumn(kind models.TargetKind) string {
	if kind == models.TargetComment {
		return "comment_id"
	}
	return "post_id"
}

func (q *querier) InsertVote(ctx context.Context, vote *models.Vote) error {
	if err := vote.Target.Validate(); err != nil {
		return err
	}
	vote.CreatedAt = utc(vote.CreatedAt)

	postID, commentID := vote.Target.Columns()
	rec := voteRecord{
		ID:        vote.ID,
		UserID:    vote.UserID,
		PostID:    postID,
		CommentID: commentID,
		CreatedAt: vote.CreatedAt,
	}

	err := translate(q.conn(ctx).Create(&rec).Error)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return storage.ErrDuplicateVote
	}
	return err
}

func (q *querier) DeleteVote(ctx context.Context, userID string, target models.VoteTarget) (int64, error) {
	res := q.conn(ctx).
		Where("user_id = ?", userID).
		Where(targetColumn(target.Kind())+" = ?", target.ID()).
		Delete(&voteRecord{})
	if err := translate(res.Error); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return res.RowsAffected, nil
}

func (q *querier) VotedTargets(ctx context.Context, userID string, kind models.TargetKind, ids []string) (map[string]bool, error) {
	voted := make(map[string]bool, len(ids))
	if len(ids) == 0 || userID == "" {
		return voted, nil
	}

	var records []voteRecord
	err := q.conn(ctx).
		Where("user_id = ?", userID).
		Where(targetColumn(kind)+" IN ?", ids).
		Find(&records).Error
	if err := translate(err); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return voted, nil
		}
		return nil, err
	}
	for _, rec := range records {
		vote, err := rec.vote()
		if err != nil {
			return nil, err
		}
		if vote.Target.Kind() == kind {
			voted[vote.Target.ID()] = true
		}
	}
	return voted, nil
}

func (q *querier) CountVotes(ctx context.Context, target models.VoteTarget) (int64, error) {
	var n int64
	err := q.conn(ctx).Model(&voteRecord{}).
		Where(targetColumn(target.Kind())+" = ?", target.ID()).
		Count(&n).Error
	return n, translate(err)
}

type counterSQL struct {
	table  string
	column string
	source string
}

var counters = map[storage.CounterKind]counterSQL{
	storage.PostUpvotes: {
		table:  "posts",
		column: "upvote_count",
		source: "SELECT count(*) FROM votes WHERE votes.post_id = posts.id",
	},
	storage.PostComments: {
		table:  "posts",
		column: "comment_count",
		source: "SELECT count(*) FROM comments WHERE comments.post_id = posts.id",
	},
	storage.CommentUpvotes: {
		table:  "comments",
		column: "upvote_count",
		source: "SELECT count(*) FROM votes WHERE votes.comment_id = comments.id",
	},
}

// AdjustCounter is a single UPDATE so concurrent adjustments never lose
// updates.
func (q *querier) AdjustCounter(ctx context.Context, ref storage.CounterRef, delta int) (int, error) {
	c, ok := counters[ref.Kind]
	if !ok {
		return 0, fmt.Errorf("unknown counter %q", ref.Kind)
	}
	stmt := fmt.Sprintf(
		"UPDATE %s SET %s = GREATEST(%s + ?, 0) WHERE id = ? RETURNING %s",
		c.table, c.column, c.column, c.column,
	)
	return q.scanCounter(ctx, stmt, delta, ref.ID)
}

func (q *querier) RecountCounter(ctx context.Context, ref storage.CounterRef) (int, error) {
	c, ok := counters[ref.Kind]
	if !ok {
		return 0, fmt.Errorf("unknown counter %q", ref.Kind)
	}
	stmt := fmt.Sprintf(
		"UPDATE %s SET %s = (%s) WHERE id = ? RETURNING %s",
		c.table, c.column, c.source, c.column,
	)
	return q.scanCounter(ctx, stmt, ref.ID)
}

func (q *querier) scanCounter(ctx context.Context, stmt string, args ...any) (int, error) {
	var values []int
	if err := q.conn(ctx).Raw(stmt, args...).Scan(&values).Error; err != nil {
		return 0, translate(err)
	}
	if len(values) == 0 {
		return 0, storage.ErrNotFound
	}
	return values[0], nil
}
