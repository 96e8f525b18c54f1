package memory

import (
	"context"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

func targetExists(st *state, target models.VoteTarget) bool {
	switch {
	case target.IsPost():
		_, ok := st.posts[target.ID()]
		return ok
	case target.IsComment():
		_, ok := st.comments[target.ID()]
		return ok
	}
	return false
}

func (q *querier) InsertVote(ctx context.Context, vote *models.Vote) error {
	if err := vote.Target.Validate(); err != nil {
		return err
	}
	return q.run(ctx, "InsertVote", func(st *state) error {
		if !targetExists(st, vote.Target) {
			return storage.ErrNotFound
		}
		key := keyFor(vote.UserID, vote.Target)
		if _, ok := st.votes[key]; ok {
			return storage.ErrDuplicateVote
		}
		st.votes[key] = *vote
		return nil
	})
}

func (q *querier) DeleteVote(ctx context.Context, userID string, target models.VoteTarget) (int64, error) {
	var removed int64
	err := q.run(ctx, "DeleteVote", func(st *state) error {
		key := keyFor(userID, target)
		if _, ok := st.votes[key]; ok {
			delete(st.votes, key)
			removed = 1
		}
		return nil
	})
	return removed, err
}

func (q *querier) VotedTargets(ctx context.Context, userID string, kind models.TargetKind, ids []string) (map[string]bool, error) {
	voted := make(map[string]bool)
	err := q.run(ctx, "VotedTargets", func(st *state) error {
		for _, id := range ids {
			if _, ok := st.votes[voteKey{userID: userID, kind: kind, id: id}]; ok {
				voted[id] = true
			}
		}
		return nil
	})
	return voted, err
}

func (q *querier) CountVotes(ctx context.Context, target models.VoteTarget) (int64, error) {
	var n int64
	err := q.run(ctx, "CountVotes", func(st *state) error {
		n = countVotes(st, target)
		return nil
	})
	return n, err
}

func countVotes(st *state, target models.VoteTarget) int64 {
	var n int64
	for k := range st.votes {
		if k.kind == target.Kind() && k.id == target.ID() {
			n++
		}
	}
	return n
}

func (q *querier) AdjustCounter(ctx context.Context, ref storage.CounterRef, delta int) (int, error) {
	var value int
	err := q.run(ctx, "AdjustCounter", func(st *state) error {
		return setCounter(st, ref, func(current int) int {
			return max(current+delta, 0)
		}, &value)
	})
	return value, err
}

func (q *querier) RecountCounter(ctx context.Context, ref storage.CounterRef) (int, error) {
	var value int
	err := q.run(ctx, "RecountCounter", func(st *state) error {
		var n int64
		switch ref.Kind {
		case storage.PostUpvotes:
			n = countVotes(st, models.PostTarget(ref.ID))
		case storage.CommentUpvotes:
			n = countVotes(st, models.CommentTarget(ref.ID))
		case storage.PostComments:
			n = countComments(st, ref.ID)
		}
		return setCounter(st, ref, func(int) int { return int(n) }, &value)
	})
	return value, err
}

func setCounter(st *state, ref storage.CounterRef, next func(int) int, out *int) error {
	switch ref.Kind {
	case storage.PostUpvotes, storage.PostComments:
		p, ok := st.posts[ref.ID]
		if !ok {
			return storage.ErrNotFound
		}
		if ref.Kind == storage.PostUpvotes {
			p.UpvoteCount = next(p.UpvoteCount)
			*out = p.UpvoteCount
		} else {
			p.CommentCount = next(p.CommentCount)
			*out = p.CommentCount
		}
		st.posts[ref.ID] = p
	case storage.CommentUpvotes:
		c, ok := st.comments[ref.ID]
		if !ok {
			return storage.ErrNotFound
		}
		c.UpvoteCount = next(c.UpvoteCount)
		*out = c.UpvoteCount
		st.comments[ref.ID] = c
	default:
		return storage.ErrNotFound
	}
	return nil
}
