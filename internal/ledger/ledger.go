// Package ledger records and retracts individual votes. The storage unique
// index on (user, target) is the only coordination point: a duplicate insert,
// whether sequential or the loser of a race, is reported as AlreadyVoted.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

type CastResult int

const (
	Created CastResult = iota + 1
	AlreadyVoted
)

func (r CastResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyVoted:
		return "already_voted"
	}
	return "unknown"
}

type Ledger struct {
	clock clockwork.Clock
	newID func() string
}

func New(clock clockwork.Clock) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{clock: clock, newID: uuid.NewString}
}

// Cast records userID's vote on target. The insert runs in its own savepoint
// so a unique violation leaves the caller's transaction usable.
func (l *Ledger) Cast(ctx context.Context, q storage.Querier, userID string, target models.VoteTarget) (models.Vote, CastResult, error) {
	if err := target.Validate(); err != nil {
		return models.Vote{}, 0, err
	}
	if userID == "" {
		return models.Vote{}, 0, errors.New("ledger: empty user id")
	}

	vote := models.Vote{
		ID:        l.newID(),
		UserID:    userID,
		Target:    target,
		CreatedAt: l.clock.Now().UTC(),
	}

	err := q.Transaction(ctx, func(q storage.Querier) error {
		return q.InsertVote(ctx, &vote)
	})
	switch {
	case err == nil:
		return vote, Created, nil
	case errors.Is(err, storage.ErrDuplicateVote):
		return models.Vote{}, AlreadyVoted, nil
	case errors.Is(err, storage.ErrNotFound):
		return models.Vote{}, 0, err
	default:
		return models.Vote{}, 0, fmt.Errorf("insert vote on %s: %w", target, err)
	}
}

// Retract deletes userID's vote on target and reports how many rows were
// removed (0 or 1). Retracting a missing vote is not an error.
func (l *Ledger) Retract(ctx context.Context, q storage.Querier, userID string, target models.VoteTarget) (int64, error) {
	if err := target.Validate(); err != nil {
		return 0, err
	}
	removed, err := q.DeleteVote(ctx, userID, target)
	if err != nil {
		return 0, fmt.Errorf("delete vote on %s: %w", target, err)
	}
	return removed, nil
}

// VotedTargets reports which of ids userID has voted on. Anonymous viewers
// have voted on nothing.
func (l *Ledger) VotedTargets(ctx context.Context, q storage.Querier, userID string, kind models.TargetKind, ids []string) (map[string]bool, error) {
	if userID == "" || len(ids) == 0 {
		return map[string]bool{}, nil
	}
	return q.VotedTargets(ctx, userID, kind, ids)
}
