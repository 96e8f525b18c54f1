// Package memory is an in-process storage.Store used by tests and local
// development. Transactions take the store lock for their whole duration and
// restore a snapshot on failure.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

type voteKey struct {
	userID string
	kind   models.TargetKind
	id     string
}

func keyFor(userID string, target models.VoteTarget) voteKey {
	return voteKey{userID: userID, kind: target.Kind(), id: target.ID()}
}

type state struct {
	users         map[string]models.User
	posts         map[string]models.Post
	comments      map[string]models.Comment
	votes         map[voteKey]models.Vote
	notifications map[string]models.Notification
	links         map[string]models.MagicLinkToken

	// seq records insertion order so equal timestamps sort deterministically.
	seq  map[string]int64
	next int64
}

func newState() *state {
	return &state{
		users:         make(map[string]models.User),
		posts:         make(map[string]models.Post),
		comments:      make(map[string]models.Comment),
		votes:         make(map[voteKey]models.Vote),
		notifications: make(map[string]models.Notification),
		links:         make(map[string]models.MagicLinkToken),
		seq:           make(map[string]int64),
	}
}

func (st *state) clone() *state {
	return &state{
		users:         maps.Clone(st.users),
		posts:         maps.Clone(st.posts),
		comments:      maps.Clone(st.comments),
		votes:         maps.Clone(st.votes),
		notifications: maps.Clone(st.notifications),
		links:         maps.Clone(st.links),
		seq:           maps.Clone(st.seq),
		next:          st.next,
	}
}

func (st *state) track(id string) {
	st.next++
	st.seq[id] = st.next
}

type fault struct {
	err       error
	remaining int
}

type Store struct {
	*querier

	mu sync.Mutex
	st *state

	fmu    sync.Mutex
	faults map[string]*fault
	calls  map[string]int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{
		st:     newState(),
		faults: make(map[string]*fault),
		calls:  make(map[string]int),
	}
	s.querier = &querier{s: s}
	return s
}

// InjectFault makes the next times calls of op fail with err. op is the
// Querier method name, e.g. "AdjustCounter". times <= 0 fails every call
// until ClearFaults.
func (s *Store) InjectFault(op string, err error, times int) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults[op] = &fault{err: err, remaining: times}
}

func (s *Store) ClearFaults() {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults = make(map[string]*fault)
}

// Calls reports how many times op has been invoked, faulted calls included.
func (s *Store) Calls(op string) int {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return s.calls[op]
}

func (s *Store) fault(op string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.calls[op]++
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

// querier runs operations either against the locked root state (st == nil)
// or inside a transaction that already holds the lock.
type querier struct {
	s  *Store
	st *state
}

func (q *querier) run(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.s.fault(op); err != nil {
		return err
	}
	if q.st != nil {
		return fn(q.st)
	}
	q.s.mu.Lock()
	defer q.s.mu.Unlock()
	return fn(q.s.st)
}

func (q *querier) Transaction(ctx context.Context, fn func(storage.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.s.fault("Transaction"); err != nil {
		return err
	}

	st := q.st
	if st == nil {
		q.s.mu.Lock()
		defer q.s.mu.Unlock()
		st = q.s.st
	}

	snapshot := st.clone()
	err := fn(&querier{s: q.s, st: st})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		*st = *snapshot
		return err
	}
	return nil
}
