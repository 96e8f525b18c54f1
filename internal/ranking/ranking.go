// Package ranking orders posts for display. It does no I/O; the caller
// supplies the wall-clock time the ranking is computed against.
package ranking

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

type Mode string

const (
	Recent   Mode = "recent"
	Upvotes  Mode = "upvotes"
	Trending Mode = "trending"
)

var ErrUnknownMode = errors.New("unknown sort mode")

// ParseMode accepts recent, upvotes (or popular) and trending. An empty
// string selects trending.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trending":
		return Trending, nil
	case "recent", "new":
		return Recent, nil
	case "upvotes", "popular", "top":
		return Upvotes, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Rankable is anything with an upvote count and a creation time.
type Rankable interface {
	RankUpvotes() int
	RankCreatedAt() time.Time
}

const (
	ageOffsetHours = 2
	gravity        = 1.5
)

// TrendingScore is upvotes / (hours + 2)^1.5, hours measured from createdAt
// to now. Future timestamps count as age zero.
func TrendingScore(upvotes int, createdAt, now time.Time) float64 {
	hours := max(now.Sub(createdAt).Hours(), 0)
	return float64(upvotes) / math.Pow(hours+ageOffsetHours, gravity)
}

type ranked[T Rankable] struct {
	item  T
	score float64
	at    time.Time
}

// Rank returns items ordered by mode, highest first. Equal keys fall back to
// newest first and then to input order. The input slice is not modified.
func Rank[T Rankable](items []T, mode Mode, now time.Time) []T {
	rows := make([]ranked[T], len(items))
	for i, it := range items {
		r := ranked[T]{item: it, at: it.RankCreatedAt()}
		switch mode {
		case Upvotes:
			r.score = float64(it.RankUpvotes())
		case Trending:
			r.score = TrendingScore(it.RankUpvotes(), r.at, now)
		}
		rows[i] = r
	}

	slices.SortStableFunc(rows, func(a, b ranked[T]) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return b.at.Compare(a.at)
	})

	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = r.item
	}
	return out
}
