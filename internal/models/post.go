package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Status is the SGA resolution state of a post.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReviewing  Status = "reviewing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusWontFix    Status = "wont_fix"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusPending, StatusReviewing, StatusInProgress, StatusCompleted, StatusWontFix}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Label renders the status for humans, e.g. "in progress".
func (s Status) Label() string {
	return strings.Replace(string(s), "_", " ", 1)
}

type Post struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string         `gorm:"type:uuid;not null;index:posts_user_id_idx" json:"user_id"`
	User         User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Title        string         `gorm:"not null" json:"title"`
	Content      string         `gorm:"not null" json:"content"`
	ImageURL     *string        `json:"image_url,omitempty"`
	Tags         pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"tags"`
	IsAnonymous  bool           `gorm:"not null;default:false" json:"is_anonymous"`
	Status       Status         `gorm:"type:text;not null;default:pending;index:posts_status_idx;check:status_check,status IN ('pending','reviewing','in_progress','completed','wont_fix')" json:"status"`
	SGAResponse  *string        `gorm:"column:sga_response" json:"sga_response,omitempty"`
	UpvoteCount  int            `gorm:"not null;default:0" json:"upvote_count"`
	CommentCount int            `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time      `gorm:"not null;index:posts_created_at_idx" json:"created_at"`
}

func (p Post) RankUpvotes() int         { return p.UpvoteCount }
func (p Post) RankCreatedAt() time.Time { return p.CreatedAt }

// NormalizeTags turns free-form input into a tag set: trimmed, non-empty,
// first occurrence wins.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
