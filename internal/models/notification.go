package models

import (
	"fmt"
	"time"
)

type NotificationKind string

const (
	KindStatusUpdate NotificationKind = "status_update"
	KindComment      NotificationKind = "comment"
	KindMilestone    NotificationKind = "milestone"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case KindStatusUpdate, KindComment, KindMilestone:
		return true
	}
	return false
}

func ParseNotificationKind(s string) (NotificationKind, error) {
	k := NotificationKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("invalid notification kind %q", s)
	}
	return k, nil
}

// Notification is created as a side effect of status changes, comments and
// upvote milestones. Only IsRead changes after creation.
type Notification struct {
	ID        string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string           `gorm:"type:uuid;not null;index:notifications_user_id_idx" json:"user_id"`
	User      User             `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Kind      NotificationKind `gorm:"column:type;type:text;not null;check:type_check,type IN ('status_update','comment','milestone')" json:"type"`
	PostID    string           `gorm:"type:uuid;not null" json:"post_id"`
	Post      Post             `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CommentID *string          `gorm:"type:uuid" json:"comment_id,omitempty"`
	Title     string           `gorm:"not null" json:"title"`
	Message   string           `gorm:"not null" json:"message"`
	IsRead    bool             `gorm:"not null;default:false;index:notifications_is_read_idx" json:"is_read"`
	CreatedAt time.Time        `gorm:"not null" json:"created_at"`
}
