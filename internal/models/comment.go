package models

import "time"

type Comment struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	PostID      string    `gorm:"type:uuid;not null;index:comments_post_id_idx" json:"post_id"`
	Post        Post      `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	UserID      string    `gorm:"type:uuid;not null" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Content     string    `gorm:"not null" json:"content"`
	IsAnonymous bool      `gorm:"not null;default:false" json:"is_anonymous"`
	UpvoteCount int       `gorm:"not null;default:0" json:"upvote_count"`
	CreatedAt   time.Time `gorm:"not null;index:comments_created_at_idx" json:"created_at"`
}
