package models

import "time"

type User struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email"`
	IsSGAAdmin bool      `gorm:"column:is_sga_admin;not null;default:false" json:"is_sga_admin"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// MagicLinkToken is a pending sign-in link. Only a bcrypt hash of the
// secret half of the token is stored.
type MagicLinkToken struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	Email      string    `gorm:"not null;index"`
	SecretHash string    `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
}
