package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
)

// Constraints AutoMigrate cannot express: the vote table with its
// exactly-one-target check and the partial unique indexes that enforce one
// vote per user per target.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS votes (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		post_id uuid REFERENCES posts(id) ON DELETE CASCADE,
		comment_id uuid REFERENCES comments(id) ON DELETE CASCADE,
		created_at timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT exactly_one_target CHECK (
			(post_id IS NOT NULL AND comment_id IS NULL) OR
			(post_id IS NULL AND comment_id IS NOT NULL)
		)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS unique_post_vote_idx ON votes (user_id, post_id) WHERE comment_id IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS unique_comment_vote_idx ON votes (user_id, comment_id) WHERE post_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS votes_post_id_idx ON votes (post_id)`,
	`CREATE INDEX IF NOT EXISTS votes_comment_id_idx ON votes (comment_id)`,
	`CREATE INDEX IF NOT EXISTS posts_tags_idx ON posts USING GIN (tags)`,
}

func Migrate(ctx context.Context, db *gorm.DB) error {
	db = db.WithContext(ctx)

	err := db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Notification{},
		&models.MagicLinkToken{},
	)
	if err != nil {
		return err
	}

	for i, stmt := range migrations {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
