package postgres

import (
	"context"

	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

func (q *querier) InsertPost(ctx context.Context, post *models.Post) error {
	post.CreatedAt = utc(post.CreatedAt)
	if post.Tags == nil {
		post.Tags = pq.StringArray{}
	}
	if post.Status == "" {
		post.Status = models.StatusPending
	}
	return translate(q.conn(ctx).Omit(clause.Associations).Create(post).Error)
}

func (q *querier) GetPost(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	err := q.conn(ctx).Where("id = ?", id).Take(&post).Error
	return post, translate(err)
}

func (q *querier) ListPosts(ctx context.Context, filter storage.PostFilter) ([]models.Post, error) {
	tx := q.conn(ctx).Model(&models.Post{})
	if len(filter.Tags) > 0 {
		tx = tx.Where("tags @> ?::text[]", pq.StringArray(filter.Tags))
	}
	if filter.Status != nil {
		tx = tx.Where("status = ?", *filter.Status)
	}
	if filter.AuthorID != "" {
		tx = tx.Where("user_id = ?", filter.AuthorID)
	}

	var posts []models.Post
	err := tx.Order("created_at DESC, id DESC").Find(&posts).Error
	return posts, translate(err)
}

func (q *querier) UpdatePostStatus(ctx context.Context, id string, status models.Status, response *string) (models.Post, error) {
	updates := map[string]any{"status": status}
	if response != nil {
		updates["sga_response"] = *response
	}

	res := q.conn(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return models.Post{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.Post{}, storage.ErrNotFound
	}
	return q.GetPost(ctx, id)
}

func (q *querier) InsertComment(ctx context.Context, comment *models.Comment) error {
	comment.CreatedAt = utc(comment.CreatedAt)
	return translate(q.conn(ctx).Omit(clause.Associations).Create(comment).Error)
}

func (q *querier) GetComment(ctx context.Context, id string) (models.Comment, error) {
	var comment models.Comment
	err := q.conn(ctx).Where("id = ?", id).Take(&comment).Error
	return comment, translate(err)
}

func (q *querier) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := q.conn(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	return comments, translate(err)
}

func (q *querier) CountComments(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := q.conn(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, translate(err)
}
