package postgres

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

func (q *querier) InsertUser(ctx context.Context, user *models.User) error {
	user.CreatedAt = utc(user.CreatedAt)
	return translate(q.conn(ctx).Create(user).Error)
}

func (q *querier) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := q.conn(ctx).Where("id = ?", id).Take(&user).Error
	return user, translate(err)
}

func (q *querier) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := q.conn(ctx).Where("email = ?", email).Take(&user).Error
	return user, translate(err)
}

func (q *querier) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var list []models.User
	if err := q.conn(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

func (q *querier) SetAdmin(ctx context.Context, id string, admin bool) error {
	res := q.conn(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_sga_admin", admin)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q *querier) InsertNotification(ctx context.Context, n *models.Notification) error {
	n.CreatedAt = utc(n.CreatedAt)
	return translate(q.conn(ctx).Omit(clause.Associations).Create(n).Error)
}

func (q *querier) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	tx := q.conn(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var list []models.Notification
	err := tx.Find(&list).Error
	return list, translate(err)
}

func (q *querier) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res := q.conn(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (q *querier) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res := q.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, translate(res.Error)
}

func (q *querier) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.conn(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, translate(err)
}

func (q *querier) InsertMagicLink(ctx context.Context, token *models.MagicLinkToken) error {
	token.CreatedAt = utc(token.CreatedAt)
	return translate(q.conn(ctx).Create(token).Error)
}

func (q *querier) GetMagicLink(ctx context.Context, id string) (models.MagicLinkToken, error) {
	var token models.MagicLinkToken
	err := q.conn(ctx).Where("id = ?", id).Take(&token).Error
	return token, translate(err)
}

func (q *querier) DeleteMagicLink(ctx context.Context, id string) (int64, error) {
	res := q.conn(ctx).Where("id = ?", id).Delete(&models.MagicLinkToken{})
	return res.RowsAffected, translate(res.Error)
}

func (q *querier) DeleteExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error) {
	res := q.conn(ctx).Where("expires_at <= ?", now).Delete(&models.MagicLinkToken{})
	return res.RowsAffected, translate(res.Error)
}
