package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

func (q *querier) InsertUser(ctx context.Context, user *models.User) error {
	return q.run(ctx, "InsertUser", func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return storage.ErrDuplicateKey
		}
		for _, u := range st.users {
			if u.Email == user.Email {
				return storage.ErrDuplicateKey
			}
		}
		st.users[user.ID] = *user
		return nil
	})
}

func (q *querier) GetUser(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := q.run(ctx, "GetUser", func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return storage.ErrNotFound
		}
		user = u
		return nil
	})
	return user, err
}

func (q *querier) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := q.run(ctx, "GetUserByEmail", func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				user = u
				return nil
			}
		}
		return storage.ErrNotFound
	})
	return user, err
}

func (q *querier) GetUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	err := q.run(ctx, "GetUsers", func(st *state) error {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				users[id] = u
			}
		}
		return nil
	})
	return users, err
}

func (q *querier) SetAdmin(ctx context.Context, id string, admin bool) error {
	return q.run(ctx, "SetAdmin", func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return storage.ErrNotFound
		}
		u.IsSGAAdmin = admin
		st.users[id] = u
		return nil
	})
}

func (q *querier) InsertNotification(ctx context.Context, n *models.Notification) error {
	return q.run(ctx, "InsertNotification", func(st *state) error {
		if _, ok := st.users[n.UserID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := st.posts[n.PostID]; !ok {
			return storage.ErrNotFound
		}
		st.notifications[n.ID] = *n
		st.track(n.ID)
		return nil
	})
}

func (q *querier) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := q.run(ctx, "ListNotifications", func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID {
				list = append(list, n)
			}
		}
		slices.SortFunc(list, func(a, b models.Notification) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(st.seq[b.ID], st.seq[a.ID])
		})
		if limit > 0 && len(list) > limit {
			list = list[:limit]
		}
		return nil
	})
	return list, err
}

func (q *querier) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return q.run(ctx, "MarkNotificationRead", func(st *state) error {
		n, ok := st.notifications[id]
		if !ok || n.UserID != userID {
			return storage.ErrNotFound
		}
		n.IsRead = true
		st.notifications[id] = n
		return nil
	})
}

func (q *querier) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	var updated int64
	err := q.run(ctx, "MarkAllNotificationsRead", func(st *state) error {
		for id, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				n.IsRead = true
				st.notifications[id] = n
				updated++
			}
		}
		return nil
	})
	return updated, err
}

func (q *querier) CountUnread(ctx context.Context, userID string) (int64, error) {
	var unread int64
	err := q.run(ctx, "CountUnread", func(st *state) error {
		for _, n := range st.notifications {
			if n.UserID == userID && !n.IsRead {
				unread++
			}
		}
		return nil
	})
	return unread, err
}

func (q *querier) InsertMagicLink(ctx context.Context, token *models.MagicLinkToken) error {
	return q.run(ctx, "InsertMagicLink", func(st *state) error {
		if _, ok := st.links[token.ID]; ok {
			return storage.ErrDuplicateKey
		}
		st.links[token.ID] = *token
		return nil
	})
}

func (q *querier) GetMagicLink(ctx context.Context, id string) (models.MagicLinkToken, error) {
	var token models.MagicLinkToken
	err := q.run(ctx, "GetMagicLink", func(st *state) error {
		t, ok := st.links[id]
		if !ok {
			return storage.ErrNotFound
		}
		token = t
		return nil
	})
	return token, err
}

func (q *querier) DeleteMagicLink(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := q.run(ctx, "DeleteMagicLink", func(st *state) error {
		if _, ok := st.links[id]; ok {
			delete(st.links, id)
			removed = 1
		}
		return nil
	})
	return removed, err
}

func (q *querier) DeleteExpiredMagicLinks(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := q.run(ctx, "DeleteExpiredMagicLinks", func(st *state) error {
		for id, t := range st.links {
			if !t.ExpiresAt.After(now) {
				delete(st.links, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}
