package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

func copyPost(p models.Post) models.Post {
	p.Tags = slices.Clone(p.Tags)
	return p
}

func (q *querier) InsertPost(ctx context.Context, post *models.Post) error {
	return q.run(ctx, "InsertPost", func(st *state) error {
		if _, ok := st.users[post.UserID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := st.posts[post.ID]; ok {
			return storage.ErrDuplicateKey
		}
		if post.Status == "" {
			post.Status = models.StatusPending
		}
		st.posts[post.ID] = copyPost(*post)
		st.track(post.ID)
		return nil
	})
}

func (q *querier) GetPost(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	err := q.run(ctx, "GetPost", func(st *state) error {
		p, ok := st.posts[id]
		if !ok {
			return storage.ErrNotFound
		}
		post = copyPost(p)
		return nil
	})
	return post, err
}

func (q *querier) ListPosts(ctx context.Context, filter storage.PostFilter) ([]models.Post, error) {
	var posts []models.Post
	err := q.run(ctx, "ListPosts", func(st *state) error {
		for _, p := range st.posts {
			if filter.Status != nil && p.Status != *filter.Status {
				continue
			}
			if filter.AuthorID != "" && p.UserID != filter.AuthorID {
				continue
			}
			if !containsAll(p.Tags, filter.Tags) {
				continue
			}
			posts = append(posts, copyPost(p))
		}
		slices.SortFunc(posts, func(a, b models.Post) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(st.seq[b.ID], st.seq[a.ID])
		})
		return nil
	})
	return posts, err
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !slices.Contains(have, w) {
			return false
		}
	}
	return true
}

func (q *querier) UpdatePostStatus(ctx context.Context, id string, status models.Status, response *string) (models.Post, error) {
	var post models.Post
	err := q.run(ctx, "UpdatePostStatus", func(st *state) error {
		p, ok := st.posts[id]
		if !ok {
			return storage.ErrNotFound
		}
		p.Status = status
		if response != nil {
			r := *response
			p.SGAResponse = &r
		}
		st.posts[id] = p
		post = copyPost(p)
		return nil
	})
	return post, err
}

func (q *querier) InsertComment(ctx context.Context, comment *models.Comment) error {
	return q.run(ctx, "InsertComment", func(st *state) error {
		if _, ok := st.posts[comment.PostID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := st.users[comment.UserID]; !ok {
			return storage.ErrNotFound
		}
		if _, ok := st.comments[comment.ID]; ok {
			return storage.ErrDuplicateKey
		}
		st.comments[comment.ID] = *comment
		st.track(comment.ID)
		return nil
	})
}

func (q *querier) GetComment(ctx context.Context, id string) (models.Comment, error) {
	var comment models.Comment
	err := q.run(ctx, "GetComment", func(st *state) error {
		c, ok := st.comments[id]
		if !ok {
			return storage.ErrNotFound
		}
		comment = c
		return nil
	})
	return comment, err
}

func (q *querier) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := q.run(ctx, "ListComments", func(st *state) error {
		for _, c := range st.comments {
			if c.PostID == postID {
				comments = append(comments, c)
			}
		}
		slices.SortFunc(comments, func(a, b models.Comment) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(st.seq[a.ID], st.seq[b.ID])
		})
		return nil
	})
	return comments, err
}

func (q *querier) CountComments(ctx context.Context, postID string) (int64, error) {
	var n int64
	err := q.run(ctx, "CountComments", func(st *state) error {
		n = countComments(st, postID)
		return nil
	})
	return n, err
}

func countComments(st *state, postID string) int64 {
	var n int64
	for _, c := range st.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n
}
