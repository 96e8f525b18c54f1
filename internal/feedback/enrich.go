package feedback

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
)

// authorsOf collects the distinct authors whose identity may be shown.
func authorsOf[T any](items []T, author func(T) (string, bool)) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range items {
		id, anonymous := author(it)
		if anonymous {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// lookup runs the author and has-voted queries concurrently.
func (s *Service) lookup(ctx context.Context, viewer access.Actor, authorIDs []string, kind models.TargetKind, targetIDs []string) (map[string]models.User, map[string]bool, error) {
	var (
		users map[string]models.User
		voted map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.store.GetUsers(gctx, authorIDs)
		return err
	})
	g.Go(func() error {
		var err error
		voted, err = s.ledger.VotedTargets(gctx, s.store, viewer.UserID, kind, targetIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, apperr.Unavailable("could not load details", err)
	}
	return users, voted, nil
}

func emailOf(users map[string]models.User, id string) *string {
	if u, ok := users[id]; ok {
		email := u.Email
		return &email
	}
	return nil
}

// enrichPosts hides the author of anonymous posts from everyone but the
// author.
func (s *Service) enrichPosts(ctx context.Context, viewer access.Actor, posts []models.Post) ([]PostView, error) {
	views := make([]PostView, len(posts))
	if len(posts) == 0 {
		return views, nil
	}

	postIDs := make([]string, len(posts))
	for i, p := range posts {
		postIDs[i] = p.ID
	}
	authorIDs := authorsOf(posts, func(p models.Post) (string, bool) { return p.UserID, p.IsAnonymous })

	users, voted, err := s.lookup(ctx, viewer, authorIDs, models.TargetPost, postIDs)
	if err != nil {
		return nil, err
	}

	for i, p := range posts {
		v := PostView{Post: p, HasUpvoted: voted[p.ID]}
		if p.IsAnonymous {
			if !viewer.Is(p.UserID) {
				v.UserID = ""
			}
		} else {
			v.AuthorEmail = emailOf(users, p.UserID)
		}
		views[i] = v
	}
	return views, nil
}

func (s *Service) enrichComments(ctx context.Context, viewer access.Actor, comments []models.Comment) ([]CommentView, error) {
	views := make([]CommentView, len(comments))
	if len(comments) == 0 {
		return views, nil
	}

	commentIDs := make([]string, len(comments))
	for i, c := range comments {
		commentIDs[i] = c.ID
	}
	authorIDs := authorsOf(comments, func(c models.Comment) (string, bool) { return c.UserID, c.IsAnonymous })

	users, voted, err := s.lookup(ctx, viewer, authorIDs, models.TargetComment, commentIDs)
	if err != nil {
		return nil, err
	}

	for i, c := range comments {
		v := CommentView{Comment: c, HasUpvoted: voted[c.ID]}
		if c.IsAnonymous {
			if !viewer.Is(c.UserID) {
				v.UserID = ""
			}
		} else {
			v.AuthorEmail = emailOf(users, c.UserID)
		}
		views[i] = v
	}
	return views, nil
}
