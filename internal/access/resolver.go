package access

import (
	"context"
	"errors"
	"strings"

	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/models"
	"github.com/fisk-sga/campus-feedback/backend/internal/storage"
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// Resolver turns an Authorization header into an Actor. The admin flag is
// read from storage on every call so revocation takes effect immediately.
type Resolver struct {
	issuer *Issuer
	users  UserLookup
}

func NewResolver(issuer *Issuer, users UserLookup) *Resolver {
	return &Resolver{issuer: issuer, users: users}
}

// Resolve returns Anonymous for an empty header and an Unauthorized error
// for a header that is present but not a valid bearer token.
func (r *Resolver) Resolve(ctx context.Context, header string) (Actor, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Anonymous, nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Anonymous, apperr.Unauthorized("invalid authorization header")
	}

	userID, err := r.issuer.Parse(strings.TrimSpace(token))
	if err != nil {
		return Anonymous, apperr.Unauthorized("invalid or expired token")
	}

	user, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Anonymous, apperr.Unauthorized("user no longer exists")
	}
	if err != nil {
		return Anonymous, apperr.Unavailable("could not load user", err)
	}

	return Actor{UserID: user.ID, Email: user.Email, IsAdmin: user.IsSGAAdmin}, nil
}
