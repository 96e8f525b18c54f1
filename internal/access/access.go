// Package access classifies callers as anonymous, signed-in or SGA admin and
// issues the bearer tokens that identify them.
package access

import (
	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
)

// Actor is the capability a request carries into the service layer.
type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}

var Anonymous = Actor{}

func (a Actor) IsAnonymous() bool { return a.UserID == "" }

func (a Actor) RequireUser() error {
	if a.IsAnonymous() {
		return apperr.Unauthorized("sign in required")
	}
	return nil
}

func (a Actor) RequireAdmin() error {
	if err := a.RequireUser(); err != nil {
		return err
	}
	if !a.IsAdmin {
		return apperr.Forbidden("SGA admin access required")
	}
	return nil
}

// Is reports whether the actor is the given user.
func (a Actor) Is(userID string) bool {
	return !a.IsAnonymous() && a.UserID == userID
}
