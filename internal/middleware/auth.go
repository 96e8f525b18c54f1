package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/access"
)

const actorKey = "actor"

// Auth resolves the bearer token, if any, into an access.Actor stored on
// the context. Requests without a token continue as anonymous.
func Auth(resolver *access.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests. It must run after Auth.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Actor(c).RequireUser(); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects requests from anyone but SGA admins.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Actor(c).RequireAdmin(); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func lookupActor(c *gin.Context) (access.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return access.Anonymous, false
	}
	actor, ok := v.(access.Actor)
	return actor, ok
}

// Actor returns the request's actor, Anonymous when none was resolved.
func Actor(c *gin.Context) access.Actor {
	actor, _ := lookupActor(c)
	return actor
}

// SetActor is used by tests and by routes that authenticate differently.
func SetActor(c *gin.Context, actor access.Actor) {
	c.Set(actorKey, actor)
}
