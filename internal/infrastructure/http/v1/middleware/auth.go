package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"stockalloc/internal/core/apperror"
	appctx "stockalloc/internal/core/context"
)

// TokenValidator turns a bearer token into the actor it was issued to.
type TokenValidator interface {
	Validate(tokenString string) (*appctx.Actor, error)
}

// Auth resolves the actor for the request. A valid bearer token names the
// actor. Without one the request is rejected when required is set and runs
// as the system actor otherwise. A present but invalid token is always
// rejected.
func Auth(validator TokenValidator, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || validator == nil {
			if required {
				abortUnauthorized(c, "missing authorization header")
				return
			}
			setActor(c, &appctx.Actor{ID: appctx.SystemActor, Name: appctx.SystemActor})
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		actor, err := validator.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		setActor(c, actor)
		c.Next()
	}
}

// RequireRole middleware checks if the actor has one of the roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetActor(ctx) == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		for _, r := range roles {
			if appctx.HasRole(ctx, r) {
				c.Next()
				return
			}
		}
		_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_roles", roles))
		c.Abort()
	}
}

func setActor(c *gin.Context, actor *appctx.Actor) {
	c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
	c.Set("actor", actor.Name)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
