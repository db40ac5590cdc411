package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rsyarsya/pneuscope/internal/model"
	"github.com/rsyarsya/pneuscope/pkg/auth"
	apperrors "github.com/rsyarsya/pneuscope/pkg/errors"
	"github.com/rsyarsya/pneuscope/pkg/httputil"
)

const (
	ContextUser   = "user"
	ContextClaims = "claims"
)

// Authenticator resolves a raw token into its claims and the current user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, *model.User, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
	cookieName    string
}

func NewAuthMiddleware(authenticator Authenticator, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{
		authenticator: authenticator,
		cookieName:    cookieName,
	}
}

func (m *AuthMiddleware) CookieName() string {
	return m.cookieName
}

// Token extracts the access token from the auth cookie, falling back to an
// Authorization: Bearer header.
func (m *AuthMiddleware) Token(c *gin.Context) string {
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authenticate rejects requests without a valid token and stores the
// caller in the gin context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, user, err := m.authenticator.Authenticate(c.Request.Context(), m.Token(c))
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// Authorize allows only the given roles through. It must run after
// Authenticate.
func (m *AuthMiddleware) Authorize(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			httputil.RespondWithError(c, apperrors.Unauthorized("Not authenticated", nil))
			return
		}
		if !Actor(c).Is(roles...) {
			httputil.RespondWithError(c, apperrors.Forbidden("Access denied"))
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

func CurrentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// Actor describes the caller for service calls. Anonymous requests get a
// zero user id and an empty role.
func Actor(c *gin.Context) model.Actor {
	actor := model.Actor{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if user := CurrentUser(c); user != nil {
		actor.UserID = user.ID
		actor.Role = user.Role
	} else {
		actor.UserID = uuid.Nil
	}
	return actor
}
