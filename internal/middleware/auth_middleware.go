// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/response"
	"objettrouve-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ctxIdentity  = "identity"
	ctxSubject   = "subject"
	ctxSessionID = "session_id"
	ctxRoles     = "roles"
)

// Authenticator resolves request credentials. *auth.AuthService implements it.
type Authenticator interface {
	ValidateSession(ctx context.Context, sessionID string) (*session.SessionData, error)
	CurrentUser(ctx context.Context, sessionID, accessToken string) (*auth.Identity, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
	logger        *zap.Logger
}

func NewAuthMiddleware(authenticator Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		logger:        logger,
	}
}

// Auth accepts a server session cookie or a provider access token
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if data, ok := m.sessionFromCookie(c); ok {
			setSession(c, data)
			c.Next()
			return
		}

		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c, "authentication required")
			return
		}

		identity, err := m.authenticator.CurrentUser(c.Request.Context(), "", token)
		if err != nil {
			status := response.StatusForKind(xerrors.KindOf(err))
			response.Error(c, status, xerrors.MessageOrDefault(err, "invalid or expired token"), nil)
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

// RequireSession only accepts a server session cookie
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := m.sessionFromCookie(c)
		if !ok {
			response.Unauthorized(c, "a signed-in session is required")
			return
		}
		setSession(c, data)
		c.Next()
	}
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Auth() or RequireSession()
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			response.Forbidden(c, "no roles found - authentication required")
			return
		}

		userRoles := GetRoles(c)
		for _, required := range roles {
			for _, r := range userRoles {
				if r == required {
					c.Next()
					return
				}
			}
		}

		err := errors.New("user does not have required role")
		response.Error(c, http.StatusForbidden, "insufficient permissions", err, map[string]interface{}{
			"required_roles": roles,
			"user_roles":     userRoles,
		})
	}
}

// AdminOnly returns middlewares for admin-only routes (session + role)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.RequireSession(),
		m.RequireRole("admin"),
	}
}

// OptionalAuth sets the identity when a valid cookie or token is present and never aborts
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if data, ok := m.sessionFromCookie(c); ok {
			setSession(c, data)
		} else if token := extractToken(c); token != "" {
			if identity, err := m.authenticator.CurrentUser(c.Request.Context(), "", token); err == nil {
				setIdentity(c, identity)
			}
		}
		c.Next()
	}
}

func (m *AuthMiddleware) sessionFromCookie(c *gin.Context) (*session.SessionData, bool) {
	sessionID, err := c.Cookie(session.CookieName)
	if err != nil || sessionID == "" {
		return nil, false
	}

	data, err := m.authenticator.ValidateSession(c.Request.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			m.logger.Error("session lookup failed", zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func setSession(c *gin.Context, data *session.SessionData) {
	setIdentity(c, data.Identity())
	c.Set(ctxSessionID, data.ID)
}

func setIdentity(c *gin.Context, identity *auth.Identity) {
	c.Set(ctxIdentity, identity)
	c.Set(ctxSubject, identity.Subject)
	c.Set(ctxRoles, identity.Roles)
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// BearerToken exposes the request's bearer token to handlers
func BearerToken(c *gin.Context) string {
	return extractToken(c)
}
