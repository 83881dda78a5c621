package middleware

import (
	"errors"
	"net/http"

	"objettrouve-service/internal/client/authstate"
	"objettrouve-service/internal/client/guard"
	"objettrouve-service/internal/pkg/response"
	"objettrouve-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequirePage guards server-rendered pages with the same rules as the client
// guard. Anonymous visitors are sent to the login page with a next parameter.
func (m *AuthMiddleware) RequirePage(opts guard.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, data := m.pageState(c)

		d := guard.Evaluate(state, opts)
		switch d.Render {
		case guard.RenderNothing:
			c.Redirect(http.StatusFound, guard.LoginURL(d.RedirectTo, c.Request.URL.RequestURI()))
			c.Abort()
		case guard.RenderError:
			response.Error(c, http.StatusServiceUnavailable, "session lookup failed", nil)
		default:
			if data != nil {
				setSession(c, data)
			}
			c.Next()
		}
	}
}

func (m *AuthMiddleware) pageState(c *gin.Context) (authstate.State, *session.SessionData) {
	sessionID, err := c.Cookie(session.CookieName)
	if err != nil || sessionID == "" {
		return authstate.State{}, nil
	}

	data, err := m.authenticator.ValidateSession(c.Request.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return authstate.State{}, nil
	}
	if err != nil {
		m.logger.Error("session lookup failed", zap.Error(err))
		return authstate.State{Err: err}, nil
	}
	return authstate.State{Identity: data.Identity()}, data
}
