package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"objettrouve-service/internal/client/guard"
	"objettrouve-service/internal/domain/auth"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	sessions   map[string]*session.SessionData
	tokens     map[string]*auth.Identity
	sessionErr error
}

func (f *fakeAuthenticator) ValidateSession(_ context.Context, id string) (*session.SessionData, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	if data, ok := f.sessions[id]; ok {
		return data, nil
	}
	return nil, session.ErrSessionNotFound
}

func (f *fakeAuthenticator) CurrentUser(_ context.Context, _, token string) (*auth.Identity, error) {
	if identity, ok := f.tokens[token]; ok {
		return identity, nil
	}
	return nil, xerrors.New(xerrors.KindUnauthenticated, "You are not signed in.")
}

func newFakeAuthenticator() *fakeAuthenticator {
	member := &auth.Identity{Subject: "sub-1", Email: "alice@example.com", Roles: []string{"user"}}
	admin := &auth.Identity{Subject: "sub-2", Email: "admin@example.com", Roles: []string{"user", "admin"}}
	return &fakeAuthenticator{
		sessions: map[string]*session.SessionData{
			"member-sid": session.NewSessionData("member-sid", member, "", "", time.Hour),
			"admin-sid":  session.NewSessionData("admin-sid", admin, "", "", time.Hour),
		},
		tokens: map[string]*auth.Identity{"good-token": member},
	}
}

func perform(r http.Handler, method, path, cookie, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: cookie})
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sub": MustGetSubject(c), "session": GetSessionID(c)})
}

func TestAuth_CookieAndBearer(t *testing.T) {
	m := NewAuthMiddleware(newFakeAuthenticator(), zap.NewNop())
	r := gin.New()
	r.GET("/me", m.Auth(), whoami)

	w := perform(r, http.MethodGet, "/me", "member-sid", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session":"member-sid"`)

	w = perform(r, http.MethodGet, "/me", "", "good-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session":""`)

	w = perform(r, http.MethodGet, "/me", "", "bad-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSession_RejectsBearer(t *testing.T) {
	m := NewAuthMiddleware(newFakeAuthenticator(), zap.NewNop())
	r := gin.New()
	r.GET("/sessions", m.RequireSession(), whoami)

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/sessions", "", "good-token").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/sessions", "member-sid", "").Code)
}

func TestAdminOnly(t *testing.T) {
	m := NewAuthMiddleware(newFakeAuthenticator(), zap.NewNop())
	r := gin.New()
	r.GET("/admin", append(m.AdminOnly(), whoami)...)

	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/admin", "member-sid", "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/admin", "admin-sid", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/admin", "", "").Code)
}

func TestRequirePage(t *testing.T) {
	authenticator := newFakeAuthenticator()
	m := NewAuthMiddleware(authenticator, zap.NewNop())
	r := gin.New()
	r.GET("/items/:id", m.RequirePage(guard.Options{RequireAuth: true, LoginPath: "/login"}), whoami)

	w := perform(r, http.MethodGet, "/items/42", "", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fitems%2F42", w.Header().Get("Location"))

	w = perform(r, http.MethodGet, "/items/42", "member-sid", "")
	assert.Equal(t, http.StatusOK, w.Code)

	authenticator.sessionErr = errors.New("redis down")
	w = perform(r, http.MethodGet, "/items/42", "member-sid", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoggingMiddleware_SetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := perform(r, http.MethodGet, "/ping", "", "")
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 26)
	assert.Equal(t, id, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_RejectsUnsafeRequestID(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, upstream := range []string{
		strings.Repeat("a", 65),
		"id with spaces",
		"id\"><script>",
	} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, upstream)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		got := w.Header().Get(RequestIDHeader)
		assert.NotEqual(t, upstream, got)
		assert.Len(t, got, 26)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetrics(t *testing.T) {
	metrics := NewMetrics("objettrouve")
	r := gin.New()
	r.Use(metrics.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", metrics.Handler())

	perform(r, http.MethodGet, "/ping", "", "")
	metrics.ObserveAuth("sign_in", "success")

	w := perform(r, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `objettrouve_http_requests_total{method="GET",route="/ping",status="204"} 1`))
	assert.Contains(t, body, `objettrouve_auth_outcomes_total{operation="sign_in",outcome="success"} 1`)
}

func TestCORSMiddleware_AllowsCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"http://localhost:5173"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
