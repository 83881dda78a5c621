package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"objettrouve-service/internal/domain/auth"
	authHandler "objettrouve-service/internal/handlers/auth"
	wsHandler "objettrouve-service/internal/handlers/websocket"
	"objettrouve-service/internal/middleware"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/session"
	authUsecase "objettrouve-service/internal/service/auth"
	"objettrouve-service/internal/websocket"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	goodPassword = "Correct-horse-1"
	tempPassword = "Temporary-1"
)

// stubGateway accepts goodPassword, asks temp-password users for a new one and
// rejects everything else.
type stubGateway struct {
	signedOut []string
}

func identityFor(email string) *auth.Identity {
	return &auth.Identity{Subject: "sub-" + email, Email: email, GivenName: "Ada", EmailVerified: true}
}

func signedIn(email string) *auth.Result {
	return &auth.Result{
		Success:  true,
		Identity: identityFor(email),
		Session:  &auth.CredentialSession{AccessToken: "access-" + email, IDToken: "id", RefreshToken: "refresh"},
	}
}

func rejected(kind xerrors.Kind) *auth.Result {
	return &auth.Result{Code: string(kind), Message: "rejected"}
}

func (g *stubGateway) Register(context.Context, *auth.RegisterRequest) *auth.Result {
	return &auth.Result{Success: true, Message: "registered"}
}

func (g *stubGateway) ConfirmRegistration(_ context.Context, _, code string) *auth.Result {
	if code != "123456" {
		return rejected(xerrors.KindInvalidCode)
	}
	return &auth.Result{Success: true}
}

func (g *stubGateway) ResendConfirmation(context.Context, string) *auth.Result {
	return &auth.Result{Success: true}
}

func (g *stubGateway) Authenticate(_ context.Context, email, password string) *auth.Result {
	switch password {
	case goodPassword:
		return signedIn(email)
	case tempPassword:
		return &auth.Result{
			Challenge: &auth.Challenge{Kind: auth.ChallengeNewPasswordRequired, Session: "challenge-" + email, Username: email},
		}
	}
	return rejected(xerrors.KindNotAuthorized)
}

func (g *stubGateway) CompleteChallenge(_ context.Context, email, challengeSession, _ string) *auth.Result {
	if challengeSession != "challenge-"+email {
		return rejected(xerrors.KindExpiredSession)
	}
	return signedIn(email)
}

func (g *stubGateway) RequestPasswordReset(context.Context, string) *auth.Result {
	return &auth.Result{Success: true}
}

func (g *stubGateway) ConfirmPasswordReset(context.Context, string, string, string) *auth.Result {
	return rejected(xerrors.KindExpiredCode)
}

func (g *stubGateway) Refresh(context.Context, string, string) *auth.Result {
	return rejected(xerrors.KindNotAuthorized)
}

func (g *stubGateway) FetchIdentity(_ context.Context, accessToken string) *auth.Result {
	if accessToken == "access-bearer@example.com" {
		return &auth.Result{Success: true, Identity: identityFor("bearer@example.com")}
	}
	return rejected(xerrors.KindNotAuthorized)
}

func (g *stubGateway) SignOut(_ context.Context, accessToken string) *auth.Result {
	g.signedOut = append(g.signedOut, accessToken)
	return &auth.Result{Success: true}
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func (m *memoryUsers) UpsertFromIdentity(_ context.Context, identity *auth.Identity, roles []string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := &auth.User{CognitoSub: identity.Subject, Email: identity.Email, Roles: roles}
	m.users[identity.Subject] = user
	return user, nil
}

func (m *memoryUsers) GrantRoleByEmail(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *memoryUsers) FindBySubject(_ context.Context, subject string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[subject]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return user, nil
}

type routerFixture struct {
	engine  *gin.Engine
	gateway *stubGateway
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	sessions := session.NewManager(client, logger)

	hub := websocket.NewHub(sessions, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	gateway := &stubGateway{}
	metrics := middleware.NewMetrics("test")
	svc := authUsecase.NewAuthService(
		gateway,
		sessions,
		session.NewChallengeStore(client, session.ChallengeTTL),
		session.NewRateLimiter(client, session.DefaultLimits),
		&memoryUsers{users: map[string]*auth.User{}},
		hub,
		metrics,
		authUsecase.Options{SessionTTL: time.Hour, AdminEmails: []string{"admin@example.com"}},
		logger,
	)

	engine := gin.New()
	engine.Use(middleware.RecoveryMiddleware(logger), metrics.Middleware())
	SetupRouter(engine, &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(svc, session.CookieOptions{}, logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, nil, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(svc, logger),
		Metrics:        metrics,
		LoginPath:      "/login",
	})

	return &routerFixture{engine: engine, gateway: gateway}
}

func (f *routerFixture) signIn(t *testing.T, email string) *http.Cookie {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": email, "password": goodPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	return cookie
}

func (f *routerFixture) do(t *testing.T, method, path string, body interface{}, cookie *http.Cookie, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSignInSessionLifecycle(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "ada@example.com", "password": goodPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result auth.Result
	decode(t, w, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "ada@example.com", result.Identity.Email)

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	// current user from the cookie
	w = f.do(t, http.MethodGet, "/api/auth/user", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var user struct {
		Data auth.Identity `json:"data"`
	}
	decode(t, w, &user)
	assert.Equal(t, "sub-ada@example.com", user.Data.Subject)
	assert.Equal(t, []string{"user"}, user.Data.Roles)

	// listed sessions never expose the cookie value
	w = f.do(t, http.MethodGet, "/api/auth/sessions", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Data []struct {
			ID      string `json:"id"`
			Current bool   `json:"current"`
		} `json:"data"`
	}
	decode(t, w, &listed)
	require.Len(t, listed.Data, 1)
	assert.True(t, listed.Data[0].Current)
	assert.Equal(t, session.PublicID(cookie.Value), listed.Data[0].ID)
	assert.NotContains(t, w.Body.String(), cookie.Value)

	// sign out clears the cookie and kills the session
	w = f.do(t, http.MethodPost, "/api/auth/signout", nil, cookie, "Authorization", "Bearer access-ada@example.com")
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, []string{"access-ada@example.com"}, f.gateway.signedOut)

	w = f.do(t, http.MethodGet, "/api/auth/user", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotNil(t, sessionCookie(w), "dead cookie is cleared")
}

func TestSignInFailures(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "ada@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, sessionCookie(w))

	var result auth.Result
	decode(t, w, &result)
	assert.Equal(t, string(xerrors.KindNotAuthorized), result.Code)

	w = f.do(t, http.MethodPost, "/api/auth/signin", map[string]string{"email": "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChallengeFlow(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "new@example.com", "password": tempPassword}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sessionCookie(w))

	var result auth.Result
	decode(t, w, &result)
	require.NotNil(t, result.Challenge)
	assert.False(t, result.Success)
	assert.Equal(t, auth.ChallengeNewPasswordRequired, result.Challenge.Kind)

	body := map[string]string{
		"email":        "new@example.com",
		"session":      result.Challenge.Session,
		"new_password": "Brand-new-pass-1",
	}
	w = f.do(t, http.MethodPost, "/api/auth/challenge", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, sessionCookie(w))

	// the challenge session is single-use
	w = f.do(t, http.MethodPost, "/api/auth/challenge", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCurrentUserWithBearer(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/auth/user", nil, nil, "Authorization", "Bearer access-bearer@example.com")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bearer@example.com")

	w = f.do(t, http.MethodGet, "/api/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusMapping(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/confirm-signup",
		map[string]string{"email": "ada@example.com", "code": "000000"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"email": "ada@example.com", "password": goodPassword, "given_name": "Ada", "family_name": "Lovelace",
	}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/admin/ws/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "ada@example.com", "password": goodPassword}, nil)
	user := sessionCookie(w)
	require.NotNil(t, user)
	w = f.do(t, http.MethodGet, "/api/admin/ws/stats", nil, user)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "admin@example.com", "password": goodPassword}, nil)
	admin := sessionCookie(w)
	require.NotNil(t, admin)
	w = f.do(t, http.MethodGet, "/api/admin/ws/stats", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	f.do(t, http.MethodPost, "/api/auth/signin",
		map[string]string{"email": "ada@example.com", "password": "nope"}, nil)

	w := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_auth_outcomes_total{operation="sign_in",outcome="NotAuthorized"} 1`)
}

func TestRegisterNamesAreOptional(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": "ada@example.com", "password": goodPassword}, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/auth/signup",
		map[string]string{"email": "ada@example.com", "password": "short"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccountPage(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/account", nil, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Faccount", w.Header().Get("Location"))

	cookie := f.signIn(t, "ada@example.com")
	w = f.do(t, http.MethodGet, "/account", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<h1>Ada</h1>")
	assert.NotContains(t, w.Body.String(), "/api/admin/ws/stats")

	admin := f.signIn(t, "admin@example.com")
	w = f.do(t, http.MethodGet, "/account", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/admin/ws/stats")
}

func TestProfileAcceptsCookieOrBearer(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(t, http.MethodGet, "/api/users/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := f.signIn(t, "ada@example.com")
	w = f.do(t, http.MethodGet, "/api/users/me", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		Data auth.User `json:"data"`
	}
	decode(t, w, &profile)
	assert.Equal(t, "sub-ada@example.com", profile.Data.CognitoSub)
	assert.Equal(t, []string{"user"}, profile.Data.Roles)

	// a valid bearer that never signed in here has no local record
	w = f.do(t, http.MethodGet, "/api/users/me", nil, nil, "Authorization", "Bearer access-bearer@example.com")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/users/me", nil, nil, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthStatus(t *testing.T) {
	f := newRouterFixture(t)

	var status struct {
		Data struct {
			Authenticated bool           `json:"authenticated"`
			Admin         bool           `json:"admin"`
			Identity      *auth.Identity `json:"identity"`
		} `json:"data"`
	}

	w := f.do(t, http.MethodGet, "/api/auth/status", nil, nil, "Authorization", "Bearer forged")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.False(t, status.Data.Authenticated)
	assert.Nil(t, status.Data.Identity)

	w = f.do(t, http.MethodGet, "/api/auth/status", nil, f.signIn(t, "admin@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.True(t, status.Data.Authenticated)
	assert.True(t, status.Data.Admin)
	assert.Equal(t, "admin@example.com", status.Data.Identity.Email)
}
