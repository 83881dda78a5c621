// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"
	"time"

	"objettrouve-service/internal/domain/auth"
	"objettrouve-service/internal/middleware"
	xerrors "objettrouve-service/internal/pkg/errors"
	"objettrouve-service/internal/pkg/response"
	"objettrouve-service/internal/pkg/session"
	authUsecase "objettrouve-service/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.AuthService
	cookie      session.CookieOptions
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, cookie session.CookieOptions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		logger:      logger,
	}
}

// ========== Registration ==========

// Register creates an account with the identity provider (public endpoint)
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result := h.authService.Register(c.Request.Context(), &req)
	response.Result(c, http.StatusCreated, result)
}

func (h *AuthHandler) ConfirmRegistration(c *gin.Context) {
	var req auth.ConfirmRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	response.Result(c, http.StatusOK, h.authService.ConfirmRegistration(c.Request.Context(), &req))
}

func (h *AuthHandler) ResendConfirmation(c *gin.Context) {
	var req auth.ResendConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	response.Result(c, http.StatusOK, h.authService.ResendConfirmation(c.Request.Context(), &req))
}

// ========== Sign-in ==========

// SignIn authenticates and, on success, issues the session cookie.
// A pending challenge is answered with 200 and no cookie.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req auth.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	result, data := h.authService.SignIn(c.Request.Context(), &req)
	if data != nil {
		session.SetCookie(c.Writer, data.ID, data.ExpiresAt, h.cookie)
	}
	response.Result(c, http.StatusOK, result)
}

// CompleteChallenge answers NEW_PASSWORD_REQUIRED and issues the session cookie
func (h *AuthHandler) CompleteChallenge(c *gin.Context) {
	var req auth.CompleteChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	result, data := h.authService.CompleteChallenge(c.Request.Context(), &req)
	if data != nil {
		session.SetCookie(c.Writer, data.ID, data.ExpiresAt, h.cookie)
	}
	response.Result(c, http.StatusOK, result)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	response.Result(c, http.StatusOK, h.authService.Refresh(c.Request.Context(), &req))
}

// ========== Password reset ==========

// ForgotPassword always answers 200 to prevent email enumeration
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req auth.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	response.Result(c, http.StatusOK, h.authService.ForgotPassword(c.Request.Context(), req.Email))
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	response.Result(c, http.StatusOK, h.authService.ResetPassword(c.Request.Context(), &req))
}

// ========== Current user & sessions ==========

// CurrentUser returns the identity behind the session cookie or bearer token
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	sessionID, _ := c.Cookie(session.CookieName)

	identity, err := h.authService.CurrentUser(c.Request.Context(), sessionID, middleware.BearerToken(c))
	if err != nil {
		kind := xerrors.KindOf(err)
		if kind == "" {
			kind = xerrors.KindUnauthenticated
		}
		if sessionID != "" && kind == xerrors.KindUnauthenticated {
			session.ClearCookie(c.Writer, h.cookie)
		}
		response.Error(c, response.StatusForKind(kind), xerrors.MessageOrDefault(err, "authentication required"), nil)
		return
	}

	response.Success(c, http.StatusOK, "current user", identity)
}

// SignOut always succeeds; server and provider sessions are dropped best-effort
func (h *AuthHandler) SignOut(c *gin.Context) {
	sessionID, _ := c.Cookie(session.CookieName)

	h.authService.SignOut(c.Request.Context(), sessionID, middleware.BearerToken(c))
	session.ClearCookie(c.Writer, h.cookie)

	response.Success(c, http.StatusOK, "signed out", nil)
}

// SignOutAll ends every server session of the caller (requires session)
func (h *AuthHandler) SignOutAll(c *gin.Context) {
	subject := middleware.MustGetSubject(c)

	n, err := h.authService.SignOutEverywhere(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("sign out everywhere failed",
			zap.String("sub", subject),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "failed to sign out all sessions", nil)
		return
	}

	session.ClearCookie(c.Writer, h.cookie)
	response.Success(c, http.StatusOK, "all sessions signed out", gin.H{"sessions_ended": n})
}

type sessionView struct {
	ID             string    `json:"id"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Current        bool      `json:"current"`
}

// ListSessions lists the caller's server sessions (requires session)
func (h *AuthHandler) ListSessions(c *gin.Context) {
	subject := middleware.MustGetSubject(c)
	current := middleware.GetSessionID(c)

	sessions, err := h.authService.ListSessions(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("list sessions failed", zap.String("sub", subject), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to list sessions", nil)
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			ID:             session.PublicID(s.ID),
			IPAddress:      s.IPAddress,
			UserAgent:      s.UserAgent,
			LoginAt:        s.LoginAt,
			LastActivityAt: s.LastActivityAt,
			ExpiresAt:      s.ExpiresAt,
			Current:        s.ID == current,
		})
	}

	response.Success(c, http.StatusOK, "sessions", views)
}

// Profile returns the caller's local user record (cookie or bearer)
func (h *AuthHandler) Profile(c *gin.Context) {
	subject := middleware.MustGetSubject(c)

	user, err := h.authService.Profile(c.Request.Context(), subject)
	if errors.Is(err, xerrors.ErrNotFound) {
		response.Error(c, http.StatusNotFound, "no profile yet, sign in to create one", nil)
		return
	}
	if err != nil {
		h.logger.Error("profile lookup failed", zap.String("sub", subject), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to load profile", nil)
		return
	}

	response.Success(c, http.StatusOK, "profile", user)
}

// Status never fails: anonymous callers get authenticated=false
func (h *AuthHandler) Status(c *gin.Context) {
	data := gin.H{
		"authenticated": middleware.IsAuthenticated(c),
		"admin":         middleware.IsAdmin(c),
	}
	if identity, ok := middleware.GetIdentity(c); ok {
		data["identity"] = identity
	}
	response.Success(c, http.StatusOK, "auth status", data)
}

// ========== Server-rendered pages ==========

// AccountPage renders the signed-in account summary. Mounted behind RequirePage.
func (h *AuthHandler) AccountPage(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	name := identity.FullName()
	if name == "" {
		name = identity.Email
	}
	c.HTML(http.StatusOK, AccountTemplate, gin.H{
		"Name":     name,
		"Email":    identity.Email,
		"Verified": identity.EmailVerified,
		"Admin":    middleware.IsAdmin(c),
	})
}
