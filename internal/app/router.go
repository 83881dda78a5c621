// internal/app/router.go
package app

import (
	"net/http"

	authHandler "objettrouve-service/internal/handlers/auth"
	wsHandler "objettrouve-service/internal/handlers/websocket"
	"objettrouve-service/internal/client/guard"
	"objettrouve-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *middleware.Metrics

	// LoginPath is where guarded pages send anonymous visitors
	LoginPath string
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	// ==================== Health & Metrics ====================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Metrics != nil {
		r.GET("/metrics", h.Metrics.Handler())
	}

	// ==================== Server-rendered Pages ====================
	r.SetHTMLTemplate(authHandler.Templates)
	pages := r.Group("/account")
	pages.Use(h.AuthMiddleware.RequirePage(guard.Options{RequireAuth: true, LoginPath: h.LoginPath}))
	{
		pages.GET("", h.AuthHandler.AccountPage)
	}

	api := r.Group("/api")

	// ==================== WebSocket ====================
	api.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/signup", h.AuthHandler.Register)
		authPublic.POST("/confirm-signup", h.AuthHandler.ConfirmRegistration)
		authPublic.POST("/resend-confirmation", h.AuthHandler.ResendConfirmation)
		authPublic.POST("/signin", h.AuthHandler.SignIn)
		authPublic.POST("/challenge", h.AuthHandler.CompleteChallenge)
		authPublic.POST("/forgot-password", h.AuthHandler.ForgotPassword)
		authPublic.POST("/reset-password", h.AuthHandler.ResetPassword)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)

		// resolve credentials themselves so they can answer 401 or clear a dead cookie
		authPublic.GET("/user", h.AuthHandler.CurrentUser)
		authPublic.POST("/signout", h.AuthHandler.SignOut)
	}

	api.GET("/auth/status", h.AuthMiddleware.OptionalAuth(), h.AuthHandler.Status)

	// ==================== Cookie or Bearer ====================
	users := api.Group("/users")
	users.Use(h.AuthMiddleware.Auth())
	{
		users.GET("/me", h.AuthHandler.Profile)
	}

	// ==================== Session-only Auth Routes ====================
	authSession := api.Group("/auth")
	authSession.Use(h.AuthMiddleware.RequireSession())
	{
		authSession.POST("/signout-all", h.AuthHandler.SignOutAll)
		authSession.GET("/sessions", h.AuthHandler.ListSessions)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
