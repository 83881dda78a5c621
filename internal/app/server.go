// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"objettrouve-service/internal/config"
	"objettrouve-service/internal/db"
	authHandler "objettrouve-service/internal/handlers/auth"
	wsHandler "objettrouve-service/internal/handlers/websocket"
	"objettrouve-service/internal/middleware"
	"objettrouve-service/internal/pkg/cognito"
	"objettrouve-service/internal/pkg/jwt"
	"objettrouve-service/internal/pkg/session"
	"objettrouve-service/internal/repository/postgres"
	authUsecase "objettrouve-service/internal/service/auth"
	"objettrouve-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg         config.AppConfig
	engine      *gin.Engine
	httpServer  *http.Server
	logger      *zap.Logger
	authService *authUsecase.AuthService

	pool     *pgxpool.Pool
	redis    redis.UniversalClient
	stopHub  context.CancelFunc
	stopKeys context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires every dependency and serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	s.pool = pool
	if err := db.RunUsersMigration(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	s.logger.Info("connected to postgres")

	// ----- Redis -----
	redisClient, err := db.NewRedis(db.RedisConfig{
		ClusterMode: s.cfg.RedisCluster,
		Addresses:   s.cfg.RedisAddresses(),
		Password:    s.cfg.RedisPass,
		DB:          0,
		PoolSize:    10,
	})
	if err != nil {
		return err
	}
	s.redis = redisClient
	s.logger.Info("connected to redis", zap.Bool("cluster", s.cfg.RedisCluster))

	// ----- Cognito -----
	signer, err := cognito.NewSigner(s.cfg.Cognito.ClientID, s.cfg.Cognito.ClientSecret)
	if err != nil {
		return err
	}
	cognitoClient, err := cognito.NewClient(ctx, s.cfg.Cognito.Region)
	if err != nil {
		return err
	}

	var verifier authUsecase.IdentityVerifier
	if s.cfg.Cognito.VerifyTokens {
		keysCtx, cancel := context.WithCancel(context.Background())
		s.stopKeys = cancel
		issuer := cognito.IssuerURL(s.cfg.Cognito.Region, s.cfg.Cognito.UserPoolID)
		verifier = jwt.NewVerifier(keysCtx, issuer, s.cfg.Cognito.ClientID)
	} else {
		s.logger.Warn("ID token signature verification is disabled")
	}

	// ----- Sessions -----
	sessionManager := session.NewManager(redisClient, s.logger)
	challengeStore := session.NewChallengeStore(redisClient, session.ChallengeTTL)
	rateLimiter := session.NewRateLimiter(redisClient, session.DefaultLimits)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(sessionManager, s.logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	s.stopHub = stopHub
	go hub.Run(hubCtx)

	// ----- Services -----
	metrics := middleware.NewMetrics("objettrouve")
	gateway := authUsecase.NewCognitoGateway(cognitoClient, signer, verifier, s.logger)
	s.authService = authUsecase.NewAuthService(
		gateway,
		sessionManager,
		challengeStore,
		rateLimiter,
		postgres.NewUserRepository(pool),
		hub,
		metrics,
		authUsecase.Options{
			SessionTTL:  s.cfg.SessionTTL,
			AdminEmails: s.cfg.AdminEmails,
		},
		s.logger,
	)

	adminCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := s.authService.EnsureAdminRoles(adminCtx); err != nil {
		// not fatal; admins get the role on their next sign-in
		s.logger.Error("failed to ensure admin roles", zap.Error(err))
	}
	cancel()

	// ----- Handlers & Router -----
	cookie := session.CookieOptions{Secure: s.cfg.CookieSecure, Domain: s.cfg.CookieDomain}
	handlers := &Handlers{
		AuthHandler:    authHandler.NewAuthHandler(s.authService, cookie, s.logger),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, s.logger),
		AuthMiddleware: middleware.NewAuthMiddleware(s.authService, s.logger),
		Metrics:        metrics,
		LoginPath:      s.cfg.LoginPath,
	}

	s.engine.Use(
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingMiddleware(s.logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
		metrics.Middleware(),
	)
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains HTTP, stops the hub and closes the pools
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.stopHub != nil {
		s.stopHub()
	}
	if s.stopKeys != nil {
		s.stopKeys()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
