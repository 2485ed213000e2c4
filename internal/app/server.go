// internal/app/server.go
package app

import (
	"context"
	"fmt"

	"finditnow-auth/internal/config"
	"finditnow-auth/internal/db"
	authHandler "finditnow-auth/internal/handlers/auth"
	wsHandler "finditnow-auth/internal/handlers/websocket"
	"finditnow-auth/internal/interservice"
	"finditnow-auth/internal/middleware"
	"finditnow-auth/internal/pkg/session"
	"finditnow-auth/internal/pkg/token"
	"finditnow-auth/internal/registry"
	"finditnow-auth/internal/repository/postgres"
	authUsecase "finditnow-auth/internal/service/auth"
	"finditnow-auth/internal/service/email"
	"finditnow-auth/internal/service/profile"
	"finditnow-auth/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

// Start wires every dependency and blocks serving HTTP until the process
// exits or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.NewPostgresPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", s.cfg.RedisAddr))

	// ----- Token issuer -----
	issuer, err := token.NewIssuer(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to build token issuer: %w", err)
	}

	// ----- Stores -----
	authRepo := postgres.NewAuthRepository(pool)
	cache := session.NewStore(redisClient)

	// ----- Inter-service trust -----
	reg := registry.New(s.cfg.ServiceSecrets, s.cfg.CallGraph)
	isc := interservice.New(
		s.cfg.ServiceName,
		s.cfg.ServiceSecrets[s.cfg.ServiceName],
		s.cfg.AuthServiceURL,
		config.ResolveServiceURL,
		cache,
		logger,
	)
	profiles := profile.NewClient(isc)

	// ----- Email -----
	mailer := email.NewSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Session event hub -----
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// ----- Session manager -----
	authService := authUsecase.NewService(
		authRepo, cache, issuer, mailer, profiles, hub,
		s.cfg.RefreshTokenTTL, logger,
	)

	// ----- Sweeper -----
	sweeper := authUsecase.NewSweeper(authRepo, s.cfg.SweepInterval, logger)
	go sweeper.Run(ctx)

	// ----- HTTP -----
	authMW := middleware.NewAuthMiddleware(issuer, authService)

	handlers := &Handlers{
		AuthHandler:         authHandler.NewAuthHandler(authService, s.cfg.RefreshTokenTTL, logger),
		ServiceTokenHandler: authHandler.NewServiceTokenHandler(reg, issuer, logger),
		WSHandler:           wsHandler.NewHandler(hub, logger),
		AuthMiddleware:      authMW,
	}

	s.engine.Use(gin.Logger())
	s.engine.Use(middleware.RecoveryMiddleware(logger))
	SetupRouter(s.engine, handlers)

	logger.Info("auth service listening", zap.String("addr", s.cfg.HTTPAddr))
	return s.engine.Run(s.cfg.HTTPAddr)
}
