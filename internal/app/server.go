// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"accesscore-service/internal/config"
	"accesscore-service/internal/db"
	authHandler "accesscore-service/internal/handlers/auth"
	authzHandler "accesscore-service/internal/handlers/authz"
	"accesscore-service/internal/middleware"
	"accesscore-service/internal/pkg/ratelimit"
	"accesscore-service/internal/pkg/sessiontoken"
	"accesscore-service/internal/repository/postgres"
	authUsecase "accesscore-service/internal/service/auth"
	authzUsecase "accesscore-service/internal/service/authz"
	oauthsvc "accesscore-service/internal/service/oauth"
	"accesscore-service/internal/service/policy"
	sessionsvc "accesscore-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}, nil
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Println("[REDIS] connected successfully")

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	identityRepo := postgres.NewIdentityRepository(pool, dbWrapper)
	auditRepo := postgres.NewAuditLogRepository(pool)

	// ----- Session tokens -----
	codec, err := sessiontoken.NewCodec(s.cfg.AppSecret)
	if err != nil {
		return fmt.Errorf("failed to build session token codec: %w", err)
	}
	revocations := sessionsvc.NewRedisRevocationStore(redisClient)
	sessionService := sessionsvc.NewService(identityRepo, codec, revocations, s.cfg.SessionWindow, logger)

	// ----- Authorization gateway -----
	policyClient := policy.NewClient(s.cfg.PolicyEngineURL, s.cfg.PolicyDecisionPath, s.cfg.PolicyEngineTimeout)
	recentStore := authzUsecase.NewRedisRecentStore(redisClient, s.cfg.RecentHistoryMax)

	var decisionCache authzUsecase.DecisionCache
	if s.cfg.DecisionCacheTTL > 0 {
		decisionCache = authzUsecase.NewRedisDecisionCache(redisClient, s.cfg.DecisionCacheTTL)
	}
	gateway := authzUsecase.NewGateway(policyClient, recentStore, auditRepo, decisionCache, logger)

	// ----- Federated sign-in -----
	exchanger := oauthsvc.NewExchanger(
		[]oauthsvc.Provider{
			oauthsvc.NewGoogleProvider(s.cfg.Google),
			oauthsvc.NewGitHubProvider(s.cfg.GitHub),
		},
		s.cfg.Retry,
		logger,
	)
	limiter := ratelimit.NewLimiter(redisClient)
	authService := authUsecase.NewService(exchanger, identityRepo, sessionService, limiter, logger)

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, logger)
	authzHandlerInst := authzHandler.NewAuthzHandler(gateway, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(sessionService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:    authHandlerInst,
		AuthzHandler:   authzHandlerInst,
		AuthMiddleware: authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
