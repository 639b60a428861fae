package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/unithread/chat-service/internal/auth"
	"github.com/unithread/chat-service/internal/cache"
	"github.com/unithread/chat-service/internal/client"
	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/database"
	"github.com/unithread/chat-service/internal/domain"
	"github.com/unithread/chat-service/internal/events"
	"github.com/unithread/chat-service/internal/handler"
	"github.com/unithread/chat-service/internal/hub"
	"github.com/unithread/chat-service/internal/locks"
	"github.com/unithread/chat-service/internal/log"
	"github.com/unithread/chat-service/internal/middleware"
	"github.com/unithread/chat-service/internal/notifier"
	"github.com/unithread/chat-service/internal/pubsub"
	"github.com/unithread/chat-service/internal/registry"
	"github.com/unithread/chat-service/internal/repository"
	"github.com/unithread/chat-service/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.L().Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	log.Init(log.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
	})
	logger := log.L()

	// Connect to database using GORM
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.RoomModel{}, &domain.ParticipantModel{}, &domain.UserModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Message store
	messageRepo, err := repository.NewCassandraMessageRepository(cfg.Cassandra)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to cassandra")
	}
	defer messageRepo.Close()
	logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Msg("cassandra connected")

	// Redis pub/sub, also provides the shared Redis client
	ps, err := pubsub.NewRedisPubSub(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer ps.Close()
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	// Notification sink
	notif, err := notifier.NewKafkaNotifier(cfg.Kafka)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to kafka")
	}
	defer notif.Close()
	logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer ready")

	// Repositories and collaborators
	roomRepo := repository.NewGormRoomRepository(db)
	userDir := repository.NewGormUserDirectory(db)
	historyCache := cache.NewRedisHistoryCache(ps.GetClient(), cfg.Cache.Prefix)
	blockList := client.NewRedisBlockList(ps.GetClient(), cfg.Redis)

	// Per-room write serialization and the live session registry
	roomLocks := locks.NewKeyed()
	sessionRegistry := registry.NewStripedRegistry()

	// Post-commit effect dispatcher
	dispatcher := events.New(roomRepo, roomLocks, ps, notif, cfg.Dispatcher.QueueSize)
	dispatcher.Start()
	defer dispatcher.Close()

	// Services
	validator := service.NewRoomValidator(roomRepo, userDir)
	roomSvc := service.NewRoomService(roomRepo, validator, blockList, dispatcher, roomLocks)
	chatSvc := service.NewChatService(roomRepo, messageRepo, dispatcher, ps, historyCache, cfg.Cache.TTL, roomLocks)
	sessionSvc := service.NewSessionService(roomRepo, messageRepo, sessionRegistry, dispatcher, roomLocks)

	// WebSocket hub and its delivery bridge
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Auth
	authManager := auth.NewManager(cfg.Auth)
	authMiddleware := middleware.NewAuthMiddleware(authManager)

	// Handlers
	httpHandler := handler.NewHandler(roomSvc, chatSvc, authMiddleware)
	wsHandler := handler.NewWSHandler(wsHub, sessionSvc, chatSvc, authManager, cfg.WebSocket)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(log.GinMiddleware(logger))
	httpHandler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.NewBridge(wsHub, ps).Run(gctx)
	})

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("chat service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("service exited with error")
	}
	logger.Info().Msg("chat service stopped")
}
