package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KaranNegi08/chatZila/internal/auth"
	"github.com/KaranNegi08/chatZila/internal/config"
	"github.com/KaranNegi08/chatZila/internal/events"
	"github.com/KaranNegi08/chatZila/internal/handlers"
	"github.com/KaranNegi08/chatZila/internal/hub"
	"github.com/KaranNegi08/chatZila/internal/logger"
	"github.com/KaranNegi08/chatZila/internal/middleware"
	"github.com/KaranNegi08/chatZila/internal/presence"
	"github.com/KaranNegi08/chatZila/internal/repository"
	"github.com/KaranNegi08/chatZila/internal/routes"
	"github.com/KaranNegi08/chatZila/internal/service"
)

// Server owns every dependency so shutdown can release them in order.
type Server struct {
	cfg   *config.Config
	app   *fiber.App
	store *repository.Store
	redis *redis.Client
	pub   events.Publisher
	hub   *hub.Hub
	log   *zap.SugaredLogger
}

func NewServer(cfg *config.Config, lg *zap.SugaredLogger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := repository.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var pres presence.Store = presence.Nop{}
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pres = presence.NewRedisStore(redisClient, cfg.Redis.Prefix)
	}

	pub := events.New(cfg.Kafka.Brokers, lg)
	jwtMgr := auth.NewManager(cfg.JWT.Secret, cfg.TokenTTL)

	h := hub.New(store.Rooms, cfg.WS.SendBufferSize, lg)

	roomSvc := service.NewRoomService(store.Rooms, store.Users, pres, lg)
	msgSvc := service.NewMessageService(store.Rooms, store.Messages, store.Users, h, pub, lg)
	workflowSvc := service.NewWorkflowService(store.Rooms, store.Users, store.Notifications, h, pub, lg)

	wsCfg := handlers.WSConfig{
		PingInterval:  cfg.PingInterval,
		WriteDeadline: cfg.WriteDeadline,
		MaxMsgSize:    cfg.WS.MaxMessageSizeBytes,
	}

	app := fiber.New()
	app.Use(middleware.Recovery(lg))
	app.Use(middleware.RequestLogger(lg))

	routes.Register(app, routes.Handlers{
		Auth:          handlers.NewAuthHandler(store.Users, jwtMgr, lg),
		Rooms:         handlers.NewRoomHandler(roomSvc, workflowSvc),
		Messages:      handlers.NewMessageHandler(msgSvc),
		Notifications: handlers.NewNotificationHandler(workflowSvc),
		WS:            handlers.NewWSHandler(h, msgSvc, store.Users, pres, jwtMgr, wsCfg, lg),
		JWT:           middleware.JWT(jwtMgr),
	})

	return &Server{
		cfg:   cfg,
		app:   app,
		store: store,
		redis: redisClient,
		pub:   pub,
		hub:   h,
		log:   lg,
	}, nil
}

func (s *Server) Start() {
	go func() {
		s.log.Infow("starting server", "port", s.cfg.App.Port)
		if err := s.app.Listen(":" + s.cfg.App.Port); err != nil {
			s.log.Fatalw("server exited", "err", err)
		}
	}()
}

func (s *Server) Shutdown() {
	s.log.Info("shutting down")

	s.hub.Close()

	if err := s.pub.Close(); err != nil {
		s.log.Errorw("close publisher", "err", err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Errorw("close redis", "err", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.log.Errorw("shutdown http", "err", err)
	}
	if err := s.store.Disconnect(ctx); err != nil {
		s.log.Errorw("disconnect mongo", "err", err)
	}

	s.log.Info("stopped")
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("jwt secret is required (jwt.secret or APP_JWT_SECRET)")
	}

	lg, err := logger.New(logger.Config{
		Development: cfg.App.Env != "production",
		Level:       cfg.Log.Level,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	server, err := NewServer(cfg, lg)
	if err != nil {
		lg.Fatalw("init server", "err", err)
	}
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Infow("signal received", "signal", sig.String())

	server.Shutdown()
}
