package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"wedding-sync-server/internal/config"
	"wedding-sync-server/internal/handler"
	"wedding-sync-server/internal/logging"
	"wedding-sync-server/internal/middleware"
	"wedding-sync-server/internal/repository"
	"wedding-sync-server/internal/service"
	"wedding-sync-server/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := repository.NewPostgresPool(ctx, cfg.Database.URL())
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	var dedup repository.DedupStore
	if cfg.Redis.Enabled {
		redisClient, err := repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer redisClient.Close()
		dedup = repository.NewRedisDedupStore(redisClient, cfg.Sync.DedupWindow)
		logger.Info("using redis dedup store", zap.Duration("window", cfg.Sync.DedupWindow))
	} else {
		dedup = repository.NewMemoryDedupStore(cfg.Sync.DedupWindow)
		logger.Info("using in-memory dedup store", zap.Duration("window", cfg.Sync.DedupWindow))
	}

	eventRepo := repository.NewEventRepository(pool)
	guestRepo := repository.NewGuestRepository(pool)
	tableRepo := repository.NewTableRepository(pool)
	venueRepo := repository.NewVenueRepository(pool)

	registry := websocket.NewRegistry()
	hub := websocket.NewHub(registry, websocket.HubOptions{
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		EvictionInterval: cfg.Sync.EvictionInterval,
		IdleThreshold:    cfg.Sync.IdleThreshold,
	}, logger)
	bus := websocket.NewEventBus(hub, logger)

	snapshotService := service.NewSnapshotService(eventRepo, guestRepo, tableRepo, venueRepo, logger)
	intakeService := service.NewIntakeService(
		guestRepo, tableRepo, venueRepo,
		dedup, bus,
		cfg.Sync.MaxRetries, cfg.Sync.RetryBackoffBase,
		logger,
	)

	dispatcher := handler.NewSyncMessageDispatcher(hub, snapshotService, bus, logger)
	hub.SetMessageHandler(dispatcher)
	go hub.Run(ctx)

	wsHandler := handler.NewWebSocketHandler(hub, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, logger)
	syncHandler := handler.NewSyncHandler(intakeService, snapshotService, logger)

	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sync/operations", syncHandler.SubmitOperation).Methods("POST", "OPTIONS")
	api.HandleFunc("/sync/snapshot/{eventId}", syncHandler.GetSnapshot).Methods("GET", "OPTIONS")

	r.HandleFunc("/ws", wsHandler.HandleConnection)
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting wedding sync server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"wedding-sync-server"}`))
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"service":"wedding-sync-server","websocket":"/ws","api":"/api"}`))
}
