package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duocall/internal/core/services"
	httphandlers "duocall/internal/handlers/http"
	"duocall/internal/infrastructure/distributed"
	"duocall/internal/infrastructure/middleware"
	"duocall/internal/infrastructure/monitoring"
	"duocall/internal/infrastructure/repositories"
	signalinfra "duocall/internal/infrastructure/signal"
	"duocall/pkg/config"
	"duocall/pkg/logger"
	"duocall/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/duocall/config.yaml",
	"config.yaml",
}

func loadConfig() (*config.Config, string, error) {
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	// No file: defaults plus DUOCALL_* overrides.
	cfg, err := config.Load(configPaths[0])
	return cfg, "", err
}

func main() {
	startTime := time.Now()

	cfg, configPath, err := loadConfig()
	if err != nil {
		logger.New("info").Sugar().Fatalw("failed to load configuration", "error", err)
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if configPath != "" {
		log.Infow("loaded configuration", "path", configPath)
	} else {
		log.Info("no configuration file found, using defaults")
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	relayOpts := []services.RelayOption{services.WithSignalMetrics(collector)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var bus *distributed.RelayBus
	if client := repoFactory.RedisClient(); client != nil {
		instanceID := uuid.NewString()
		bus = distributed.NewRelayBus(client, instanceID, "", log)
		relayOpts = append(relayOpts, services.WithRemoteDelivery(bus))
		log.Infow("cross-instance relay enabled", "instance_id", instanceID)
	}

	relay := services.NewRelayService(
		repoFactory.CreateIdentityRegistry(),
		repoFactory.CreateRoomMatcher(),
		log,
		relayOpts...,
	)
	if bus != nil {
		go func() {
			if err := bus.Subscribe(ctx, relay); err != nil && ctx.Err() == nil {
				log.Errorw("relay bus subscription ended", "error", err)
			}
		}()
	}

	credentials := services.NewCredentialStore(cfg.Auth.Users)
	if credentials.Len() == 0 {
		log.Warn("no users configured, seeding demo credentials")
		credentials, err = services.DemoCredentialStore(cfg.Auth.BcryptCost)
		if err != nil {
			log.Fatalw("failed to seed demo credentials", "error", err)
		}
	}
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, credentials)

	wsServer := signalinfra.NewWebSocketServer(relay, signalinfra.OptionsFromConfig(cfg), log)
	authHandler := httphandlers.NewAuthHandler(authService)

	health := monitoring.NewHealthChecker()
	health.AddCheck("redis", 2*time.Second, repoFactory.HealthCheck)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)
	router.GET("/ws", middleware.AuthMiddleware(authService), wsServer.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		body := wsServer.HealthCheck()
		body["timestamp"] = time.Now()
		body["uptime"] = time.Since(startTime).String()
		c.JSON(http.StatusOK, body)
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		if !status.Healthy() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    time.Now(),
				"dependencies": status,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"timestamp":    time.Now(),
			"dependencies": status,
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting duocall signaling server",
			"address", cfg.Server.Address,
			"policy", cfg.Matching.Policy,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	cancel()
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Errorw("error closing relay bus", "error", err)
		}
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer provider", "error", err)
	}

	log.Info("duocall signaling server stopped")
}
