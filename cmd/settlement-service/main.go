package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/app"
	"github.com/Dhoini/findxo-settlement/internal/config"
	grpcserver "github.com/Dhoini/findxo-settlement/internal/grpc"
	"github.com/Dhoini/findxo-settlement/internal/http/handlers"
	"github.com/Dhoini/findxo-settlement/internal/http/routes"
	"github.com/Dhoini/findxo-settlement/internal/middleware"
	"github.com/Dhoini/findxo-settlement/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Контекст фоновых задач; отменяется при остановке
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := initLogger()

	log.Infow("Settlement service starting up...")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfg.App.LogLevel != "" && os.Getenv("LOG_LEVEL") == "" {
		log = logger.New(logger.ParseLevel(cfg.App.LogLevel))
	}
	// Проверка наличия секрета JWT
	if cfg.Auth.JWTSecret == "" || cfg.Auth.JWTSecret == "YourVerySecretKeyHere" {
		log.Warnw("JWT Secret is not set or is using the default placeholder!")
	}

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize components", "error", err)
	}

	// Создаем валидатор токенов
	validator := &middleware.DefaultTokenValidator{
		Secret: []byte(cfg.Auth.JWTSecret),
	}
	application := app.NewApp(cfg, components, validator, log)

	router := gin.New()
	routes.SetupRoutes(router, application, log)

	httpServer := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		// Длинный опрос результата платежа держит соединение до MaxResultWait
		WriteTimeout: handlers.MaxResultWait + 10*time.Second,
	}

	go func() {
		log.Infow("Starting HTTP server", "port", cfg.App.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("Failed to start HTTP server", "error", err)
		}
	}()

	// --- Настройка gRPC сервера ---
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		log.Fatalw("Failed to listen for gRPC", "error", err)
	}

	grpcServer := grpcserver.NewServer(components.Probes, 15*time.Second, log)
	go grpcServer.Watch(ctx)

	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatalw("Failed to start gRPC server", "error", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	log.Infow("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	} else {
		log.Infow("HTTP server gracefully stopped")
	}

	log.Infow("Shutting down gRPC server")
	grpcServer.GracefulStop()
	log.Infow("gRPC server gracefully stopped")

	// Ждем фоновые наблюдения и отправку событий, затем закрываем соединения
	if err := components.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Settlement service shutdown error", "error", err)
	}
	_ = components.Close()

	log.Infow("Cleanup finished. Goodbye!")
	_ = log.Sync()
}

func initLogger() *logger.Logger {
	return logger.New(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
}
