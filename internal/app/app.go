package app

import (
	"net/http"

	"github.com/Dhoini/findxo-settlement/internal/config"
	"github.com/Dhoini/findxo-settlement/internal/http/handlers"
	"github.com/Dhoini/findxo-settlement/internal/middleware"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App представляет собой контейнер для всех компонентов HTTP слоя
type App struct {
	Config              *config.Config
	Components          *Components
	PaymentHandler      *handlers.PaymentHandler
	RateHandler         *handlers.RateHandler
	SubscriptionHandler *handlers.SubscriptionHandler
	HealthHandler       *handlers.HealthHandler
	AuthMiddleware      *middleware.JWTMiddleware
	LoggerMiddleware    gin.HandlerFunc
	MetricsHandler      http.Handler
	Logger              *logger.Logger
}

// NewApp создает и инициализирует новый экземпляр приложения
func NewApp(cfg *config.Config, components *Components, validator middleware.TokenValidator, log *logger.Logger) *App {
	service := components.Service

	var metricsHandler http.Handler
	if components.Registry != nil {
		metricsHandler = promhttp.HandlerFor(components.Registry, promhttp.HandlerOpts{})
	}

	return &App{
		Config:              cfg,
		Components:          components,
		PaymentHandler:      handlers.NewPaymentHandler(service, log),
		RateHandler:         handlers.NewRateHandler(service, log),
		SubscriptionHandler: handlers.NewSubscriptionHandler(service, log),
		HealthHandler:       handlers.NewHealthHandler(components.Probes, log),
		AuthMiddleware:      middleware.NewJWTMiddleware(validator, log),
		LoggerMiddleware:    middleware.RequestLogger(log),
		MetricsHandler:      metricsHandler,
		Logger:              log,
	}
}
