package routes

import (
	"github.com/Dhoini/findxo-settlement/internal/app"
	"github.com/Dhoini/findxo-settlement/internal/middleware"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/gin-gonic/gin"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, app *app.App, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(app.LoggerMiddleware)
	router.Use(gin.Recovery())

	if app.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(app.MetricsHandler))
	}

	api := router.Group("/api/v1")
	{
		// Публичные маршруты
		api.GET("/health", app.HealthHandler.Health)
		api.GET("/rates", app.RateHandler.GetRate)

		// Защищенные маршруты (требуют аутентификации)
		auth := api.Group("")
		auth.Use(app.AuthMiddleware.RequireAuth())

		payments := auth.Group("/payments")
		{
			payments.POST("", app.PaymentHandler.Initiate)
			payments.GET("/:handle", app.PaymentHandler.Result)
			payments.POST("/:handle/reference", app.PaymentHandler.SubmitReference)
			payments.POST("/:handle/submit", app.PaymentHandler.SubmitTransaction)
			payments.POST("/:handle/watch", app.PaymentHandler.Watch)
		}

		auth.GET("/subscriptions/status", app.SubscriptionHandler.Status)

		admin := api.Group("/admin")
		admin.Use(app.AuthMiddleware.RequireAuth(middleware.ScopeAdmin))
		{
			admin.POST("/subscriptions/reconcile", app.SubscriptionHandler.Reconcile)
		}
	}

	log.Infow("API routes successfully configured")
}
