package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gotow/internal/handlers"
	"gotow/internal/middleware"
	"gotow/internal/services"
	"gotow/internal/utils"
	"gotow/pkg/websocket"
)

// SetupDispatchRoutes wires the towing dispatch API
func SetupDispatchRoutes(
	r *gin.RouterGroup,
	requestHandler *handlers.RequestHandler,
	providerHandler *handlers.ProviderHandler,
	wsHandler *websocket.Handler,
	cache services.CacheService,
	jwtSecret string,
) {
	// Requester routes
	emergency := r.Group("/emergency")
	emergency.Use(middleware.AuthRequired(jwtSecret))
	{
		emergency.POST("/request",
			middleware.RateLimitMiddleware(cache, "submit", utils.SubmitRateLimit, time.Minute),
			requestHandler.SubmitRequest)
		emergency.GET("/request/:id", requestHandler.GetRequest)
		emergency.POST("/request/:id/cancel", requestHandler.CancelRequest)
		emergency.GET("/request/:id/events", requestHandler.GetRequestEvents)
		emergency.GET("/requests/active", requestHandler.GetActiveRequests)
		emergency.GET("/requests/history", requestHandler.GetRequestHistory)

		// Provider side of the dispatch flow
		emergency.POST("/respond", middleware.ProviderRequired(), providerHandler.Respond)
		emergency.GET("/pending", middleware.ProviderRequired(), providerHandler.GetPendingOffers)
	}

	// Provider routes
	providers := r.Group("/providers")
	providers.Use(middleware.AuthRequired(jwtSecret))
	{
		providers.POST("/register", providerHandler.Register)
		providers.GET("/me", providerHandler.GetProfile)

		dispatch := providers.Group("")
		dispatch.Use(middleware.ProviderRequired())
		{
			dispatch.POST("/requests/:id/progress", providerHandler.Progress)
			dispatch.GET("/deliveries", providerHandler.DrainDeliveries)
			dispatch.PUT("/availability", providerHandler.SetAvailability)
			dispatch.PUT("/location", providerHandler.UpdateLocation)
			dispatch.POST("/device-tokens", providerHandler.AddDeviceToken)
			dispatch.DELETE("/device-tokens/:token", providerHandler.RemoveDeviceToken)
		}
	}

	// Realtime updates
	ws := r.Group("/ws")
	ws.Use(middleware.AuthRequired(jwtSecret))
	{
		ws.GET("", wsHandler.HandleWebSocket)
	}
}

// SetupHealthRoutes exposes liveness endpoints outside the API group
func SetupHealthRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": utils.AppName,
			"version": utils.AppVersion,
		})
	})
}
