package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes bundles everything RegisterRoutes mounts
type Routes struct {
	Health *HealthHandler
	Queue  *QueueHandler
	Host   *HostHandler
	WS     *WSHandler

	// JoinLimit guards the join endpoint, nil disables it
	JoinLimit gin.HandlerFunc
	// CreateIdempotency guards queue creation, nil disables it
	CreateIdempotency gin.HandlerFunc
}

// RegisterRoutes mounts the HTTP and WebSocket API on router
func RegisterRoutes(router *gin.Engine, r *Routes) {
	// Health check endpoints
	router.GET("/health", r.Health.Health)
	router.GET("/ready", r.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		queues := api.Group("/queues")
		{
			queues.POST("", chain(r.CreateIdempotency, r.Queue.CreateQueue)...)
			queues.GET("/:id", r.Queue.GetQueue)
			queues.POST("/:id/join", chain(r.JoinLimit, r.Queue.Join)...)

			// Session exchange checks credentials itself
			queues.POST("/:id/host/session", r.Host.CreateSession)

			// Host-only endpoints
			host := queues.Group("/:id")
			host.Use(r.Host.RequireHost())
			{
				host.GET("/tickets", r.Host.ListTickets)
				host.POST("/tickets/:ticket_id/verify", r.Host.Verify)
				host.POST("/tickets/:ticket_id/no-show", r.Host.NoShow)
				host.POST("/pause", r.Host.Pause)
				host.POST("/resume", r.Host.Resume)
				host.DELETE("", r.Host.Deactivate)
			}
		}

		api.GET("/tickets/:id", r.Queue.GetTicket)
	}

	router.GET("/ws/queues/:id", r.WS.Watch)
}

func chain(mw gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if mw == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{mw, h}
}
