package di

import (
	"time"

	"github.com/YogevSaadon/Qode/internal/auth"
	"github.com/YogevSaadon/Qode/internal/handler"
	"github.com/YogevSaadon/Qode/internal/notifier"
	"github.com/YogevSaadon/Qode/internal/repository"
	"github.com/YogevSaadon/Qode/internal/service"
	"github.com/YogevSaadon/Qode/pkg/logger"
	"github.com/YogevSaadon/Qode/pkg/middleware"
	"github.com/YogevSaadon/Qode/pkg/redis"
	"github.com/gin-gonic/gin"
)

// Container holds all dependencies for the Qode API
type Container struct {
	// Infrastructure
	Store     repository.Store
	Redis     *redis.Client
	Publisher *service.AsyncEventPublisher

	// Fan-out
	Notifier *notifier.Notifier
	Relay    *notifier.RedisRelay

	// Services
	Sessions         *auth.SessionManager
	TicketingService service.TicketingService

	// Handlers
	HealthHandler *handler.HealthHandler
	QueueHandler  *handler.QueueHandler
	HostHandler   *handler.HostHandler
	WSHandler     *handler.WSHandler

	// Route middleware
	JoinLimit         gin.HandlerFunc
	CreateIdempotency gin.HandlerFunc
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	AppName   string
	Store     repository.Store
	Redis     *redis.Client
	Publisher service.EventPublisher
	Logger    *logger.Logger

	SecretKey          string
	HostSessionTTL     time.Duration
	CORSOrigins        []string
	RateLimitPerMinute int
	SendTimeout        time.Duration
	EventBufferSize    int
	EventTimeout       time.Duration
	Now                func() time.Time
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	c := &Container{
		Store: cfg.Store,
		Redis: cfg.Redis,
	}

	// Events leave the request path; the worker owns delivery to the broker
	var publisher service.EventPublisher = service.NewNoOpEventPublisher()
	if cfg.Publisher != nil {
		publisher = cfg.Publisher
	}
	c.Publisher = service.NewAsyncEventPublisher(publisher, &service.AsyncPublisherConfig{
		BufferSize: cfg.EventBufferSize,
		Timeout:    cfg.EventTimeout,
		Logger:     log,
	})

	// Observers always attach to the local notifier; Redis relays across instances
	c.Notifier = notifier.New(cfg.SendTimeout, log)
	var broadcaster notifier.Broadcaster = c.Notifier
	if c.Redis != nil {
		c.Relay = notifier.NewRedisRelay(c.Redis, c.Notifier, log)
		broadcaster = c.Relay
	}

	// Initialize services
	c.Sessions = auth.NewSessionManager(cfg.SecretKey, cfg.HostSessionTTL)
	c.TicketingService = service.NewTicketingService(
		c.Store,
		broadcaster,
		c.Publisher,
		auth.NewAuthorizer(c.Sessions),
		&service.ServiceConfig{Now: cfg.Now, Logger: log},
	)

	// Initialize handlers
	checks := map[string]handler.Pinger{"store": c.Store}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(cfg.AppName, checks)
	c.QueueHandler = handler.NewQueueHandler(c.TicketingService)
	c.HostHandler = handler.NewHostHandler(c.TicketingService)
	c.WSHandler = handler.NewWSHandler(c.TicketingService, c.Notifier, cfg.CORSOrigins, log)

	// Join rate limiting is shared through Redis when available
	if cfg.RateLimitPerMinute > 0 {
		var limiter middleware.Limiter
		if c.Redis != nil {
			limiter = middleware.NewRedisLimiter(c.Redis, cfg.RateLimitPerMinute, time.Minute)
		} else {
			limiter = middleware.NewLocalLimiter(cfg.RateLimitPerMinute, time.Minute)
		}
		c.JoinLimit = middleware.RateLimit(limiter, "join", log)
	}
	if c.Redis != nil {
		c.CreateIdempotency = middleware.Idempotency(middleware.DefaultIdempotencyConfig(c.Redis))
	}

	return c
}

// Routes returns the route table for handler.RegisterRoutes
func (c *Container) Routes() *handler.Routes {
	return &handler.Routes{
		Health:            c.HealthHandler,
		Queue:             c.QueueHandler,
		Host:              c.HostHandler,
		WS:                c.WSHandler,
		JoinLimit:         c.JoinLimit,
		CreateIdempotency: c.CreateIdempotency,
	}
}
