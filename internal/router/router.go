package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/trove/ticket-trove/internal/config"
	"github.com/trove/ticket-trove/internal/handler"
	"github.com/trove/ticket-trove/internal/middleware"
)

// RegisterRoutes registers routes that have no dependencies on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems probe this endpoint to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterConcert registers the concert CRUD endpoints.  Concert reads
// are cheap to cache: the response cache middleware is applied to the
// GET routes when a Redis client is available.
func RegisterConcert(e *echo.Echo, h *handler.ConcertHandler, rdb *redis.Client) {
	g := e.Group("/api/v1/concert")
	g.POST("", h.CreateConcert)
	g.PATCH("", h.UpdateConcert)
	g.DELETE("/:concertId", h.DeleteConcert)

	respCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	g.GET("", h.ListConcerts, respCache)
	g.GET("/:concertId", h.GetConcert, respCache)
}

// RegisterTicket registers the purchase, cancellation and read
// endpoints for tickets.  The write endpoints sit behind the Redis
// token-bucket rate limiter so a ticketing rush cannot starve the
// database; reads go through uncached since the mirror already serves
// them.
func RegisterTicket(e *echo.Echo, h *handler.TicketHandler, rdb *redis.Client) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	g := e.Group("/api/v1/ticket")
	g.POST("", h.Purchase, limiter)
	g.DELETE("", h.Cancel, limiter)
	g.GET("", h.GetTicket)
	g.GET("/concert/:concertId", h.ListConcertTickets)
	g.POST("/concert/:concertId/reconcile", h.Reconcile, limiter)
}
