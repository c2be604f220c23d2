package main // Entry point package

import (
	"context"
	"log" // startup failures happen before zap is configured
	"time"

	"github.com/joho/godotenv"    // .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework
	"go.uber.org/zap"

	"github.com/trove/ticket-trove/internal/cache"
	"github.com/trove/ticket-trove/internal/config"
	"github.com/trove/ticket-trove/internal/database"
	"github.com/trove/ticket-trove/internal/handler"
	"github.com/trove/ticket-trove/internal/logger"
	"github.com/trove/ticket-trove/internal/middleware"
	"github.com/trove/ticket-trove/internal/queue"
	"github.com/trove/ticket-trove/internal/repository"
	"github.com/trove/ticket-trove/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load() // Load environment config
	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(ctx, db)
	cancel()
	if err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	// Redis backs the ticket mirror, response caching and rate limiting.
	// A nil client disables all three; the store keeps working alone.
	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, running without cache mirror and rate limiting")
	}

	concertStore := repository.NewConcertStore(db)
	ticketRepo := repository.NewTicketRepo(db)

	// Interface-typed nils stay nil so handlers can check for a missing
	// mirror instead of calling into a dead client.
	var ticketMirror handler.TicketMirror
	var concertMirror handler.ConcertMirror
	if rdb != nil {
		mirror := cache.NewTicketCache(rdb)
		ticketMirror = mirror
		concertMirror = mirror
	}

	concertHandler := handler.NewConcertHandler(concertStore, concertStore.Grades, concertMirror)
	ticketHandler := handler.NewTicketHandler(concertStore, concertStore.Grades, ticketRepo, ticketMirror)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(middleware.RequestLogger())

	router.RegisterRoutes(e) // Register application routes
	router.RegisterConcert(e, concertHandler, rdb)
	router.RegisterTicket(e, ticketHandler, rdb)

	// Background consumer mirrors ticket lifecycle events into
	// logs/ticket.log; it reconnects on its own and never stops the server.
	go func() {
		if err := queue.StartTicketConsumer(); err != nil {
			logger.Warn("ticket consumer stopped", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
