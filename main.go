package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quorumsec/auditcore/internal/api"
	"github.com/quorumsec/auditcore/internal/config"
	"github.com/quorumsec/auditcore/internal/logger"
	"github.com/quorumsec/auditcore/internal/models"
	"github.com/quorumsec/auditcore/internal/monitoring"
	"github.com/quorumsec/auditcore/internal/services"
	"github.com/quorumsec/auditcore/internal/siem"
	"github.com/quorumsec/auditcore/internal/websocket"
	"github.com/rs/zerolog/log"
)

// feedSink forwards each accepted event to the live websocket feed.
// The send is non-blocking: a saturated feed drops frames rather than
// stalling the producer path.
type feedSink struct {
	hub *websocket.Hub
}

func (f feedSink) Offer(event models.AuditEvent) {
	data, err := json.Marshal(websocket.Message{Action: "audit_event", Payload: event})
	if err != nil {
		return
	}
	select {
	case f.hub.Broadcast <- data:
	default:
	}
}

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set up the live feed hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	shipperService := services.NewShipperService(siem.NewSender().Send)
	auditService := services.NewAuditService(cfg)
	auditService.AttachSink(shipperService)
	auditService.AttachSink(feedSink{hub: hub})

	if !auditService.Initialize() {
		log.Fatal().Str("data_dir", cfg.DataDir).Msg("Failed to initialize audit store")
	}

	// Set up and run the background retention sweeper
	sweeper, err := monitoring.NewRetentionSweeper(auditService, cfg.RetentionCron, cfg.RetentionDays)
	if err != nil {
		log.Fatal().Err(err).Str("cron", cfg.RetentionCron).Msg("Invalid retention schedule")
	}
	go sweeper.Run()

	// Set up router
	router := api.NewRouter(hub, auditService, shipperService, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Audit service starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down audit service...")

	sweeper.Stop()

	// Stop flush workers and drain queues before the store closes.
	shipperService.Close()
	auditService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Audit service exiting")
}
