package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/adi-253/chatfeed/internal/config"
	"github.com/adi-253/chatfeed/internal/handlers"
	"github.com/adi-253/chatfeed/internal/logging"
	"github.com/adi-253/chatfeed/internal/models"
	"github.com/adi-253/chatfeed/internal/rtdb"
	"github.com/adi-253/chatfeed/internal/services"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration from environment
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Realtime store backing the push transport
	hub := rtdb.NewHub(rtdb.Options{
		APIKey:      cfg.RTDBAPIKey,
		RequireAuth: cfg.RTDBRequireAuth,
		Logger:      logger,
	})
	go hub.Run(ctx)

	// Initialize services
	threadService := services.NewThreadService()
	messageService := services.NewMessageService(threadService)
	cleanupService := services.NewCleanupService(hub, cfg.CleanupInterval, cfg.CleanupIdle)

	// Start background cleanup worker
	go cleanupService.Start()
	defer cleanupService.Stop()

	if cfg.SeedDemo {
		seedDemo(threadService, messageService)
	}

	// Initialize handlers
	store := &models.StoreConfig{URL: "/rtdb/ws", APIKey: cfg.RTDBAPIKey}
	router := handlers.NewRouter(handlers.Router{
		Threads:     handlers.NewThreadHandler(threadService, messageService, cfg.ReactionChoices, store),
		Messages:    handlers.NewMessageHandler(messageService, cfg.LongPollMax),
		Realtime:    rtdb.NewHandler(hub),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	log.Info().Strs("origins", cfg.CORSOrigins).Msg("CORS allowed origins")

	// Start server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}()

	log.Info().Str("addr", srv.Addr).Msg("chatfeed backend starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}

// seedDemo creates a group thread between users 1, 2 and 3 with a greeting.
func seedDemo(threads *services.ThreadService, messages *services.MessageService) {
	threads.SetUserLabel(1, "alice")
	threads.SetUserLabel(2, "bob")
	threads.SetUserLabel(3, "carol")

	thread, _, err := threads.CreateThread(1, models.CreateThreadRequest{
		Type:    models.ThreadGroup,
		Name:    "Demo",
		UserIDs: []models.ID{2, 3},
	})
	if err != nil {
		log.Error().Err(err).Msg("seed demo thread")
		return
	}
	if _, err := messages.SendMessage(thread.ID, 1, models.SendMessageRequest{Body: "Welcome to the demo thread"}); err != nil {
		log.Error().Err(err).Msg("seed demo message")
		return
	}
	log.Info().Int64("thread_id", int64(thread.ID)).Msg("demo thread seeded")
}
