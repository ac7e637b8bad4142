package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/banterhq/banter/internal/adapters/http"
	"github.com/banterhq/banter/internal/app"
	"github.com/banterhq/banter/internal/config"
	"github.com/banterhq/banter/internal/domain"
	"github.com/banterhq/banter/internal/repository"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	db, err := repository.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	users := repository.NewUserRepository(db)
	convos := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)

	registry := app.NewRegistry()
	rooms := app.NewRoomRegistry()
	delivery := app.NewDeliveryEngine(registry, messages, convos, users)
	orch := app.NewOrchestrator(registry, rooms, app.PolicyGuard{}, delivery)

	// Default room bootstrap: public, open policy, never expiring, owned by
	// the system identity so no API caller can delete them.
	for _, name := range cfg.DefaultRooms {
		if _, err := rooms.CreateOrGet(name, domain.VisibilityPublic, domain.SystemIdentity, domain.PolicyEveryone, domain.ExpiryNever, domain.InactivityNone); err != nil {
			log.Error().Err(err).Str("room", name).Msg("bootstrap room")
		}
	}

	// Periodic sweep as a safety net; reads still sweep eagerly themselves.
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orch.SweepAndNotify()
			}
		}
	}()

	r := router.SetupRouter(ctx, cfg, orch, users)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Banter server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
