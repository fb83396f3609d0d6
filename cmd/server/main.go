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

	"github.com/dkeye/Chatter/internal/adapters/auth"
	router "github.com/dkeye/Chatter/internal/adapters/http"
	ws "github.com/dkeye/Chatter/internal/adapters/signal"
	"github.com/dkeye/Chatter/internal/adapters/storage"
	"github.com/dkeye/Chatter/internal/app"
	"github.com/dkeye/Chatter/internal/config"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	store, err := storage.NewRedisStore(storage.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer store.Close()

	registry := app.NewRegistry(nil)
	resume := app.NewResumeTracker(cfg.ResumeLongWindow, cfg.ResumeShortWindow, nil)
	departures := app.NewDepartureTimers(cfg.DepartureGrace)
	defer departures.Stop()

	presence := &app.PresenceBuilder{Registry: registry, Profiles: store, Resume: resume}
	gate := &app.AdmissionGate{
		Verifier:   auth.NewJWTVerifier([]byte(cfg.Secret)),
		Moderation: store,
		Profiles:   store,
		Registry:   registry,
	}

	scheduler := app.NewBroadcastScheduler(cfg.DebounceWindow, nil)
	defer scheduler.Stop()

	ctrl := ws.NewController(cfg, gate, presence)
	scheduler.SetEmit(ctrl.EmitPresence)

	coord := &app.Coordinator{
		Registry:        registry,
		Resume:          resume,
		Departures:      departures,
		Scheduler:       scheduler,
		Rooms:           store,
		Profiles:        store,
		Messages:        store,
		Transport:       ctrl,
		PersistCooldown: cfg.PersistCooldown,
	}
	ctrl.Bind(coord)

	r := router.SetupRouter(ctx, cfg, ctrl, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chatter server started")
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
