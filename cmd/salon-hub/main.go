package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonhub/internal/config"
	"salonhub/internal/gateway"
	"salonhub/internal/http-server/handlers/booking/createBooking"
	"salonhub/internal/http-server/handlers/booking/getBooking"
	"salonhub/internal/http-server/handlers/booking/listBookings"
	"salonhub/internal/http-server/middleware/mwlogger"
	"salonhub/internal/lib/logger/handlers/slogpretty"
	"salonhub/internal/lib/logger/sl"
	"salonhub/internal/registry"
	"salonhub/internal/router"
	"salonhub/internal/storage/bookings"
	"salonhub/internal/storage/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting salon hub", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	var (
		persist   bookings.Persister
		directory router.OwnerDirectory
		db        *postgres.Storage
	)

	if cfg.Database.Host != "" {
		var err error
		db, err = postgres.InitDB(&cfg.Database)
		if err != nil {
			log.Error("failed to init storage", sl.Err(err))
			os.Exit(1)
		}
		persist = db
		directory = db
	} else {
		log.Warn("no database configured, bookings will not survive restarts")
	}

	store := bookings.New(log, persist)

	if db != nil {
		seeded, err := db.LoadBookings(context.Background())
		if err != nil {
			log.Error("failed to load persisted bookings", sl.Err(err))
			os.Exit(1)
		}
		store.Seed(seeded)
		log.Info("bookings loaded from storage", slog.Int("count", len(seeded)))
	}

	reg := registry.New()
	rtr := router.New(log, reg, store, router.NewLocalConversations(), directory, cfg.Hub.PendingQueueCap)
	gw := gateway.New(log, reg, store, rtr, cfg.Hub.IdleTimeout, cfg.Hub.SendBuffer)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mwlogger.New(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.URLFormat)

	r.Get("/ws", gw.ServeWS())

	r.Post("/bookings", createBooking.New(log, store, rtr))
	r.Get("/bookings/{id}", getBooking.New(log, store))
	r.Get("/users/{userID}/bookings", listBookings.New(log, store))

	log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      r,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)

	go func() {
		ticker := time.NewTicker(cfg.Hub.IdleTimeout / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, s := range reg.IdleSenders(cfg.Hub.IdleTimeout) {
					log.Info("closing idle connection", slog.String("connection_id", s.ID()))
					if err := s.Close(); err != nil {
						log.Error("failed to close idle connection", sl.Err(err))
					}
				}
			case <-stop:
				return
			}
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", sl.Err(err))
			stop <- syscall.SIGTERM
		}
	}()

	sign := <-stop

	log.Info("application stopping", slog.String("signal", sign.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown server", sl.Err(err))
	}

	log.Info("application stopped")

	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("failed to close postgres connection", sl.Err(err))
		}
		log.Info("postgres connection closed")
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	h := opts.NewPrettyHandler(os.Stdout)

	return slog.New(h)
}
