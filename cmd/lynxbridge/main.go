package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/crewtimer/lynxbridge/pkg/config"
	"github.com/crewtimer/lynxbridge/pkg/delivery"
	"github.com/crewtimer/lynxbridge/pkg/events"
	"github.com/crewtimer/lynxbridge/pkg/schedule"
	"github.com/crewtimer/lynxbridge/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// open database
	opts := badger.DefaultOptions(cfg.DataDir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}

	store := storage.NewLapStore(db)
	if err = store.LoadAll(); err != nil {
		log.Err(err).Msg("failed to restore laps")
	}

	var sched *schedule.Schedule
	if cfg.SchedulePath != "" {
		sched, err = schedule.Load(cfg.SchedulePath)
		if err != nil {
			log.Err(err).Str("path", cfg.SchedulePath).Msg("failed to load schedule")
		}
	}

	queue := delivery.NewQueue(store, delivery.NewHTTPTransport(cfg.MobileID, cfg.MobilePin))
	queue.RequeueUnsent()

	dec := events.NewDecoder(sched, cfg.Waypoint)
	rec := events.NewReconciler(store, queue, events.ReconcilerConfig{
		Waypoint:      cfg.Waypoint,
		StartWaypoint: cfg.StartWaypoint,
		StartEnable:   cfg.StartWaypointEnable,
	})
	srv := events.NewServer(cfg.LynxAddr, dec, rec, cfg.DebugLevel)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/laps", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, store.Laps())
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, srv.Status())
	})
	r.Post("/laps/truncate", func(w http.ResponseWriter, _ *http.Request) {
		if err := store.Truncate(); err != nil {
			log.Err(err).Msg("truncate failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/delivery/clear", func(w http.ResponseWriter, _ *http.Request) {
		queue.ClearPending()
		w.WriteHeader(http.StatusNoContent)
	})

	go func() {
		if err := srv.Serve(); err != nil {
			log.Err(err).Msg("scoreboard server stopped")
		}
	}()

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("http server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	// graceful shutdown: stop accepting, cancel the retry timer, compact
	// and close the database
	srv.Stop()
	queue.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Err(err).Msg("failed to stop http server")
	}

	log.Err(db.Flatten(4)).Msg("flatten on stop")
	log.Err(db.RunValueLogGC(0.5)).Msg("run value log gc")
	if err = db.Close(); err != nil {
		log.Err(err).Msg("failed to close badger db")
	}

	log.Info().Msg("lynxbridge stopped")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("failed to encode response")
	}
}
