package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"photoresizer/internal/config"
	"photoresizer/internal/db"
	"photoresizer/internal/handler"
	"photoresizer/internal/janitor"
	"photoresizer/internal/metrics"
	"photoresizer/internal/session"
	"photoresizer/internal/worker"
)

func main() {
	cfg := config.Load()

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewStore(cfg.Pipeline())

	pool := worker.NewPool(cfg.SearchWorkers, cfg.SearchTimeout)
	// stopped explicitly after srv.Shutdown
	pool.Start(context.Background())

	jan := janitor.New(janitor.Config{
		Sessions:       sessions,
		Events:         metrics.New(database),
		SessionTTL:     cfg.SessionTTL,
		EventRetention: cfg.EventRetention,
		Interval:       cfg.JanitorInterval,
	})
	jan.Start(ctx)

	h := handler.New(database, sessions, pool, cfg)
	defer h.Close()

	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting photoresizer on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SearchTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	jan.Stop()
	pool.Stop()
}
