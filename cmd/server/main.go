package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/pagemark/internal/api"
	"github.com/dgallion1/pagemark/internal/config"
	"github.com/dgallion1/pagemark/internal/lease"
	"github.com/dgallion1/pagemark/internal/parser"
	"github.com/dgallion1/pagemark/internal/session"
	"github.com/dgallion1/pagemark/internal/store"
)

func main() {
	cfg := config.Load()
	level, _ := cfg.SlogLevel()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Lease backend: Redis when several processes share META_DIR.
	var locker lease.Locker = lease.NewMemory()
	var redisLease *lease.Redis
	if cfg.RedisURL != "" {
		var err error
		redisLease, err = lease.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		locker = redisLease
		log.Info("using redis leases", "owner", redisLease.OwnerID())
	}

	st := store.New(cfg.MetaDir, log.With("component", "store"))
	sessions := session.NewManager(st, locker, log.With("component", "session"), session.Options{
		TTL:            cfg.SessionTTL,
		LeaseTTL:       cfg.LeaseTTL,
		MaxSessions:    cfg.MaxSessions,
		MaxSourceBytes: cfg.MaxSourceBytes,
		Parser:         parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
	})
	sessions.Start(ctx)

	srv := api.NewServer(sessions, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		sessions.Stop()
		if redisLease != nil {
			redisLease.Close()
		}
	}()

	log.Info("starting pagemark", "port", cfg.Port, "source_dir", cfg.SourceDir, "meta_dir", cfg.MetaDir)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
