// Command photarkd runs the photark server: sqlite-backed media store,
// blob filesystem, and the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jkov/photark/internal/access"
	"github.com/jkov/photark/internal/api"
	"github.com/jkov/photark/internal/auth"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/config"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/kv"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/persistence/sqlite"
	"github.com/jkov/photark/internal/retrieve"
	"github.com/jkov/photark/internal/store"
	"github.com/jkov/photark/internal/syncer"
	"github.com/jkov/photark/internal/trash"
	"github.com/jkov/photark/internal/view"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("photarkd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Service: "photark"})
	logger := log.WithComponent("main")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("photarkd exited")
	}
}

func run(cfg config.Config) error {
	logger := log.WithComponent("main")

	db, err := sqlite.Open(cfg.DBPath, sqlite.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := sqlite.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	blobs, err := blob.NewFS(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	cache, err := kv.Open(cfg.KVDir)
	if err != nil {
		return fmt.Errorf("open kv cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	st := store.New(db)
	guard := access.NewGuard(st)
	authSvc := auth.New(st, cache)
	ingestSvc := ingest.New(st, blobs, cfg.MaxUploadBytes)
	retrieveSvc := retrieve.New(st, blobs)
	syncSvc := syncer.New(st)
	viewSvc := view.New(st)
	trashSvc := trash.New(st, blobs)

	handler := api.New(api.Deps{
		Store:     st,
		Auth:      authSvc,
		Guard:     guard,
		Ingest:    ingestSvc,
		Retrieve:  retrieveSvc,
		Syncer:    syncSvc,
		View:      viewSvc,
		Trash:     trashSvc,
		Blobs:     blobs,
		MaxUpload: cfg.MaxUploadBytes,
	}).Router()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No global write timeout: sync streams and video playback are
		// long-lived by design.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
