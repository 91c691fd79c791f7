// Command ensemble-server runs the ensemble record storage HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ensemblestore/internal/api"
	"ensemblestore/internal/blob"
	"ensemblestore/internal/config"
	"ensemblestore/internal/infra/persistence/memory"
	"ensemblestore/internal/infra/persistence/postgres"
	"ensemblestore/internal/infra/persistence/sqlite"
	"ensemblestore/internal/records"
	"ensemblestore/pkg/domain"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var blobs blob.Store
	if cfg.ExternalBlobs() {
		blobs, err = blob.Open(ctx, cfg.Blob)
		if err != nil {
			return err
		}
	}

	svc := records.New(store, blobs, log)
	router := api.NewRouter(svc, api.Options{Token: cfg.Token, Log: log})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("database", cfg.Database), zap.String("blob_driver", cfg.BlobDriver))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore maps the database setting onto a persistence backend. The
// value "memory" keeps everything in process, a postgres:// DSN uses
// PostgreSQL, and anything else is treated as a SQLite file path.
func openStore(database string) (domain.PersistentStore, error) {
	switch {
	case database == "" || database == "memory":
		return memory.NewStore(), nil
	case strings.HasPrefix(database, "postgres://") || strings.HasPrefix(database, "postgresql://"):
		return postgres.NewStore(database)
	case strings.HasPrefix(database, "sqlite:"):
		return sqlite.NewStore(strings.TrimPrefix(database, "sqlite:"))
	default:
		return sqlite.NewStore(database)
	}
}
