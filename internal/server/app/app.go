package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/agentkitdev/agentkit/internal/server/config"
	"github.com/agentkitdev/agentkit/internal/server/db"
)

// App owns the HTTP server and the database handle for one agentkitd
// process. Run blocks until the context is cancelled, then shuts both
// down in order.
type App struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	store  db.Store
	server *http.Server
}

func New(cfg config.ServerConfig, logger *slog.Logger, store db.Store, handler http.Handler) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.APIListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{cfg: cfg, logger: logger, store: store, server: server}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api listening", "addr", a.cfg.APIListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if closeErr := a.store.Close(context.Background()); closeErr != nil {
			a.logger.Error("close store", "error", closeErr)
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	<-errCh

	if err := a.store.Close(context.Background()); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
