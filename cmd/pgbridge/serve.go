package pgbridge

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/pgbridge/pkg/metrics"
	"github.com/edgeflare/pgbridge/pkg/pgx"
	"github.com/edgeflare/pgbridge/pkg/rest"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Starts the HTTP server that bridges requests under the API prefix to PostgreSQL`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgx.Connect(ctx, pgx.PoolConfig{
		ConnString: cfg.DB.DSN(),
		Retries:    cfg.DB.ConnectRetries,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var wg sync.WaitGroup
	if cfg.MetricsAddr != "" {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: cfg.MetricsAddr})
	}

	server := rest.NewServer(cfg, rest.NewPostgresBackend(pool), logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	stop()
	wg.Wait()

	logger.Info("server gracefully stopped")
	return nil
}
