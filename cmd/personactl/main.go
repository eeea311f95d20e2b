package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/persona-rag/internal/adapters/cli"
	"github.com/kirillkom/persona-rag/internal/bootstrap"
	"github.com/kirillkom/persona-rag/internal/config"
	"github.com/kirillkom/persona-rag/internal/observability/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCmd(open).ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return cli.ExitCode(err)
}

func open(ctx context.Context, options cli.Options) (cli.Backend, error) {
	cfg := config.Load()
	if options.LogLevel != "" {
		cfg.LogLevel = options.LogLevel
	}
	logger := logging.NewJSONLogger("personactl", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MetricsPort != "" {
		serveMetrics(ctx, cfg.MetricsPort, app.Metrics.Handler(), logger)
	}
	return app, nil
}

func serveMetrics(ctx context.Context, port string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics_server_started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
