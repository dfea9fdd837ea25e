package main

import (
	"context"
	"os/signal"
	"syscall"

	"carelog/internal/config"
	"carelog/internal/di"
	"carelog/internal/shared/logger"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API: auth, owner-scoped document routes, kid photos and
live queries over websocket at /v1/listen/users/:uid/:collection.

Configuration comes from the environment (SERVER_, MONGODB_, REDIS_, STORE_,
FEED_, BLOB_, LOG_, POLICY_ and AUTH_ prefixed variables).`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}
	log := logger.NewLoggerWithConfig(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.NewContainer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Errorf("Failed to close container: %v", err)
		}
	}()

	app := container.NewApp()
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting HTTP server on %s", cfg.Server.Addr())
		serverErr <- app.Listen(cfg.Server.Addr())
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("Shutting down server gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
