package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/wintracker/internal/api"
	"github.com/bryanchriswhite/wintracker/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the window table over HTTP",
	Long: `Start tracking and serve the window table as a REST API, with a
WebSocket stream that pushes the table whenever it changes.`,
	Example: `  # Start server on default port (8080)
  wintracker serve

  # Start server on custom port
  wintracker serve --port 9090

  # Start with debug logging
  wintracker serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	t, stop, err := startTracker(cfg)
	if err != nil {
		return err
	}
	defer stop()

	server := api.NewServer(t)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Str("backend", t.Platform()).
		Int("windows", t.Len()).
		Msg("wintracker is running, press Ctrl+C to stop")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-t.Done():
		log.Error().Msg("Window tracker exited, shutting down")
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
