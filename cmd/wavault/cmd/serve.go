package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavault/wavault/internal/api"
	"github.com/wavault/wavault/internal/ingest"
	"github.com/wavault/wavault/internal/media"
	"github.com/wavault/wavault/internal/scheduler"
	"github.com/wavault/wavault/internal/store"
	"github.com/wavault/wavault/internal/weblog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver and archive API",
	Long: `Run wavault as a long-running daemon.

The daemon runs in the foreground and provides:
  - POST /webhook       ingestion endpoint for the messaging gateway
  - GET  /webhook       provider subscription handshake
  - GET  /media/...     decrypted media files
  - GET  /api/v1/...    read-only archive API (API-key protected)

Scheduled maintenance (webhook log pruning) runs on the cron expression in
[maintenance] schedule.

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Open database
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()

	if err := s.InitSchema(); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	// Webhook request log
	wl := weblog.New(cfg.WebhookLogFile())

	// Media pipeline: download, decrypt, store
	fetcher := media.NewFetcher(
		time.Duration(cfg.Media.DownloadTimeoutSec)*time.Second,
		cfg.Media.InsecureSkipVerify,
		cfg.Media.MaxDownloadBytes,
	)
	storage := media.NewStorage(cfg.MediaDir())
	pipeline := media.NewPipeline(fetcher, storage, logger)

	// Ingestion processor
	processor := ingest.New(s, pipeline, cfg.Media.CDNBaseURL, logger)

	// Maintenance scheduler
	sched := scheduler.New().WithLogger(logger)
	if cfg.Maintenance.LogRetentionDays > 0 {
		retention := time.Duration(cfg.Maintenance.LogRetentionDays) * 24 * time.Hour
		err := sched.AddTask("prune-weblog", cfg.Maintenance.Schedule, func(ctx context.Context) error {
			dropped, err := wl.Prune(retention)
			if err != nil {
				return err
			}
			logger.Info("webhook log pruned", "dropped", dropped)
			return nil
		})
		if err != nil {
			return fmt.Errorf("schedule maintenance: %w", err)
		}
	}
	sched.Start()

	// HTTP server
	server := api.NewServer(cfg, s, processor, wl, sched, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("wavault daemon started\n")
	fmt.Printf("  Webhook endpoint: http://%s/webhook\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.Port)))
	fmt.Printf("  Data directory:   %s\n", cfg.Data.DataDir)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	// Wait for shutdown signal or server error
	select {
	case <-cmd.Context().Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
		fmt.Printf("\nHTTP server error: %v\n", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return nil
}
