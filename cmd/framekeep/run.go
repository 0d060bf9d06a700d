package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"framekeep/internal/config"
	"framekeep/internal/recorder"
	"framekeep/internal/server"
)

func newRunCommand() *cobra.Command {
	var (
		label string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture daemon with the HTTP/WebSocket control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(debug)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			rec := recorder.New(cfg)
			defer rec.Close()

			srv := server.New(rec)
			httpServer := &http.Server{
				Addr:         cfg.HTTPAddr,
				Handler:      srv.Handler(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			go func() {
				slog.Info("framekeep server starting", "http", cfg.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					slog.Error("http server error", "error", err)
				}
			}()

			// With a label the session starts immediately; otherwise a
			// client drives start/stop over the API.
			if label != "" {
				if err := rec.Start(label); err != nil {
					slog.Error("failed to start session", "error", err)
				}
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			slog.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("http shutdown error", "error", err)
			}

			rec.Stop()
			slog.Info("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "start a session immediately with this label")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")
	return cmd
}
