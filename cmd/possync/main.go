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

	"github.com/spf13/cobra"

	"github.com/edgetill/possync/internal/api"
	"github.com/edgetill/possync/internal/observability"
	"github.com/edgetill/possync/internal/scheduler"
	"github.com/edgetill/possync/internal/server"
	"github.com/edgetill/possync/internal/store"
	enginepkg "github.com/edgetill/possync/internal/sync"
)

var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "possync",
	Short: "Offline-first sync engine for edge point-of-sale",
	Long:  "Bidirectional sync engine keeping an embedded SQLite store consistent with a remote service across intermittent connectivity.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync engine and admin server",
	RunE:  runEngine,
}

var (
	dataDir      string
	bindAddr     string
	remoteURL    string
	storeID      string
	deviceID     string
	signingKey   string
	syncInterval time.Duration
	batchSize    int
	otelEnabled  bool
	otelEndpoint string
)

func init() {
	runCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for the local SQLite store")
	runCmd.Flags().StringVar(&bindAddr, "bind", "127.0.0.1:7335", "Admin API bind address (loopback)")
	runCmd.Flags().StringVar(&remoteURL, "remote-url", envOr("POSSYNC_REMOTE_URL", "http://localhost:8080"), "Remote sync service base URL")
	runCmd.Flags().StringVar(&storeID, "store-id", envOr("POSSYNC_STORE_ID", ""), "Store identity")
	runCmd.Flags().StringVar(&deviceID, "device-id", envOr("POSSYNC_DEVICE_ID", ""), "Device identity")
	runCmd.Flags().StringVar(&signingKey, "signing-key", envOr("POSSYNC_SIGNING_KEY", ""), "Device HS256 signing key")
	runCmd.Flags().DurationVar(&syncInterval, "interval", 30*time.Second, "Sync cycle interval")
	runCmd.Flags().IntVar(&batchSize, "batch-size", 50, "Max outbox items per drain")
	runCmd.Flags().BoolVar(&otelEnabled, "otel", false, "Enable OpenTelemetry tracing")
	runCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/HTTP endpoint (stdout export when empty)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(deadletterCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runEngine(cmd *cobra.Command, args []string) error {
	if storeID == "" {
		return fmt.Errorf("--store-id is required")
	}
	if deviceID == "" {
		deviceID = storeID + "-terminal"
	}

	shutdownTracer, err := observability.InitTracer(otelEnabled, "possync", otelEndpoint)
	if err != nil {
		return err
	}

	db, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.NewStore(db, storeID)

	apiClient := api.NewHTTPClient(api.Config{
		BaseURL:    remoteURL,
		StoreID:    storeID,
		DeviceID:   deviceID,
		SigningKey: []byte(signingKey),
	})

	// Offline-first: probe the remote but start regardless. Connectivity
	// failures are the queue's normal operating condition.
	probeCtx, cancelProbe := context.WithTimeout(cmd.Context(), 15*time.Second)
	if err := apiClient.WaitReady(probeCtx); err != nil {
		slog.Warn("remote not reachable at startup, continuing offline", "error", err)
	}
	cancelProbe()

	engine := enginepkg.NewEngine(st, apiClient, enginepkg.DefaultBackoffPolicy(), enginepkg.SystemClock())
	engine.BatchSize = batchSize

	sched := scheduler.New(engine, scheduler.Config{Interval: syncInterval})
	sched.Start()

	srv := server.New(engine, sched, bindAddr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("admin server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown", "error", err)
	}
	sched.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Error("tracer shutdown", "error", err)
	}
	return nil
}
