package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/kiosksync/internal/config"
	"github.com/ifuryst/kiosksync/internal/models"
	"github.com/ifuryst/kiosksync/internal/server"
	"github.com/ifuryst/kiosksync/internal/service"
	"github.com/ifuryst/kiosksync/pkg/logger"
)

var (
	configPath string
	syncType   string
	kioskID    uint
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kiosksync",
	Short: "kiosksync - kiosk media placement on Google Drive",
	Long: `kiosksync uploads approved campaign media into per-kiosk Google Drive folders
and keeps each file in the Scheduled, Active or Archive folder that matches its campaign.`,
	RunE: runServer,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process due upload jobs once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), func(ctx context.Context, app *service.App) (interface{}, error) {
			return app.Queue.ProcessDue(ctx, time.Now())
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile kiosk folders against campaign state once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := models.SyncType(syncType)
		return runOnce(cmd.Context(), func(ctx context.Context, app *service.App) (interface{}, error) {
			if kioskID != 0 {
				return app.Sync.SyncKiosk(ctx, kioskID, st)
			}
			return app.Sync.SyncAllKiosks(ctx, st)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kiosksync %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	syncCmd.Flags().StringVar(&syncType, "type", string(models.SyncTypeManual), "sync type recorded on the jobs (manual, hourly)")
	syncCmd.Flags().UintVar(&kioskID, "kiosk", 0, "only sync this kiosk")
	rootCmd.AddCommand(processCmd, syncCmd, versionCmd)
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

// runOnce builds the engine, runs fn and prints its report as JSON.
func runOnce(ctx context.Context, fn func(context.Context, *service.App) (interface{}, error)) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := service.NewApp(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			appLogger.Error("Failed to release resources", zap.Error(err))
		}
	}()

	report, err := fn(ctx, app)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting kiosksync server", zap.String("version", version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server stopped", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}
	cancel()

	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
