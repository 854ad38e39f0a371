package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"synapse/pkg/logger"
	"synapse/pkg/serve"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the runtime as a service",
	Long:  "Runs Synapse as a long-lived service with health, readiness, status, and request-processing endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg := loadConfig()

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runtime, mon, err := buildRuntime(cfg, appLogger)
		if err != nil {
			log.Error("Failed to initialize runtime", "error", err)
			return
		}

		if err := runtime.Start(runCtx); err != nil {
			log.Error("Failed to start runtime", "error", err)
			return
		}
		defer func() { _ = runtime.Close(context.Background()) }()

		svc, err := serve.NewService(cfg, runtime, mon, appLogger)
		if err != nil {
			log.Error("Failed to initialize service", "error", err)
			return
		}

		log.Info("Service started", "modules", len(cfg.Modules.Enabled), "security_level", cfg.Security.Level)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Service runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
