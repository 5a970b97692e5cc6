// Command robot runs one pass over the pending reimbursement records: it
// opens a portal session, resolves each record against the costs module and
// writes the outcome back to the tracking backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/onecost/internal/application/service"
	"github.com/garyjia/onecost/internal/config"
	"github.com/garyjia/onecost/internal/container"
	"github.com/garyjia/onecost/pkg/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to a YAML config file")
	resetErrors := flag.Bool("reset-errors", false, "reset records in error back to pending before the run")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := cfg.ValidateRobot(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	base, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer base.Sync()

	runID := uuid.NewString()
	logger := base.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	robot, err := container.ProvideRobot(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize robot", zap.Error(err))
		return 1
	}
	defer robot.Close()

	if *resetErrors {
		if _, err := robot.Tracking.Authenticate(ctx); err != nil {
			logger.Error("Failed to authenticate for error reset", zap.Error(err))
			return 1
		}
		count, err := robot.Tracking.ResetErrorStatuses(ctx)
		if err != nil {
			logger.Error("Failed to reset error statuses", zap.Error(err))
			return 1
		}
		logger.Info("Error statuses reset", zap.Int("count", count))
	}

	summary, err := robot.Service.Run(ctx, runID)
	logger.Info("Run summary",
		zap.Int("total", summary.Total),
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("pending", summary.Pending),
		zap.Int("failed", summary.Failed),
		zap.Int("renewals", summary.Renewals),
		zap.Duration("duration", summary.Duration))
	if err != nil {
		if errors.Is(err, service.ErrRunAborted) {
			logger.Error("Run aborted", zap.Error(err))
		} else {
			logger.Error("Run failed", zap.Error(err))
		}
		return 1
	}
	return 0
}
