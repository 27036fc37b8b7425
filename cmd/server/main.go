package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sparkpilot/sparkpilot/internal/config"
	"github.com/sparkpilot/sparkpilot/internal/engine"
	"github.com/sparkpilot/sparkpilot/internal/handler"
	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
	"github.com/sparkpilot/sparkpilot/internal/repository"
	"github.com/sparkpilot/sparkpilot/internal/server"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

func main() {
	configPath := flag.String("config", "", "optional config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		ToStdout: cfg.Log.ToStdout,
		ToFile:   cfg.Log.ToFile,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := repository.InitSchema(ctx, db); err != nil {
		return err
	}

	tx := repository.NewTxManager(db)
	tenants := repository.NewTenantRepository(db)
	envs := repository.NewEnvironmentRepository(db)
	ops := repository.NewProvisioningOperationRepository(db)
	jobs := repository.NewJobRepository(db)
	runs := repository.NewRunRepository(db)
	usage := repository.NewUsageRecordRepository(db)
	audits := repository.NewAuditRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)

	adapter := buildAdapter(cfg)
	audit := service.NewAuditWriter(audits)
	quota := service.NewQuotaChecker(runs)

	handlers := handler.New(
		service.NewTenantService(tenants, audit, tx),
		service.NewEnvironmentService(tenants, envs, ops, audit, tx),
		service.NewJobService(jobs, envs, audit, tx),
		service.NewRunService(jobs, envs, runs, quota, adapter, audit, tx),
		service.NewUsageService(tenants, usage),
		service.NewIdempotencyCoordinator(idemRepo, tx),
	)

	gin.SetMode(gin.ReleaseMode)
	router := server.SetupRouter(gin.New(), handlers, cfg)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("api server listening", zap.String("addr", cfg.ListenAddr), zap.Bool("dry_run", cfg.DryRunMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.L().Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildAdapter(cfg *config.Config) engine.Adapter {
	if cfg.DryRunMode {
		return engine.NewDryRunAdapter(cfg.LogGroupPrefix)
	}
	return engine.NewEMROnEKSAdapter(engine.EMROptions{
		LogGroupPrefix:   cfg.LogGroupPrefix,
		ReleaseLabel:     cfg.EMRReleaseLabel,
		ExecutionRoleARN: cfg.EMRExecutionRoleARN,
	})
}
