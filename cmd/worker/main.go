package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sparkpilot/sparkpilot/internal/config"
	"github.com/sparkpilot/sparkpilot/internal/engine"
	"github.com/sparkpilot/sparkpilot/internal/pkg/logger"
	"github.com/sparkpilot/sparkpilot/internal/repository"
	"github.com/sparkpilot/sparkpilot/internal/service"
)

// loopService is the shared surface of the three background loops.
type loopService interface {
	Start()
	Stop()
	RunOnce(ctx context.Context) (int, error)
}

type workerDeps struct {
	provisioner *service.ProvisionerService
	scheduler   *service.SchedulerService
	reconciler  *service.ReconcilerService
	close       func()
}

func main() {
	var (
		configPath string
		once       bool
	)

	root := &cobra.Command{
		Use:           "sparkpilot-worker",
		Short:         "SparkPilot background workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional config file path")
	root.PersistentFlags().BoolVar(&once, "once", false, "run a single pass and exit")

	for _, name := range []string{"provisioner", "scheduler", "reconciler"} {
		loopName := name
		root.AddCommand(&cobra.Command{
			Use:   loopName,
			Short: fmt.Sprintf("run the %s loop", loopName),
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runWorker(cmd.Context(), configPath, once, loopName)
			},
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "run every loop in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), configPath, once, "all")
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(ctx context.Context, configPath string, once bool, which string) error {
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

	deps, err := buildWorkerDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	loops := map[string][]loopService{
		"provisioner": {deps.provisioner},
		"scheduler":   {deps.scheduler},
		"reconciler":  {deps.reconciler},
		"all":         {deps.provisioner, deps.scheduler, deps.reconciler},
	}[which]

	if once {
		group, groupCtx := errgroup.WithContext(ctx)
		for _, loop := range loops {
			svc := loop
			group.Go(func() error {
				processed, err := svc.RunOnce(groupCtx)
				if err != nil {
					return err
				}
				logger.L().Info("pass complete", zap.Int("processed", processed))
				return nil
			})
		}
		return group.Wait()
	}

	for _, loop := range loops {
		loop.Start()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.L().Info("shutting down", zap.String("signal", sig.String()))
	for _, loop := range loops {
		loop.Stop()
	}
	return nil
}

func buildWorkerDeps(ctx context.Context, cfg *config.Config) (*workerDeps, error) {
	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := repository.InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	tx := repository.NewTxManager(db)
	envs := repository.NewEnvironmentRepository(db)
	ops := repository.NewProvisioningOperationRepository(db)
	jobs := repository.NewJobRepository(db)
	runs := repository.NewRunRepository(db)
	usage := repository.NewUsageRecordRepository(db)
	audit := service.NewAuditWriter(repository.NewAuditRepository(db))

	var adapter engine.Adapter
	if cfg.DryRunMode {
		adapter = engine.NewDryRunAdapter(cfg.LogGroupPrefix)
	} else {
		adapter = engine.NewEMROnEKSAdapter(engine.EMROptions{
			LogGroupPrefix:   cfg.LogGroupPrefix,
			ReleaseLabel:     cfg.EMRReleaseLabel,
			ExecutionRoleARN: cfg.EMRExecutionRoleARN,
		})
	}

	return &workerDeps{
		provisioner: service.NewProvisionerService(ops, envs, adapter, audit, tx, cfg),
		scheduler:   service.NewSchedulerService(runs, jobs, envs, adapter, audit, tx, cfg),
		reconciler:  service.NewReconcilerService(runs, envs, service.NewUsageRecorder(usage), adapter, audit, tx, cfg),
		close:       func() { db.Close() },
	}, nil
}
