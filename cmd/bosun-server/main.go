// Package main is the entrypoint for the bosun server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MacJediWizard/bosun/internal/agent"
	"github.com/MacJediWizard/bosun/internal/api"
	"github.com/MacJediWizard/bosun/internal/backup"
	"github.com/MacJediWizard/bosun/internal/config"
	"github.com/MacJediWizard/bosun/internal/director"
	"github.com/MacJediWizard/bosun/internal/jobs"
	"github.com/MacJediWizard/bosun/internal/metrics"
	"github.com/MacJediWizard/bosun/internal/models"
	"github.com/MacJediWizard/bosun/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting bosun server")

	cfg := config.LoadServerConfig()
	if cfg.Container == "" {
		logger.Fatal().Msg("BACKUP_CONTAINER environment variable is required")
		return 1
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		logger.Fatal().Msg("ADMIN_USERNAME and ADMIN_PASSWORD environment variables are required")
		return 1
	}

	objectStore, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:        cfg.StorageEndpoint,
		Region:          cfg.StorageRegion,
		AccessKeyID:     cfg.StorageAccessKey,
		SecretAccessKey: cfg.StorageSecretKey,
		UseSSL:          cfg.StorageUseSSL,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize object storage")
		return 1
	}

	directorsFile, err := config.LoadDirectorsFile(cfg.DirectorsFile)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DirectorsFile).Msg("Failed to load directors file")
		return 1
	}
	directors, err := director.NewRegistry(directorsFile.Directors, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build director registry")
		return 1
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metricSet := metrics.New(registry)

	scheduler := jobs.NewCronScheduler(jobs.DefaultConfig(), logger)

	agentFactory := agent.NewFactory(cfg.AgentPort, logger)
	store := backup.NewStore(objectStore, cfg.Container, cfg.RootFolder, logger)
	orchestrator := backup.NewOrchestrator(
		store,
		directors,
		backup.AgentFactoryFunc(func(address string, props agent.Properties) backup.AgentClient {
			return agentFactory.Client(address, props)
		}),
		scheduler,
		metricSet,
		backup.OrchestratorConfig{},
		logger,
	)

	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start job scheduler")
	}
	defer scheduler.Stop()

	// Recurring scheduled backups from the directors file.
	for _, sched := range directorsFile.Schedules {
		sched := sched
		err := scheduler.RegisterRecurring("backup:"+sched.Deployment, sched.Cron, func() {
			jobCtx, jobCancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer jobCancel()
			_, err := orchestrator.StartBackup(jobCtx, backup.StartBackupRequest{
				DeploymentName: sched.Deployment,
				DirectorName:   sched.Director,
				Trigger:        models.TriggerScheduled,
				Username:       cfg.AdminUsername,
			})
			if err != nil {
				logger.Warn().Err(err).Str("deployment", sched.Deployment).Msg("scheduled backup not started")
			}
		})
		if err != nil {
			logger.Error().Err(err).Str("deployment", sched.Deployment).Msg("Failed to register backup schedule")
		}
	}

	routerCfg := api.Config{
		AdminUsername:     cfg.AdminUsername,
		AdminPassword:     cfg.AdminPassword,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitPeriod:   cfg.RateLimitPeriod,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}
	router, err := api.NewRouter(routerCfg, orchestrator, registry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return 0
}
