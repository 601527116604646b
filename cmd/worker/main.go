// Package main は申請書 PDF 生成ワーカーのエントリーポイントです。
package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/onboardly/application-pdf/internal/assembly"
	"github.com/onboardly/application-pdf/internal/config"
	"github.com/onboardly/application-pdf/internal/jobs"
	"github.com/onboardly/application-pdf/internal/logging"
	"github.com/onboardly/application-pdf/internal/onboarding"
	"github.com/onboardly/application-pdf/internal/pdf"
	"github.com/onboardly/application-pdf/internal/status"
	"github.com/onboardly/application-pdf/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.NewLogger("production", "info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	pool, err := onboarding.NewDBPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	var cipher *onboarding.FieldCipher
	if cfg.FieldEncryptionKey != "" {
		if cipher, err = onboarding.NewFieldCipher(cfg.FieldEncryptionKey); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("FIELD_ENCRYPTION_KEY is not set; encrypted fields are passed through")
	}

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	statusStore, closeStatus, err := status.Open(cfg, backend)
	if err != nil {
		return err
	}
	defer closeStatus()

	engine := pdf.NewEngine(logger)
	worker, err := assembly.NewWorker(assembly.Deps{
		Status:    statusStore,
		Reader:    onboarding.NewReader(pool, cipher),
		Storage:   backend,
		Documents: engine,
		NewMerger: func(seed []byte) (assembly.DocumentMerger, error) {
			return engine.NewMerger(seed)
		},
		Template:  assembly.FileTemplate(cfg.TemplatePath),
		KeyPrefix: cfg.OutputKeyPrefix,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	manager, err := jobs.NewManager(cfg, worker, logger)
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Str("storage", cfg.StorageBackend).
		Str("status", cfg.StatusBackend).
		Msg("starting worker")
	// Run は SIGTERM/SIGINT を受けるまで戻らない
	return manager.Run()
}
