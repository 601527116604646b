// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/onboardly/application-pdf/internal/auth"
	"github.com/onboardly/application-pdf/internal/config"
	"github.com/onboardly/application-pdf/internal/jobs"
	"github.com/onboardly/application-pdf/internal/logging"
	"github.com/onboardly/application-pdf/internal/status"
	"github.com/onboardly/application-pdf/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logger := logging.NewLogger("production", "info")
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	statusStore, closeStatus, err := status.Open(cfg, backend)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open status store")
	}
	defer closeStatus()

	// 投入専用の Manager（タスクはワーカープロセスが処理する）
	manager, err := jobs.NewManager(cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up job manager")
	}
	defer manager.Shutdown()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		auth.HeaderAPIKey,
	}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, &server{
		auth:    auth.NewManager(cfg),
		jobs:    manager,
		status:  statusStore,
		logger:  logger,
		nowFunc: nowUTC,
	})

	// local バックエンドでは成果物をこのサーバーから配信する
	if cfg.StorageBackend == config.StorageBackendLocal {
		router.Static("/files", cfg.LocalStoragePath)
	}

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("mode", cfg.GinMode).Msg("starting API server")
	if err := router.Run(addr); err != nil {
		logger.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// requestLogger はアクセスログを zerolog に出力するミドルウェアです。
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
