// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StorageBackendS3    = "s3"
	StorageBackendLocal = "local"

	StatusBackendObject = "object"
	StatusBackendRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	AppEnv   string // development / production
	LogLevel string // zerolog のレベル名 (debug, info, warn, error)

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ジョブ投入APIの認証
	APIKeyHash string // bcryptでハッシュ化されたサービスAPIキー

	// ジョブ/キュー設定
	QueueRedisURL      string // Asynq用Redis接続URL
	JobExpireMinutes   int    // Redisに保存するジョブ状態の有効期限（分）
	WorkerConcurrency  int    // ワーカーの同時実行数
	TaskMaxRetry       int    // ホスト側の再試行回数
	TaskTimeoutMinutes int    // 1ジョブあたりのタイムアウト（分）

	// データベース設定
	DatabaseURL        string // オンボーディング情報を読むPostgreSQLのDSN
	FieldEncryptionKey string // 暗号化フィールド復号用の鍵（hex, 32バイト）

	// ストレージ設定
	StorageBackend   string // s3 / local
	AWSRegion        string
	AWSBucket        string
	AWSEndpointURL   string // S3互換ストレージを使う場合のエンドポイント
	LocalStoragePath string // local バックエンドの保存先
	PublicBaseURL    string // local バックエンドのダウンロードURLのベース
	StatusBackend    string // object / redis

	// PDF生成設定
	TemplatePath      string // 入力用テンプレートPDFのパス
	OutputKeyPrefix   string // 成果物とジョブ状態を置くキーのプレフィックス
	UploadPartSizeMB  int    // マルチパートアップロードのパートサイズ（MB）
	UploadConcurrency int    // マルチパートアップロードの並列数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		APIKeyHash: getEnv("API_KEY_HASH", ""),

		QueueRedisURL:      getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobExpireMinutes:   getEnvAsInt("JOB_EXPIRE_MINUTES", 60*24),
		WorkerConcurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
		TaskMaxRetry:       getEnvAsInt("TASK_MAX_RETRY", 1),
		TaskTimeoutMinutes: getEnvAsInt("TASK_TIMEOUT_MINUTES", 5),

		DatabaseURL:        getEnv("DATABASE_URL", ""),
		FieldEncryptionKey: getEnv("FIELD_ENCRYPTION_KEY", ""),

		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendLocal)),
		AWSRegion:        getEnv("AWS_REGION", ""),
		AWSBucket:        getEnv("AWS_BUCKET", ""),
		AWSEndpointURL:   getEnv("AWS_ENDPOINT_URL", ""),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "/tmp/app/storage"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080/files"),
		StatusBackend:    strings.ToLower(getEnv("STATUS_BACKEND", StatusBackendObject)),

		TemplatePath:      getEnv("TEMPLATE_PATH", "templates/npt-india-application-form-fillable.pdf"),
		OutputKeyPrefix:   getEnv("OUTPUT_KEY_PREFIX", "tmp/onboardings/application-form-pdf"),
		UploadPartSizeMB:  getEnvAsInt("UPLOAD_PART_SIZE_MB", 8),
		UploadConcurrency: getEnvAsInt("UPLOAD_CONCURRENCY", 4),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageBackendS3:
		if c.AWSBucket == "" {
			return fmt.Errorf("AWS_BUCKET is required when STORAGE_BACKEND=s3")
		}
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when STORAGE_BACKEND=s3")
		}
	case StorageBackendLocal:
		if c.LocalStoragePath == "" {
			return fmt.Errorf("LOCAL_STORAGE_PATH is required when STORAGE_BACKEND=local")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND: %s", c.StorageBackend)
	}

	switch c.StatusBackend {
	case StatusBackendObject, StatusBackendRedis:
	default:
		return fmt.Errorf("unsupported STATUS_BACKEND: %s", c.StatusBackend)
	}

	if c.UploadPartSizeMB < 5 {
		// S3 のマルチパートは最終パート以外 5MB 以上が必要
		return fmt.Errorf("UPLOAD_PART_SIZE_MB must be at least 5")
	}

	// ローカル開発では認証・DB設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.APIKeyHash == "" {
			return fmt.Errorf("API_KEY_HASH is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
		if c.FieldEncryptionKey == "" {
			return fmt.Errorf("FIELD_ENCRYPTION_KEY is required in release mode")
		}
	}

	return nil
}

// IsDevelopment は開発環境かどうかを返します。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
