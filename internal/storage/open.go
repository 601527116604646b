package storage

import (
	"context"
	"fmt"

	"github.com/onboardly/application-pdf/internal/config"
)

// Open は設定に応じたバックエンドを作成します。
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendS3:
		return NewS3Store(ctx, S3Options{
			Region:      cfg.AWSRegion,
			Bucket:      cfg.AWSBucket,
			EndpointURL: cfg.AWSEndpointURL,
			PartSize:    int64(cfg.UploadPartSizeMB) * 1024 * 1024,
			Concurrency: cfg.UploadConcurrency,
		})
	case config.StorageBackendLocal:
		return NewFileStore(cfg.LocalStoragePath, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend)
	}
}
