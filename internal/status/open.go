package status

import (
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/onboardly/application-pdf/internal/config"
	"github.com/onboardly/application-pdf/internal/storage"
)

// Open は設定に応じた Store を作成します。戻り値の close で接続を解放します。
func Open(cfg *config.Config, backend storage.Backend) (Store, func() error, error) {
	switch cfg.StatusBackend {
	case config.StatusBackendObject:
		return NewObjectStore(backend, cfg.OutputKeyPrefix), func() error { return nil }, nil
	case config.StatusBackendRedis:
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		ttlMinutes := cfg.JobExpireMinutes
		if ttlMinutes <= 0 {
			ttlMinutes = 60 * 24
		}
		return NewRedisStore(rdb, time.Duration(ttlMinutes)*time.Minute), rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported status backend: %s", cfg.StatusBackend)
	}
}
