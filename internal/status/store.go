package status

import (
	"context"
	"errors"
)

// ErrNotFound はレコードが存在しないことを示します。
var ErrNotFound = errors.New("job status not found")

// Store はジョブ状態の取得と保存を抽象化します。
// オブジェクトストレージでも Redis でも差し替えられるよう Get/Put のみを持ちます。
type Store interface {
	// Get はレコードを返します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, jobID string) (*Record, error)
	// Put はレコード全体を上書き保存します。UpdatedAt は保存時に更新されます。
	Put(ctx context.Context, record *Record) error
}

// Lookup は存在しないレコードを nil として返す Get のラッパーです。
func Lookup(ctx context.Context, store Store, jobID string) (*Record, error) {
	record, err := store.Get(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return record, err
}
