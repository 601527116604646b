package status

import (
	"context"
	"fmt"
	"time"
)

// Tracker は1回の実行中の状態書き込みを担当します。
// 進捗は単調非減少に保たれ、下がる値は現在値に切り上げられます。
type Tracker struct {
	store  Store
	record Record
}

// NewTracker は jobID 用の Tracker を作成します。まだ何も書き込みません。
func NewTracker(store Store, jobID string) *Tracker {
	return &Tracker{
		store:  store,
		record: Record{JobID: jobID},
	}
}

// Start は Running(0) を書き込みます。
func (t *Tracker) Start(ctx context.Context) error {
	t.record.StartedAt = time.Now().UTC()
	t.record.Status = Running{Progress: 0}
	return t.write(ctx)
}

// Progress はチェックポイントを書き込みます。
func (t *Tracker) Progress(ctx context.Context, percent int) error {
	t.record.Status = Running{Progress: t.clamp(percent)}
	return t.write(ctx)
}

// Complete は Done を書き込みます。
func (t *Tracker) Complete(ctx context.Context, downloadKey, downloadURL string) error {
	t.record.Status = Done{DownloadKey: downloadKey, DownloadURL: downloadURL}
	return t.write(ctx)
}

// Fail は Failed を書き込みます。進捗は最後のチェックポイントのまま残します。
func (t *Tracker) Fail(ctx context.Context, message string) error {
	if message == "" {
		message = "Unknown PDF job error"
	}
	t.record.Status = Failed{Message: message, Progress: t.Current()}
	return t.write(ctx)
}

// Current は最後に書き込んだ進捗を返します。
func (t *Tracker) Current() int {
	if t.record.Status == nil {
		return 0
	}
	return t.record.Status.Percent()
}

// Snapshot は直近の書き込み内容のコピーを返します。
func (t *Tracker) Snapshot() Record {
	return t.record
}

func (t *Tracker) clamp(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if current := t.Current(); percent < current {
		return current
	}
	return percent
}

func (t *Tracker) write(ctx context.Context) error {
	record := t.record
	if err := t.store.Put(ctx, &record); err != nil {
		return fmt.Errorf("write status %s: %w", t.record.JobID, err)
	}
	t.record.StartedAt = record.StartedAt
	t.record.UpdatedAt = record.UpdatedAt
	return nil
}
