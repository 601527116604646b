package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/onboardly/application-pdf/internal/storage"
)

// ObjectStore はジョブ状態を <prefix>/<jobId>.json としてオブジェクトストレージに保存します。
type ObjectStore struct {
	backend storage.Backend
	prefix  string
	now     func() time.Time
}

// NewObjectStore は ObjectStore を作成します。
func NewObjectStore(backend storage.Backend, prefix string) *ObjectStore {
	return &ObjectStore{
		backend: backend,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Key はジョブIDから状態レコードのキーを求めます。
func (s *ObjectStore) Key(jobID string) string {
	return storage.JoinKey(s.prefix, jobID+".json")
}

// Get はジョブ情報を取得します。
func (s *ObjectStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" || path.Base(jobID) != jobID {
		return nil, fmt.Errorf("invalid jobID: %q", jobID)
	}
	data, err := s.backend.Get(ctx, s.Key(jobID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode status %s: %w", jobID, err)
	}
	if record.JobID == "" {
		record.JobID = jobID
	}
	return &record, nil
}

// Put はジョブ情報を上書き保存します。
func (s *ObjectStore) Put(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" || path.Base(record.JobID) != record.JobID {
		return fmt.Errorf("invalid jobID: %q", record.JobID)
	}
	now := s.now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	record.UpdatedAt = now

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, s.Key(record.JobID), bytes.NewReader(payload), "application/json")
}
