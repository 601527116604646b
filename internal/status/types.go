// Package status はドキュメント生成ジョブの状態レコードと、その保存先を扱います。
package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// State はポーリング側から見えるジョブ状態です。
type State string

const (
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
	StateError   State = "ERROR"
)

// Status は状態ごとに持てる値だけを持つタグ付きバリアントです。
// Running / Done / Failed のいずれかになります。
type Status interface {
	State() State
	Percent() int
	isStatus()
}

// Running は実行中で、進捗だけを持ちます。
type Running struct {
	Progress int
}

// Done は完了状態で、成果物の場所だけを持ちます。
type Done struct {
	DownloadKey string
	DownloadURL string
}

// Failed は失敗状態です。Progress は最後に到達したチェックポイントです。
type Failed struct {
	Message  string
	Progress int
}

func (Running) State() State { return StateRunning }
func (Done) State() State    { return StateDone }
func (Failed) State() State  { return StateError }

func (r Running) Percent() int { return r.Progress }
func (Done) Percent() int      { return 100 }
func (f Failed) Percent() int  { return f.Progress }

func (Running) isStatus() {}
func (Done) isStatus()    {}
func (Failed) isStatus()  {}

// Record はジョブの現在状態を表します。書き込みは常にレコード全体の上書きです。
type Record struct {
	JobID     string
	StartedAt time.Time
	UpdatedAt time.Time
	Status    Status
}

// IsDone は完了済みかどうかを返します。
func (r *Record) IsDone() bool {
	if r == nil || r.Status == nil {
		return false
	}
	return r.Status.State() == StateDone
}

type wireRecord struct {
	JobID           string     `json:"jobId,omitempty"`
	State           State      `json:"state"`
	ProgressPercent int        `json:"progressPercent"`
	StartedAt       *time.Time `json:"startedAt"`
	UpdatedAt       *time.Time `json:"updatedAt"`
	DownloadKey     *string    `json:"downloadKey"`
	DownloadURL     *string    `json:"downloadUrl"`
	ErrorMessage    *string    `json:"errorMessage"`
}

// MarshalJSON はポーリング側が読むフラットな形に変換します。
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Status == nil {
		return nil, fmt.Errorf("status is nil for job %s", r.JobID)
	}
	w := wireRecord{
		JobID:           r.JobID,
		State:           r.Status.State(),
		ProgressPercent: r.Status.Percent(),
		StartedAt:       timePtr(r.StartedAt),
		UpdatedAt:       timePtr(r.UpdatedAt),
	}
	switch s := r.Status.(type) {
	case Done:
		w.DownloadKey = &s.DownloadKey
		w.DownloadURL = &s.DownloadURL
	case Failed:
		w.ErrorMessage = &s.Message
	}
	return json.Marshal(w)
}

// UnmarshalJSON は未知の state を拒否します。
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	r.JobID = w.JobID
	r.StartedAt = derefTime(w.StartedAt)
	r.UpdatedAt = derefTime(w.UpdatedAt)

	switch w.State {
	case StateRunning:
		r.Status = Running{Progress: w.ProgressPercent}
	case StateDone:
		r.Status = Done{DownloadKey: derefString(w.DownloadKey), DownloadURL: derefString(w.DownloadURL)}
	case StateError:
		r.Status = Failed{Message: derefString(w.ErrorMessage), Progress: w.ProgressPercent}
	default:
		return fmt.Errorf("unknown job state %q", w.State)
	}
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
