// Package jobs は asynq を使ったジョブの投入と、ワーカープロセス側のタスク処理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/onboardly/application-pdf/internal/assembly"
	"github.com/onboardly/application-pdf/internal/config"
	"github.com/onboardly/application-pdf/internal/logging"
)

const (
	// TaskTypeApplicationPDF は申請書 PDF 生成タスクの種別です。
	TaskTypeApplicationPDF = "onboarding:application-pdf"
	// QueuePDF は PDF 系タスクのキュー名です。
	QueuePDF = "pdf"
)

// ErrDuplicateJob は同じ jobId のタスクがすでにキューにあることを表します。
var ErrDuplicateJob = errors.New("job already enqueued")

// Runner は1件のジョブを実行します。assembly.Worker が実装します。
type Runner interface {
	Run(ctx context.Context, req assembly.Request) (*assembly.Outcome, error)
}

// Manager はジョブの投入とタスク処理を担います。
// runner を渡さない場合は投入専用で、サーバーは作りません。
type Manager struct {
	cfg    *config.Config
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner Runner
	logger zerolog.Logger
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, runner Runner, logger zerolog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	m := &Manager{
		cfg:    cfg,
		client: asynq.NewClient(opt),
		runner: runner,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
	if runner == nil {
		return m, nil
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	m.server = asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueuePDF: 1,
			},
			Logger:       logging.NewAsynqLogger(logger),
			LogLevel:     logging.AsynqLevel(logger),
			ErrorHandler: asynq.ErrorHandlerFunc(m.reportTaskError),
		},
	)
	m.mux = asynq.NewServeMux()
	m.mux.HandleFunc(TaskTypeApplicationPDF, m.handleTask)
	return m, nil
}

// Run は Asynq サーバーを起動し、シグナルを受けるまでブロックします。
func (m *Manager) Run() error {
	if m.server == nil {
		return errors.New("manager has no runner")
	}
	return m.server.Run(m.mux)
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() error {
	if m.server == nil {
		return errors.New("manager has no runner")
	}
	return m.server.Start(m.mux)
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	if m.server != nil {
		m.server.Shutdown()
	}
	return m.client.Close()
}

// Enqueue はジョブをキューに投入します。jobId がそのままタスク ID になります。
func (m *Manager) Enqueue(ctx context.Context, req assembly.Request) (string, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return "", errors.New("jobId is required")
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}

	task, opts, err := m.newTask(req)
	if err != nil {
		return "", err
	}
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return req.JobID, fmt.Errorf("%w: %s", ErrDuplicateJob, req.JobID)
		}
		return "", fmt.Errorf("enqueue %s: %w", req.JobID, err)
	}
	m.logger.Info().Str("job_id", req.JobID).Str("task_id", info.ID).Str("queue", info.Queue).Msg("job enqueued")
	return info.ID, nil
}

func (m *Manager) newTask(req assembly.Request) (*asynq.Task, []asynq.Option, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.Queue(QueuePDF),
		asynq.TaskID(req.JobID),
		asynq.MaxRetry(max(m.cfg.TaskMaxRetry, 0)),
	}
	if m.cfg.TaskTimeoutMinutes > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(m.cfg.TaskTimeoutMinutes)*time.Minute))
	}
	return asynq.NewTask(TaskTypeApplicationPDF, body), opts, nil
}

func (m *Manager) handleTask(ctx context.Context, task *asynq.Task) error {
	var req assembly.Request
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := m.runner.Run(ctx, req)
	if err != nil {
		if assembly.IsInput(err) {
			// 入力起因の失敗は再試行しても変わらない
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if w := task.ResultWriter(); w != nil && outcome != nil {
		if body, err := json.Marshal(outcome); err == nil {
			if _, err := w.Write(body); err != nil {
				m.logger.Warn().Err(err).Str("job_id", req.JobID).Msg("failed to write task result")
			}
		}
	}
	return nil
}

func (m *Manager) reportTaskError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	m.logger.Error().
		Err(err).
		Str("task_type", task.Type()).
		Str("code", assembly.ErrorCode(err)).
		Bool("skip_retry", errors.Is(err, asynq.SkipRetry)).
		Int("retried", retried).
		Int("max_retry", maxRetry).
		Msg("task failed")
}
