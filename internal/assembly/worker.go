// Package assembly はオンボーディング1件分の申請書 PDF を組み立て、ストレージに置くまでのジョブ本体です。
package assembly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/onboardly/application-pdf/internal/onboarding"
	"github.com/onboardly/application-pdf/internal/pdf"
	"github.com/onboardly/application-pdf/internal/status"
	"github.com/onboardly/application-pdf/internal/storage"
)

const (
	progressFilled      = 25
	progressSeeded      = 45
	progressAttachments = 45
	contentTypePDF      = "application/pdf"

	bookkeepingTimeout = 10 * time.Second
)

// Request はジョブの起動入力です。
type Request struct {
	JobID        string                `json:"jobId"`
	RequestedAt  time.Time             `json:"requestedAt"`
	OnboardingID string                `json:"onboardingId"`
	Subsidiary   onboarding.Subsidiary `json:"subsidiary"`
	Filename     *string               `json:"filename,omitempty"`
}

// Outcome は成功時の結果です。
type Outcome struct {
	OK          bool   `json:"ok"`
	JobID       string `json:"jobId"`
	AlreadyDone bool   `json:"alreadyDone,omitempty"`
	DownloadKey string `json:"downloadKey,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	PageCount   int    `json:"pageCount,omitempty"`
}

// OnboardingReader はオンボーディング記録を読みます。
type OnboardingReader interface {
	Get(ctx context.Context, id string) (*onboarding.Record, error)
}

// Documents はフォーム入力・署名・フラット化を行います。
type Documents interface {
	Fill(ctx context.Context, template []byte, values []pdf.FieldValue) (*pdf.FilledForm, error)
	StampSignature(ctx context.Context, doc, img []byte, declaredMime string) ([]byte, error)
	Flatten(ctx context.Context, doc []byte) ([]byte, error)
}

// DocumentMerger は出力文書のページ列です。
type DocumentMerger interface {
	Append(data []byte, declaredMime string) (int, error)
	PageCount() int
	WriteTo(w io.Writer) (int64, error)
}

// MergerFactory はフォームのページで初期化した DocumentMerger を作ります。
type MergerFactory func(seed []byte) (DocumentMerger, error)

// TemplateLoader はテンプレート PDF を読み込みます。
type TemplateLoader func(ctx context.Context) ([]byte, error)

// FileTemplate はローカルファイルからテンプレートを読む TemplateLoader です。
func FileTemplate(path string) TemplateLoader {
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	}
}

// Deps は Worker の依存です。
type Deps struct {
	Status    status.Store
	Reader    OnboardingReader
	Storage   storage.Backend
	Documents Documents
	NewMerger MergerFactory
	Template  TemplateLoader
	KeyPrefix string
	Logger    zerolog.Logger
}

// Worker は申請書 PDF の生成ジョブを実行します。
type Worker struct {
	status    status.Store
	reader    OnboardingReader
	storage   storage.Backend
	docs      Documents
	newMerger MergerFactory
	template  TemplateLoader
	prefix    string
	logger    zerolog.Logger
}

// NewWorker は Worker を作成します。
func NewWorker(deps Deps) (*Worker, error) {
	switch {
	case deps.Status == nil:
		return nil, errors.New("status store is nil")
	case deps.Reader == nil:
		return nil, errors.New("onboarding reader is nil")
	case deps.Storage == nil:
		return nil, errors.New("storage is nil")
	case deps.Documents == nil:
		return nil, errors.New("documents is nil")
	case deps.NewMerger == nil:
		return nil, errors.New("merger factory is nil")
	case deps.Template == nil:
		return nil, errors.New("template loader is nil")
	}
	return &Worker{
		status:    deps.Status,
		reader:    deps.Reader,
		storage:   deps.Storage,
		docs:      deps.Documents,
		newMerger: deps.NewMerger,
		template:  deps.Template,
		prefix:    deps.KeyPrefix,
		logger:    deps.Logger,
	}, nil
}

// jobState は1回の実行でステップ間を受け渡す値です。
type jobState struct {
	req     Request
	tracker *status.Tracker
	logger  zerolog.Logger

	record      *onboarding.Record
	values      []pdf.FieldValue
	template    []byte
	form        *pdf.FilledForm
	document    []byte
	merger      DocumentMerger
	attachments []onboarding.Attachment
	outcome     *Outcome
}

// Run はジョブを最後まで実行します。
// Running を書いた後の失敗は一度だけ Error として記録し、そのまま呼び出し元に返します。
// 既に Done のジョブは何もせず AlreadyDone を返します。
func (w *Worker) Run(ctx context.Context, req Request) (*Outcome, error) {
	logger := w.logger.With().
		Str("job_id", req.JobID).
		Str("onboarding_id", req.OnboardingID).
		Logger()

	if err := validateJobID(req.JobID); err != nil {
		logger.Warn().Err(err).Msg("assembly: request rejected")
		return nil, err
	}

	existing, err := status.Lookup(ctx, w.status, req.JobID)
	if err != nil {
		return nil, ioError(CodeStatusReadFailed, "failed to read job status", err)
	}

	if err := validateRequest(req); err != nil {
		logger.Warn().Err(err).Msg("assembly: request rejected")
		if existing.IsDone() {
			// Done は確定済みなので、不正な再実行で上書きしない
			return nil, err
		}
		return nil, w.recordFailure(ctx, status.NewTracker(w.status, req.JobID), err, logger)
	}

	if existing.IsDone() {
		logger.Info().Msg("assembly: job already done, skipping")
		return &Outcome{OK: true, JobID: req.JobID, AlreadyDone: true}, nil
	}

	tracker := status.NewTracker(w.status, req.JobID)
	if err := tracker.Start(ctx); err != nil {
		return nil, ioError(CodeStatusWriteFailed, "failed to write job status", err)
	}

	job := &jobState{req: req, tracker: tracker, logger: logger}
	for _, s := range w.steps() {
		res := s.run(ctx, job)
		if res.Decision == Abort {
			logger.Error().Err(res.Err).Str("step", s.name).Str("code", ErrorCode(res.Err)).Msg("assembly: job failed")
			return nil, w.recordFailure(ctx, tracker, res.Err, logger)
		}
		if res.Err != nil {
			logger.Warn().Err(res.Err).Str("step", s.name).Msg("assembly: step degraded, continuing")
		}
	}

	logger.Info().
		Str("download_key", job.outcome.DownloadKey).
		Int("pages", job.outcome.PageCount).
		Msg("assembly: job done")
	return job.outcome, nil
}

func (w *Worker) steps() []step {
	return []step{
		{name: "load_onboarding", run: w.loadOnboarding},
		{name: "map_fields", run: w.mapFields},
		{name: "load_template", run: w.loadTemplate},
		{name: "fill_form", run: w.fillForm},
		{name: "stamp_signature", run: w.stampSignature},
		{name: "flatten", run: w.flatten},
		{name: "checkpoint_filled", run: checkpoint(progressFilled)},
		{name: "seed_output", run: w.seedOutput},
		{name: "checkpoint_seeded", run: checkpoint(progressSeeded)},
		{name: "append_attachments", run: w.appendAttachments},
		{name: "upload", run: w.upload},
		{name: "complete", run: w.complete},
	}
}

func validateJobID(jobID string) error {
	switch {
	case strings.TrimSpace(jobID) == "":
		return inputError(CodeJobIDRequired, "jobId is required")
	case path.Base(jobID) != jobID || strings.ContainsAny(jobID, `/\`):
		return inputError(CodeJobIDRequired, "jobId is invalid")
	}
	return nil
}

func validateRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.OnboardingID) == "":
		return inputError(CodeOnboardingIDRequired, "onboardingId is required")
	case req.Subsidiary != onboarding.SubsidiaryIndia:
		return inputError(CodeUnsupportedSubsidiary, "Only INDIA subsidiary is supported")
	}
	return nil
}

func (w *Worker) loadOnboarding(ctx context.Context, job *jobState) StepResult {
	record, err := w.reader.Get(ctx, job.req.OnboardingID)
	if err != nil {
		if errors.Is(err, onboarding.ErrNotFound) {
			return abort(inputError(CodeOnboardingNotFound, "Onboarding not found"))
		}
		return abort(ioError(CodeOnboardingReadFailed, "failed to read onboarding", err))
	}
	switch {
	case record.Subsidiary != job.req.Subsidiary:
		return abort(inputError(CodeSubsidiaryMismatch, "subsidiary does not match onboarding.subsidiary"))
	case !record.IsFormComplete:
		return abort(inputError(CodeFormNotComplete, "Cannot generate bundle PDF: isFormComplete=false"))
	case record.IndiaForm == nil:
		return abort(inputError(CodeFormDataIncomplete, "indiaFormData is missing"))
	}
	job.record = record
	return proceed()
}

func (w *Worker) mapFields(_ context.Context, job *jobState) StepResult {
	values, err := onboarding.BuildFieldValues(job.record.IndiaForm)
	if err != nil {
		return abort(formDataError(err))
	}
	job.values = values
	return proceed()
}

func (w *Worker) loadTemplate(ctx context.Context, job *jobState) StepResult {
	data, err := w.template(ctx)
	if err != nil {
		return abort(ioError(CodeTemplateUnreadable, "failed to read form template", err))
	}
	job.template = data
	return proceed()
}

func (w *Worker) fillForm(ctx context.Context, job *jobState) StepResult {
	form, err := w.docs.Fill(ctx, job.template, job.values)
	if err != nil {
		return abort(documentError(err))
	}
	job.form = form
	job.document = form.Bytes
	return proceed()
}

// stampSignature は失敗しても続行します。署名なしのフォームがそのまま残ります。
func (w *Worker) stampSignature(ctx context.Context, job *jobState) StepResult {
	asset := job.record.IndiaForm.SignatureAsset()
	if asset == nil {
		job.logger.Info().Msg("assembly: no signature asset, skipping overlay")
		return proceed()
	}
	mime := pdf.NormalizeMime(asset.MimeType)
	if mime != "image/png" && mime != "image/jpeg" {
		return degrade(fmt.Errorf("signature asset %s has unsupported type %q", asset.StorageKey, asset.MimeType))
	}
	img, err := w.storage.Get(ctx, asset.StorageKey)
	if err != nil {
		return degrade(fmt.Errorf("read signature %s: %w", asset.StorageKey, err))
	}
	signed, err := w.docs.StampSignature(ctx, job.document, img, mime)
	if err != nil {
		return degrade(err)
	}
	job.document = signed
	return proceed()
}

func (w *Worker) flatten(ctx context.Context, job *jobState) StepResult {
	flat, err := w.docs.Flatten(ctx, job.document)
	if err != nil {
		return abort(documentError(err))
	}
	job.document = flat
	return proceed()
}

func (w *Worker) seedOutput(_ context.Context, job *jobState) StepResult {
	merger, err := w.newMerger(job.document)
	if err != nil {
		return abort(documentError(err))
	}
	job.merger = merger
	job.attachments = onboarding.SelectAttachments(job.record)
	return proceed()
}

func (w *Worker) appendAttachments(ctx context.Context, job *jobState) StepResult {
	total := max(len(job.attachments), 1)
	for i, a := range job.attachments {
		data, err := w.storage.Get(ctx, a.Asset.StorageKey)
		if err != nil {
			return abort(ioError(CodeAttachmentUnreadable, fmt.Sprintf("failed to read attachment %s", a.Label), err))
		}
		pages, err := job.merger.Append(data, a.Asset.MimeType)
		if err != nil {
			de := documentError(err)
			de.Message = fmt.Sprintf("failed to append attachment %s", a.Label)
			return abort(de)
		}
		job.logger.Debug().Str("attachment", a.Label).Int("pages", pages).Msg("assembly: attachment appended")

		percent := progressSeeded + int(math.Round(float64(i+1)/float64(total)*progressAttachments))
		if err := job.tracker.Progress(ctx, percent); err != nil {
			return abort(ioError(CodeStatusWriteFailed, "failed to write job status", err))
		}
	}
	return proceed()
}

func (w *Worker) upload(ctx context.Context, job *jobState) StepResult {
	key := OutputKey(w.prefix, job.req.JobID, job.req.Filename)
	up := storage.BeginUpload(ctx, w.storage, key, contentTypePDF)
	if _, err := job.merger.WriteTo(up); err != nil {
		up.Abort(err)
		if upErr := up.Wait(); upErr != nil && errors.Is(err, upErr) {
			// バックエンド側が先に失敗してパイプが閉じられた
			return abort(ioError(CodeUploadFailed, "failed to upload bundle PDF", upErr))
		}
		return abort(documentError(err))
	}
	if err := up.Close(); err != nil {
		_ = up.Wait()
		return abort(ioError(CodeUploadFailed, "failed to upload bundle PDF", err))
	}
	if err := up.Wait(); err != nil {
		return abort(ioError(CodeUploadFailed, "failed to upload bundle PDF", err))
	}
	job.outcome = &Outcome{
		OK:          true,
		JobID:       job.req.JobID,
		DownloadKey: key,
		DownloadURL: w.storage.URL(key),
		PageCount:   job.merger.PageCount(),
	}
	return proceed()
}

func (w *Worker) complete(ctx context.Context, job *jobState) StepResult {
	if err := job.tracker.Complete(ctx, job.outcome.DownloadKey, job.outcome.DownloadURL); err != nil {
		return abort(ioError(CodeStatusWriteFailed, "failed to write job status", err))
	}
	return proceed()
}

func checkpoint(percent int) func(context.Context, *jobState) StepResult {
	return func(ctx context.Context, job *jobState) StepResult {
		if err := job.tracker.Progress(ctx, percent); err != nil {
			return abort(ioError(CodeStatusWriteFailed, "failed to write job status", err))
		}
		return proceed()
	}
}

// recordFailure は Error を書き込みます。書き込みに失敗した場合は元のエラーと結合して返します。
func (w *Worker) recordFailure(ctx context.Context, tracker *status.Tracker, cause error, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := tracker.Fail(ctx, statusMessage(cause)); err != nil {
		logger.Error().Err(err).Msg("assembly: failed to record job failure")
		return errors.Join(cause, ioError(CodeStatusWriteFailed, "failed to record job failure", err))
	}
	return cause
}

// OutputKey は成果物のキー <prefix>/<jobId>/<name>.pdf を返します。
// name は filename からパス区切りを除いたもので、空なら <jobId>.pdf です。
func OutputKey(prefix, jobID string, filename *string) string {
	name := ""
	if filename != nil {
		name = strings.TrimSpace(*filename)
		name = strings.ReplaceAll(name, `\`, "/")
		name = strings.TrimSpace(path.Base(name))
		if name == "." || name == "/" || name == ".." {
			name = ""
		}
	}
	if name == "" {
		name = jobID + ".pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return storage.JoinKey(prefix, jobID, name)
}
