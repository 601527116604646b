package assembly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onboardly/application-pdf/internal/onboarding"
	"github.com/onboardly/application-pdf/internal/pdf"
	"github.com/onboardly/application-pdf/internal/status"
	"github.com/onboardly/application-pdf/internal/storage"
)

const formPages = 5

type memStatus struct {
	mu      sync.Mutex
	records map[string]status.Record
	history []status.Record
	failPut func(status.Record) error
}

func newMemStatus() *memStatus {
	return &memStatus{records: map[string]status.Record{}}
}

func (s *memStatus) Get(_ context.Context, jobID string) (*status.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[jobID]
	if !ok {
		return nil, status.ErrNotFound
	}
	return &r, nil
}

func (s *memStatus) Put(_ context.Context, r *status.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		if err := s.failPut(*r); err != nil {
			return err
		}
	}
	s.records[r.JobID] = *r
	s.history = append(s.history, *r)
	return nil
}

func (s *memStatus) percents() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.history))
	for _, r := range s.history {
		out = append(out, r.Status.Percent())
	}
	return out
}

func (s *memStatus) last() status.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[len(s.history)-1]
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string]int
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, puts: map[string]int{}}
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return data, nil
}

func (m *memStorage) Put(_ context.Context, key string, body io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.puts[key]++
	return nil
}

func (m *memStorage) URL(key string) string {
	return "https://bucket.example.test/" + key
}

func (m *memStorage) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.puts {
		n += c
	}
	return n
}

type fakeReader struct {
	records map[string]*onboarding.Record
}

func (r *fakeReader) Get(_ context.Context, id string) (*onboarding.Record, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, onboarding.ErrNotFound
	}
	return rec, nil
}

type fakeDocs struct {
	stampCalls int
	stampErr   error
	fillErr    error
}

func (d *fakeDocs) Fill(_ context.Context, template []byte, values []pdf.FieldValue) (*pdf.FilledForm, error) {
	if d.fillErr != nil {
		return nil, d.fillErr
	}
	return &pdf.FilledForm{Bytes: append([]byte("filled:"), template...), PageCount: formPages, Fields: len(values)}, nil
}

func (d *fakeDocs) StampSignature(_ context.Context, doc, _ []byte, _ string) ([]byte, error) {
	d.stampCalls++
	if d.stampErr != nil {
		return nil, d.stampErr
	}
	return append(doc, []byte("+sig")...), nil
}

func (d *fakeDocs) Flatten(_ context.Context, doc []byte) ([]byte, error) {
	return append(doc, []byte("+flat")...), nil
}

// fakeMerger は "pdf:<n>" を n ページの文書、それ以外を画像1ページとして数えます。
type fakeMerger struct {
	seed  []byte
	pages int
}

func (m *fakeMerger) Append(data []byte, mime string) (int, error) {
	if mime == "application/pdf" {
		n, err := strconv.Atoi(strings.TrimPrefix(string(data), "pdf:"))
		if err != nil {
			return 0, err
		}
		m.pages += n
		return n, nil
	}
	m.pages++
	return 1, nil
}

func (m *fakeMerger) PageCount() int { return m.pages }

func (m *fakeMerger) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "%s|pages=%d", m.seed, m.pages)
	return int64(n), err
}

type harness struct {
	status  *memStatus
	storage *memStorage
	docs    *fakeDocs
	reader  *fakeReader
	worker  *Worker
}

func asset(key, mime string) *onboarding.FileAsset {
	return &onboarding.FileAsset{URL: "https://example.test/" + key, StorageKey: key, MimeType: mime}
}

func indiaForm() *onboarding.IndiaForm {
	yes := true
	return &onboarding.IndiaForm{
		PersonalInfo: &onboarding.PersonalInfo{FirstName: "Asha", LastName: "Rao", DateOfBirth: "1994-03-07"},
		GovernmentIDs: &onboarding.GovernmentIDs{
			Aadhaar:  onboarding.Aadhaar{File: asset("ids/aadhaar.pdf", "application/pdf")},
			PanCard:  onboarding.PanCard{File: asset("ids/pan.jpg", "image/jpg")},
			Passport: onboarding.Passport{FrontFile: asset("ids/pp.pdf", "application/pdf")},
		},
		HasPreviousEmployment: &yes,
		BankDetails:           &onboarding.BankDetails{BankName: "HDFC"},
		Declaration: &onboarding.Declaration{
			HasAcceptedDeclaration: true,
			DeclarationDate:        "2026-09-30",
			Signature:              &onboarding.Signature{File: asset("sig/asha.png", "image/png")},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		status:  newMemStatus(),
		storage: newMemStorage(),
		docs:    &fakeDocs{},
		reader: &fakeReader{records: map[string]*onboarding.Record{
			"ob-1": {ID: "ob-1", Subsidiary: onboarding.SubsidiaryIndia, IsFormComplete: true, IndiaForm: indiaForm()},
		}},
	}
	h.storage.objects["ids/aadhaar.pdf"] = []byte("pdf:2")
	h.storage.objects["ids/pan.jpg"] = []byte("jpeg-bytes")
	h.storage.objects["ids/pp.pdf"] = []byte("pdf:3")
	h.storage.objects["sig/asha.png"] = []byte("png-bytes")

	w, err := NewWorker(Deps{
		Status:    h.status,
		Reader:    h.reader,
		Storage:   h.storage,
		Documents: h.docs,
		NewMerger: func(seed []byte) (DocumentMerger, error) {
			return &fakeMerger{seed: seed, pages: formPages}, nil
		},
		Template: func(context.Context) ([]byte, error) {
			return []byte("template"), nil
		},
		KeyPrefix: "tmp/onboardings/application-form-pdf",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	h.worker = w
	return h
}

func request(jobID string) Request {
	return Request{JobID: jobID, OnboardingID: "ob-1", Subsidiary: onboarding.SubsidiaryIndia}
}

func TestRunProducesBundle(t *testing.T) {
	h := newHarness(t)

	out, err := h.worker.Run(context.Background(), request("job-1"))
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.False(t, out.AlreadyDone)
	assert.Equal(t, "tmp/onboardings/application-form-pdf/job-1/job-1.pdf", out.DownloadKey)
	assert.Equal(t, "https://bucket.example.test/"+out.DownloadKey, out.DownloadURL)

	// フォーム5 + 2 + 画像1 + 3
	assert.Equal(t, formPages+2+1+3, out.PageCount)
	artifact := h.storage.objects[out.DownloadKey]
	assert.Equal(t, "filled:template+sig+flat|pages=11", string(artifact))
	assert.Equal(t, 1, h.docs.stampCalls)

	last := h.status.last()
	assert.Equal(t, status.Done{DownloadKey: out.DownloadKey, DownloadURL: out.DownloadURL}, last.Status)
}

func TestRunProgressIsMonotonicAndEndsAt100(t *testing.T) {
	h := newHarness(t)

	_, err := h.worker.Run(context.Background(), request("job-1"))
	require.NoError(t, err)

	seen := h.status.percents()
	assert.Equal(t, []int{0, 25, 45, 60, 75, 90, 100}, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestRunIsIdempotentOnceDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.worker.Run(ctx, request("job-1"))
	require.NoError(t, err)
	puts := h.storage.putCount()
	writes := len(h.status.history)

	second, err := h.worker.Run(ctx, request("job-1"))
	require.NoError(t, err)
	assert.True(t, second.AlreadyDone)
	assert.Equal(t, puts, h.storage.putCount())
	assert.Equal(t, writes, len(h.status.history))

	rec, err := h.status.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, status.Done{DownloadKey: first.DownloadKey, DownloadURL: first.DownloadURL}, rec.Status)
}

func TestRunRejectedRedeliveryKeepsDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.worker.Run(ctx, request("job-1"))
	require.NoError(t, err)
	writes := len(h.status.history)

	bad := request("job-1")
	bad.Subsidiary = "CANADA"
	_, err = h.worker.Run(ctx, bad)
	assert.Equal(t, CodeUnsupportedSubsidiary, ErrorCode(err))

	bad = request("job-1")
	bad.OnboardingID = ""
	_, err = h.worker.Run(ctx, bad)
	assert.Equal(t, CodeOnboardingIDRequired, ErrorCode(err))

	assert.Equal(t, writes, len(h.status.history))
	rec, err := h.status.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, status.Done{DownloadKey: first.DownloadKey, DownloadURL: first.DownloadURL}, rec.Status)
}

func TestRunRejectsUnsupportedSubsidiary(t *testing.T) {
	h := newHarness(t)
	req := request("job-2")
	req.Subsidiary = "CANADA"

	_, err := h.worker.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsInput(err))
	assert.Equal(t, CodeUnsupportedSubsidiary, ErrorCode(err))

	last := h.status.last()
	assert.Equal(t, status.StateError, last.Status.State())
	assert.Equal(t, "Only INDIA subsidiary is supported", last.Status.(status.Failed).Message)
	assert.Zero(t, h.storage.putCount())
}

func TestRunRejectsMissingIDsWithoutStatusForEmptyJob(t *testing.T) {
	h := newHarness(t)

	_, err := h.worker.Run(context.Background(), Request{OnboardingID: "ob-1", Subsidiary: onboarding.SubsidiaryIndia})
	assert.Equal(t, CodeJobIDRequired, ErrorCode(err))
	assert.Empty(t, h.status.history)

	_, err = h.worker.Run(context.Background(), Request{JobID: "job-3", Subsidiary: onboarding.SubsidiaryIndia})
	assert.Equal(t, CodeOnboardingIDRequired, ErrorCode(err))
	assert.Equal(t, status.StateError, h.status.last().Status.State())
}

func TestRunWithoutSignatureStillCompletes(t *testing.T) {
	h := newHarness(t)
	h.reader.records["ob-1"].IndiaForm.Declaration.Signature = nil

	out, err := h.worker.Run(context.Background(), request("job-4"))
	require.NoError(t, err)
	assert.Zero(t, h.docs.stampCalls)
	assert.Equal(t, "filled:template+flat|pages=11", string(h.storage.objects[out.DownloadKey]))
	assert.Equal(t, status.StateDone, h.status.last().Status.State())
}

func TestRunSignatureFailureIsNonFatal(t *testing.T) {
	h := newHarness(t)
	h.docs.stampErr = errors.New("field missing")

	out, err := h.worker.Run(context.Background(), request("job-5"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.docs.stampCalls)
	assert.True(t, out.OK)
}

func TestRunAttachmentFailureRecordsError(t *testing.T) {
	h := newHarness(t)
	delete(h.storage.objects, "ids/pan.jpg")

	_, err := h.worker.Run(context.Background(), request("job-6"))
	require.Error(t, err)
	assert.False(t, IsInput(err))
	assert.Equal(t, CodeAttachmentUnreadable, ErrorCode(err))
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	last := h.status.last()
	failed, ok := last.Status.(status.Failed)
	require.True(t, ok)
	assert.Equal(t, "failed to read attachment PAN Card", failed.Message)
	assert.Equal(t, 60, failed.Progress)
	assert.Zero(t, h.storage.putCount())
}

func TestRunPreconditionsOnRecord(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*onboarding.Record)
		code   string
	}{
		{"mismatch", func(r *onboarding.Record) { r.Subsidiary = "CANADA" }, CodeSubsidiaryMismatch},
		{"incomplete", func(r *onboarding.Record) { r.IsFormComplete = false }, CodeFormNotComplete},
		{"no form", func(r *onboarding.Record) { r.IndiaForm = nil }, CodeFormDataIncomplete},
		{"no bank", func(r *onboarding.Record) { r.IndiaForm.BankDetails = nil }, CodeFormDataIncomplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.mutate(h.reader.records["ob-1"])

			_, err := h.worker.Run(context.Background(), request("job-7"))
			require.Error(t, err)
			assert.True(t, IsInput(err))
			assert.Equal(t, tc.code, ErrorCode(err))
			assert.Equal(t, status.StateError, h.status.last().Status.State())
		})
	}
}

func TestRunOnboardingNotFound(t *testing.T) {
	h := newHarness(t)
	req := request("job-8")
	req.OnboardingID = "missing"

	_, err := h.worker.Run(context.Background(), req)
	assert.Equal(t, CodeOnboardingNotFound, ErrorCode(err))
	assert.Equal(t, "Onboarding not found", h.status.last().Status.(status.Failed).Message)
}

func TestRunMissingRequiredFieldIsInput(t *testing.T) {
	h := newHarness(t)
	h.docs.fillErr = &pdf.Error{Code: pdf.CodeMissingRequiredField, Message: "required field personal.firstName is missing"}

	_, err := h.worker.Run(context.Background(), request("job-9"))
	assert.True(t, IsInput(err))
	assert.Equal(t, pdf.CodeMissingRequiredField, ErrorCode(err))
}

func TestRunJoinsBookkeepingFailure(t *testing.T) {
	h := newHarness(t)
	delete(h.storage.objects, "ids/aadhaar.pdf")
	h.status.failPut = func(r status.Record) error {
		if r.Status.State() == status.StateError {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	_, err := h.worker.Run(context.Background(), request("job-10"))
	require.Error(t, err)
	assert.Equal(t, CodeAttachmentUnreadable, ErrorCode(err))
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestRunUploadFailureIsIOError(t *testing.T) {
	h := newHarness(t)
	h.storage.putErr = errors.New("s3 unavailable")

	_, err := h.worker.Run(context.Background(), request("job-up"))
	require.Error(t, err)
	assert.Equal(t, CodeUploadFailed, ErrorCode(err))
	assert.False(t, IsInput(err))

	last := h.status.last()
	assert.Equal(t, status.StateError, last.Status.State())
	assert.Equal(t, 90, last.Status.Percent())
	_, stored := h.storage.objects["tmp/onboardings/application-form-pdf/job-up/job-up.pdf"]
	assert.False(t, stored)
}

func TestOutputKey(t *testing.T) {
	name := func(s string) *string { return &s }
	prefix := "tmp/onboardings/application-form-pdf"

	assert.Equal(t, prefix+"/j1/j1.pdf", OutputKey(prefix, "j1", nil))
	assert.Equal(t, prefix+"/j1/j1.pdf", OutputKey(prefix, "j1", name("   ")))
	assert.Equal(t, prefix+"/j1/Asha Rao.pdf", OutputKey(prefix, "j1", name(" Asha Rao ")))
	assert.Equal(t, prefix+"/j1/bundle.PDF", OutputKey(prefix, "j1", name("bundle.PDF")))
	assert.Equal(t, prefix+"/j1/passwd.pdf", OutputKey(prefix, "j1", name("../../etc/passwd")))
	assert.Equal(t, prefix+"/j1/x.pdf", OutputKey(prefix, "j1", name(`C:\tmp\x`)))
}

func TestFileTemplate(t *testing.T) {
	_, err := FileTemplate("/nonexistent/template.pdf")(context.Background())
	require.Error(t, err)
}
