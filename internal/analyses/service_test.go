package analyses

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	bloblocal "github.com/dvloznov/spendiq/internal/blob/inmemory"
	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/jobs"
	"github.com/dvloznov/spendiq/internal/records/inmemory"
)

// MockPublisher is a mock implementation of jobs.Publisher for testing.
type MockPublisher struct {
	mu          sync.Mutex
	published   []*jobs.AnalyzeStatementJob
	PublishFunc func(ctx context.Context, job *jobs.AnalyzeStatementJob) error
}

func (m *MockPublisher) PublishAnalyzeStatement(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) Published() []*jobs.AnalyzeStatementJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*jobs.AnalyzeStatementJob(nil), m.published...)
}

var samplePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << >>\n%%EOF")

func pdfRequest(name string, data []byte) SubmitRequest {
	return SubmitRequest{
		FileName:    name,
		FileContent: base64.StdEncoding.EncodeToString(data),
		MimeType:    "application/pdf",
	}
}

type fixture struct {
	store     *inmemory.Store
	blobs     *bloblocal.Store
	publisher *MockPublisher
	svc       *Service
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	if opts.MaxUploadSizeBytes == 0 {
		opts.MaxUploadSizeBytes = 1024
	}

	f := &fixture{
		store:     inmemory.NewStore(),
		blobs:     bloblocal.NewStore(),
		publisher: &MockPublisher{},
	}
	f.svc = NewService(f.store, f.blobs, f.publisher, opts)

	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("a%d", n)
	}
	return f
}

func TestService_Submit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, "u1", pdfRequest("C:\\Users\\me\\statement.pdf", samplePDF))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	rec, err := f.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusPending || rec.UserID != "u1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.FileName != "statement.pdf" {
		t.Errorf("FileName = %q, want base name", rec.FileName)
	}
	if len(rec.Checksum) != 64 {
		t.Errorf("Checksum = %q, want sha256 hex", rec.Checksum)
	}

	data, err := f.blobs.Get(ctx, rec.BlobURI)
	if err != nil || string(data) != string(samplePDF) {
		t.Errorf("archived upload = %q, %v", data, err)
	}

	published := f.publisher.Published()
	if len(published) != 1 || published[0].AnalysisID != id || published[0].UserID != "u1" {
		t.Errorf("published = %+v", published)
	}
}

func TestService_SubmitValidation(t *testing.T) {
	big := append(append([]byte(nil), samplePDF...), make([]byte, 2048)...)

	tests := []struct {
		name string
		req  SubmitRequest
	}{
		{"wrong mime type", SubmitRequest{FileName: "s.pdf", FileContent: base64.StdEncoding.EncodeToString(samplePDF), MimeType: "image/png"}},
		{"missing mime type", SubmitRequest{FileName: "s.pdf", FileContent: base64.StdEncoding.EncodeToString(samplePDF)}},
		{"missing file name", pdfRequest("", samplePDF)},
		{"wrong extension", pdfRequest("statement.txt", samplePDF)},
		{"missing content", SubmitRequest{FileName: "s.pdf", MimeType: "application/pdf"}},
		{"bad base64", SubmitRequest{FileName: "s.pdf", FileContent: "%%%not base64", MimeType: "application/pdf"}},
		{"not a pdf", pdfRequest("s.pdf", []byte("hello, this is plain text and not a PDF"))},
		{"too large", pdfRequest("s.pdf", big)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})

			_, err := f.svc.Submit(context.Background(), "u1", tt.req)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Fatalf("Submit() error = %v, want ErrInvalidRequest", err)
			}
			if f.blobs.Len() != 0 || len(f.publisher.Published()) != 0 {
				t.Error("rejected submission must not archive or enqueue")
			}
		})
	}
}

func TestService_SubmitAcceptsDataURL(t *testing.T) {
	f := newFixture(t, Options{})
	req := pdfRequest("s.pdf", samplePDF)
	req.FileContent = "data:application/pdf;base64," + req.FileContent

	if _, err := f.svc.Submit(context.Background(), "u1", req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestService_SubmitRequiresUser(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Submit(context.Background(), "", pdfRequest("s.pdf", samplePDF))
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Errorf("Submit() error = %v, want ErrUnauthenticated", err)
	}
}

func TestService_SubmitPublishFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.publisher.PublishFunc = func(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
		return errors.New("queue is closed")
	}
	ctx := context.Background()

	if _, err := f.svc.Submit(ctx, "u1", pdfRequest("s.pdf", samplePDF)); err == nil {
		t.Fatal("Submit() expected error when the job cannot be enqueued")
	}

	rec, err := f.store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Status != domain.StatusError || !strings.Contains(rec.Error, "could not be scheduled") {
		t.Errorf("record = %s %q, want error", rec.Status, rec.Error)
	}
}

func TestService_SubmitDeduplicates(t *testing.T) {
	f := newFixture(t, Options{DedupWindow: time.Minute})
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, "u1", pdfRequest("s.pdf", samplePDF))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	second, err := f.svc.Submit(ctx, "u1", pdfRequest("renamed.pdf", samplePDF))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if first != second {
		t.Errorf("duplicate upload got new id %s, want %s", second, first)
	}

	other, _ := f.svc.Submit(ctx, "u2", pdfRequest("s.pdf", samplePDF))
	if other == first {
		t.Error("identical upload from another user must not be deduplicated")
	}

	// A failed analysis is not reused.
	_ = f.store.MarkFailed(ctx, first, "boom")
	third, _ := f.svc.Submit(ctx, "u1", pdfRequest("s.pdf", samplePDF))
	if third == first {
		t.Error("failed analysis should not be returned for a resubmission")
	}

	if got := len(f.publisher.Published()); got != 3 {
		t.Errorf("published %d jobs, want 3", got)
	}
}

func TestService_GetAndDeleteOwnership(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.svc.Submit(ctx, "owner", pdfRequest("s.pdf", samplePDF))

	if _, err := f.svc.Get(ctx, "owner", id); err != nil {
		t.Errorf("Get(owner) error = %v", err)
	}
	if _, err := f.svc.Get(ctx, "intruder", id); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("Get(intruder) error = %v, want ErrAccessDenied", err)
	}
	if _, err := f.svc.Get(ctx, "owner", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, "intruder", id); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("Delete(intruder) error = %v, want ErrAccessDenied", err)
	}

	if err := f.svc.Delete(ctx, "owner", id); err != nil {
		t.Fatalf("Delete(owner) error = %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Error("archived upload should be removed with the record")
	}
	if _, err := f.svc.Get(ctx, "owner", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := f.svc.Delete(ctx, "owner", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestService_List(t *testing.T) {
	f := newFixture(t, Options{ListLimit: 2})
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.svc.now = func() time.Time { return at }
		data := append(append([]byte(nil), samplePDF...), byte('0'+i))
		if _, err := f.svc.Submit(ctx, "u1", pdfRequest("s.pdf", data)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	got, err := f.svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a3" || got[1].ID != "a2" {
		t.Errorf("List() = %v, want [a3 a2]", got)
	}

	empty, err := f.svc.List(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("List(nobody) = %v, %v; want empty slice", empty, err)
	}
}

func TestService_Reanalyze(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	id, _ := f.svc.Submit(ctx, "u1", pdfRequest("s.pdf", samplePDF))
	_ = f.store.MarkFailed(ctx, id, "The AI response was unusable.")

	newID, err := f.svc.Reanalyze(ctx, "u1", id)
	if err != nil {
		t.Fatalf("Reanalyze() error = %v", err)
	}
	if newID == id {
		t.Fatal("Reanalyze() must create a new record")
	}

	old, _ := f.store.Get(ctx, id)
	if old.Status != domain.StatusError {
		t.Errorf("old record status = %s, want unchanged error", old.Status)
	}
	rec, _ := f.store.Get(ctx, newID)
	if rec.Status != domain.StatusPending || rec.FileName != "s.pdf" || rec.Checksum != old.Checksum {
		t.Errorf("new record = %+v", rec)
	}
	if rec.BlobURI == old.BlobURI {
		t.Error("reanalysis should archive its own copy of the upload")
	}

	if _, err := f.svc.Reanalyze(ctx, "intruder", id); !errors.Is(err, domain.ErrAccessDenied) {
		t.Errorf("Reanalyze(intruder) error = %v, want ErrAccessDenied", err)
	}
	if got := len(f.publisher.Published()); got != 2 {
		t.Errorf("published %d jobs, want 2", got)
	}
}
