package analyses

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/spendiq/internal/domain"
	"github.com/dvloznov/spendiq/internal/records/inmemory"
)

func TestStaleReporter_Report(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()

	for _, id := range []string{"stuck", "pending", "failed"} {
		if err := store.Create(ctx, &domain.AnalysisRecord{ID: id, UserID: "u1", FileName: id + ".pdf"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	for _, id := range []string{"stuck", "failed"} {
		if err := store.StartRun(ctx, id); err != nil {
			t.Fatalf("StartRun() error = %v", err)
		}
	}
	if err := store.MarkFailed(ctx, "failed", "boom"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	r := NewStaleReporter(store, 15*time.Minute)

	n, err := r.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Report() = %d, want 0 for a fresh run", n)
	}

	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = r.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	// A job dropped from the queue stays pending and must still be reported.
	if n != 2 {
		t.Errorf("Report() = %d, want 2 (processing and pending)", n)
	}

	for id, want := range map[string]domain.RecordStatus{
		"stuck":   domain.StatusProcessing,
		"pending": domain.StatusPending,
	} {
		rec, _ := store.Get(ctx, id)
		if rec.Status != want {
			t.Errorf("stale record %s was modified: %s, want %s", id, rec.Status, want)
		}
	}
}

func TestStaleReporter_Schedule(t *testing.T) {
	r := NewStaleReporter(inmemory.NewStore(), time.Minute)

	c, err := r.Schedule(context.Background(), "@every 1h")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	c.Stop()

	if _, err := r.Schedule(context.Background(), "not a schedule"); err == nil {
		t.Error("Schedule() expected error for an invalid cron expression")
	}
}
