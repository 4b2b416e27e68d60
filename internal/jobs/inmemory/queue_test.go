package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/spendiq/internal/jobs"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestQueue_PublishAndConsume(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	ctx := context.Background()

	var handled sync.Map
	err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		j := job.(*jobs.AnalyzeStatementJob)
		handled.Store(j.AnalysisID, true)
		if j.AnalysisID == "bad" {
			return errors.New("pipeline failed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	good := &jobs.AnalyzeStatementJob{AnalysisID: "good", UserID: "u1"}
	bad := &jobs.AnalyzeStatementJob{AnalysisID: "bad", UserID: "u1"}
	for _, j := range []*jobs.AnalyzeStatementJob{good, bad} {
		if err := q.PublishAnalyzeStatement(ctx, j); err != nil {
			t.Fatalf("PublishAnalyzeStatement() error = %v", err)
		}
		if j.JobID == "" {
			t.Error("JobID should be assigned on publish")
		}
	}

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	completed, _ := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	failed, _ := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	if len(completed) != 1 || completed[0].AnalysisID != "good" {
		t.Errorf("completed = %+v", completed)
	}
	if len(failed) != 1 || failed[0].Error != "pipeline failed" {
		t.Errorf("failed = %+v", failed)
	}
	if failed[0].StartedAt == nil || failed[0].CompletedAt == nil {
		t.Error("timestamps should be set")
	}
}

func TestQueue_NoRetry(t *testing.T) {
	q := NewQueue(1, 1, nil)
	ctx := context.Background()

	var calls int32
	if err := q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := q.PublishAnalyzeStatement(ctx, &jobs.AnalyzeStatementJob{AnalysisID: "a1"}); err != nil {
		t.Fatalf("PublishAnalyzeStatement() error = %v", err)
	}
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 1 })
	time.Sleep(50 * time.Millisecond)
	_ = q.Stop(ctx)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
}

func TestQueue_HandlerPanicIsRecorded(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, 1, store)
	ctx := context.Background()

	_ = q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		panic("unexpected")
	})
	job := &jobs.AnalyzeStatementJob{JobID: "j1", AnalysisID: "a1"}
	if err := q.PublishAnalyzeStatement(ctx, job); err != nil {
		t.Fatalf("PublishAnalyzeStatement() error = %v", err)
	}
	_ = q.Stop(ctx)

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != jobs.JobStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	err := q.PublishAnalyzeStatement(context.Background(), &jobs.AnalyzeStatementJob{AnalysisID: "a1"})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("PublishAnalyzeStatement() error = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Start() error = %v, want ErrQueueClosed", err)
	}
}

func TestQueue_PublishRequiresAnalysisID(t *testing.T) {
	q := NewQueue(1, 1, nil)
	defer q.Close()

	if err := q.PublishAnalyzeStatement(context.Background(), &jobs.AnalyzeStatementJob{}); err == nil {
		t.Error("PublishAnalyzeStatement() expected error for missing analysis ID")
	}
}

func TestQueue_PublishHonoursContextWhenFull(t *testing.T) {
	q := NewQueue(1, 1, nil)
	defer q.Close()

	ctx := context.Background()
	if err := q.PublishAnalyzeStatement(ctx, &jobs.AnalyzeStatementJob{AnalysisID: "a1"}); err != nil {
		t.Fatalf("first publish error = %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := q.PublishAnalyzeStatement(ctx, &jobs.AnalyzeStatementJob{AnalysisID: "a2"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("PublishAnalyzeStatement() error = %v, want deadline exceeded", err)
	}
}

func TestStore_ListJobsFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a1", "a2", "a1"} {
		err := s.SaveJob(ctx, &jobs.AnalyzeStatementJob{
			JobID:      string(rune('x' + i)),
			AnalysisID: id,
			Status:     jobs.JobStatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveJob() error = %v", err)
		}
	}

	got, _ := s.ListJobs(ctx, jobs.JobFilter{AnalysisID: "a1"})
	if len(got) != 2 || got[0].JobID != "x" {
		t.Errorf("ListJobs(a1) = %+v", got)
	}

	got, _ = s.ListJobs(ctx, jobs.JobFilter{Limit: 1})
	if len(got) != 1 {
		t.Errorf("ListJobs(limit 1) returned %d", len(got))
	}

	if err := s.SaveJob(ctx, &jobs.AnalyzeStatementJob{}); err == nil {
		t.Error("SaveJob() expected error for missing job ID")
	}
	if _, err := s.GetJob(ctx, "missing"); err == nil {
		t.Error("GetJob() expected error for missing job")
	}
}
