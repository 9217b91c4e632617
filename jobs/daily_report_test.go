package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gonzalo-wi/reporteDiferencias/internal/deposits"
	"github.com/gonzalo-wi/reporteDiferencias/internal/reports"
)

type stubSource struct {
	records []deposits.Record
	err     error
}

func (s *stubSource) FetchDay(context.Context, time.Time) ([]deposits.Record, error) {
	return s.records, s.err
}

type stubPDF struct{}

func (stubPDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.4\n" + html), nil
}

type stubMailer struct{}

func (stubMailer) Send(context.Context, string, string, string, []string) error { return nil }

func newTestRunner(t *testing.T, source *stubSource, lock *reports.RunLock) *reports.Runner {
	t.Helper()
	renderer, err := reports.NewRenderer(stubPDF{}, t.TempDir())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	dispatcher := reports.NewDispatcher(reports.DispatcherConfig{
		Mailer:       stubMailer{},
		RHEmail:      "rh@example.com",
		AdminEmail:   "admin@example.com",
		MinShortfall: 10000,
		Retry:        reports.RetryPolicy{Attempts: 1, Backoff: time.Millisecond},
	})
	return reports.NewRunner(reports.RunnerConfig{
		Aggregator: reports.NewAggregator(source, 10000, nil),
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Lock:       lock,
		ReportsDir: t.TempDir(),
		DaysToKeep: 7,
		Location:   time.UTC,
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustTask(t *testing.T, reason string) *asynq.Task {
	t.Helper()
	task, err := NewDailyReportTask(reason)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func TestDailyReportHandle(t *testing.T) {
	source := &stubSource{records: []deposits.Record{
		{Reparto: "119", UserName: "119, RTO 119", Expected: 50000, Deposited: 35000},
	}}
	job := NewDailyReportJob(newTestRunner(t, source, nil), testLogger())

	if err := job.Handle(context.Background(), mustTask(t, "cron")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDailyReportHandleBusy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if err := mr.Set("reportes:run:lock", "other-run"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	source := &stubSource{}
	job := NewDailyReportJob(newTestRunner(t, source, reports.NewRunLock(client, time.Minute)), testLogger())

	err := job.Handle(context.Background(), mustTask(t, "cron"))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("busy run must be skipped, not retried: %v", err)
	}
}

func TestDailyReportHandleUpstreamFailure(t *testing.T) {
	source := &stubSource{err: deposits.ErrUnavailable}
	job := NewDailyReportJob(newTestRunner(t, source, nil), testLogger())

	err := job.Handle(context.Background(), mustTask(t, "cron"))
	if !errors.Is(err, deposits.ErrUnavailable) {
		t.Fatalf("expected upstream error to propagate for retry, got %v", err)
	}
}

func TestDailyReportHandleBadPayload(t *testing.T) {
	job := NewDailyReportJob(newTestRunner(t, &stubSource{}, nil), testLogger())

	task := asynq.NewTask(TaskDailyReport, []byte("{not json"))
	if err := job.Handle(context.Background(), task); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload must be dropped: %v", err)
	}
}
