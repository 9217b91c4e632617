package reports

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunnerConfig wires the pipeline dependencies.
type RunnerConfig struct {
	Aggregator *Aggregator
	Renderer   *Renderer
	Dispatcher *Dispatcher
	Lock       *RunLock
	ReportsDir string
	DaysToKeep int
	Location   *time.Location
	Logger     *slog.Logger
}

// Runner executes one end-to-end report run: clean old files, fetch and
// aggregate the previous day, render the three PDFs and dispatch the emails.
// Both the daily cron trigger and the manual HTTP trigger call Run.
type Runner struct {
	aggregator *Aggregator
	renderer   *Renderer
	dispatcher *Dispatcher
	lock       *RunLock
	reportsDir string
	daysToKeep int
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		aggregator: cfg.Aggregator,
		renderer:   cfg.Renderer,
		dispatcher: cfg.Dispatcher,
		lock:       cfg.Lock,
		reportsDir: cfg.ReportsDir,
		daysToKeep: cfg.DaysToKeep,
		loc:        loc,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the runner clock for testing.
func (r *Runner) WithNow(fn func() time.Time) {
	if fn != nil {
		r.now = fn
	}
}

// PreviousDay returns the data day for a run started at now: the calendar
// day before, in the configured timezone.
func (r *Runner) PreviousDay(now time.Time) time.Time {
	y, m, d := now.In(r.loc).AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// Run executes one pipeline run. A second concurrent invocation is rejected
// with ErrJobBusy while the first completes unaffected. The run is considered
// successful when rendering succeeded, even if some deliveries failed; those
// failures are reported in the RunReport.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	runID := uuid.NewString()
	report := RunReport{ID: runID, Status: RunStatusFailed, Stage: StageIdle}

	ok, err := r.lock.Acquire(ctx, runID)
	if err != nil {
		report.Error = err.Error()
		return report, err
	}
	if !ok {
		report.Error = ErrJobBusy.Error()
		return report, ErrJobBusy
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx), runID); err != nil {
			r.logger.Warn("release run lock", slog.Any("error", err))
		}
	}()

	now := r.now()
	day := r.PreviousDay(now)
	report.Date = now.In(r.loc).Format("2006-01-02")
	dataRange := DateRange{Desde: day, Hasta: day}

	r.logger.Info("report run started",
		slog.String("run_id", runID),
		slog.String("data_date", day.Format("2006-01-02")))

	cleanup := Clean(r.reportsDir, r.daysToKeep, r.logger)
	report.CleanedFiles = cleanup.FilesDeleted

	report.Stage = StageFetching
	records, err := r.aggregator.FetchRange(ctx, dataRange)
	if err != nil {
		return r.fail(report, err)
	}

	report.Stage = StageAggregating
	agg := r.aggregator.Build(dataRange, records)
	report.Differences = len(agg.Shortfalls)

	report.Stage = StageRendering
	artifacts, err := r.renderer.Render(ctx, agg, r.aggregator.MinShortfall())
	if err != nil {
		return r.fail(report, err)
	}
	report.Artifacts = artifacts

	report.Stage = StageDispatching
	report.Dispatch = r.dispatcher.Dispatch(ctx, report.Date, agg, artifacts)
	if failed := report.Dispatch.Failed(); failed > 0 {
		r.logger.Warn("report run finished with delivery failures",
			slog.String("run_id", runID),
			slog.Int("failed", failed))
	}

	report.Stage = StageIdle
	report.Status = RunStatusOK
	r.logger.Info("report run completed",
		slog.String("run_id", runID),
		slog.Int("differences", report.Differences),
		slog.Int("files_cleaned", report.CleanedFiles))
	return report, nil
}

func (r *Runner) fail(report RunReport, err error) (RunReport, error) {
	report.Status = RunStatusFailed
	report.Error = err.Error()
	r.logger.Error("report run failed",
		slog.String("run_id", report.ID),
		slog.String("stage", string(report.Stage)),
		slog.Any("error", err))
	return report, err
}

// RunSample renders a test PDF for the previous day without dispatching.
func (r *Runner) RunSample(ctx context.Context) (Artifact, int, error) {
	day := r.PreviousDay(r.now())
	agg, err := r.aggregator.Aggregate(ctx, day, day)
	if err != nil {
		return Artifact{}, 0, err
	}
	artifact, err := r.renderer.RenderSample(ctx, agg, r.aggregator.MinShortfall())
	if err != nil {
		return Artifact{}, 0, err
	}
	return artifact, len(agg.Shortfalls), nil
}

// IsBusy reports whether err represents a rejected concurrent trigger.
func IsBusy(err error) bool {
	return errors.Is(err, ErrJobBusy)
}
