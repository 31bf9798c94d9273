package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/dvloznov/nt-accruals/internal/domain"
	"github.com/dvloznov/nt-accruals/internal/errreport"
	"github.com/dvloznov/nt-accruals/internal/jobs"
	"github.com/dvloznov/nt-accruals/internal/jobs/inmemory"
	"github.com/dvloznov/nt-accruals/internal/logger"
	"github.com/dvloznov/nt-accruals/internal/rawstore"
)

// Deps are the collaborators of a run. Archiver and Loader are optional; a
// nil Loader skips the warehouse step.
type Deps struct {
	Fetcher   TransactionFetcher
	Writer    rawstore.Writer
	Archiver  Archiver
	Loader    Loader
	Collector *errreport.Collector
	Jobs      jobs.JobStore
}

// Options describe what a run processes.
type Options struct {
	Accounts     []string
	LookbackDays int
	// AsOf is the most recent business date of the window. Zero means
	// yesterday relative to Now.
	AsOf civil.Date

	Target      domain.Target
	LoadOptions domain.LoadOptions
	// RecordLoadFailures turns warehouse load failures into error records.
	RecordLoadFailures bool

	Now func() time.Time
}

// Summary reports the outcome of a run. Failed + Succeeded == Attempted.
type Summary struct {
	RunID         string
	Attempted     int
	Succeeded     int
	Failed        int
	LoadFailures  int
	ReportWritten bool
	Interrupted   bool
}

// Runner drives one batch run: authenticate, process every work unit in
// order, then write the error report.
type Runner struct {
	deps Deps
	opts Options
}

// NewRunner creates a Runner. A nil job store is replaced with an in-memory one.
func NewRunner(deps Deps, opts Options) *Runner {
	if deps.Jobs == nil {
		deps.Jobs = inmemory.NewStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{deps: deps, opts: opts}
}

// AsOf returns the most recent business date the run processes.
func (r *Runner) AsOf() civil.Date {
	if r.opts.AsOf.IsValid() {
		return r.opts.AsOf
	}
	return civil.DateOf(r.opts.Now()).AddDays(-1)
}

// Run executes the batch. An authentication failure is returned before any
// data request and without writing a report. Unit failures never stop the
// run; they are collected and flushed at the end. When ctx is cancelled no
// further units are started, the report is still flushed and the
// cancellation is returned alongside the summary.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: uuid.NewString()}
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{"run_id": summary.RunID})
	ctx = logger.WithContext(ctx, log)

	log.Info().Int("accounts", len(r.opts.Accounts)).Int("lookback_days", r.opts.LookbackDays).Msg("Run started")

	if _, err := r.deps.Fetcher.AcquireToken(ctx); err != nil {
		log.Error().Err(err).Msg("Authentication failed, aborting run")
		return summary, fmt.Errorf("Run: authenticating: %w", err)
	}

	units := domain.WorkUnits(r.opts.Accounts, domain.DateWindow(r.AsOf(), r.opts.LookbackDays))
	p := r.newPipeline()

	for _, unit := range units {
		if ctx.Err() != nil {
			summary.Interrupted = true
			log.Warn().
				Int("attempted", summary.Attempted).
				Int("remaining", len(units)-summary.Attempted).
				Msg("Run interrupted, skipping remaining units")
			break
		}
		r.processUnit(ctx, p, unit, summary)
	}

	written, flushErr := r.deps.Collector.Flush()
	summary.ReportWritten = written
	if flushErr != nil {
		log.Error().Err(flushErr).Str("path", r.deps.Collector.Path()).Msg("Failed to write error report")
	} else if written {
		log.Info().Int("errors", r.deps.Collector.Len()).Str("path", r.deps.Collector.Path()).Msg("Error report written")
		r.archiveReport(ctx)
	}

	log.Info().
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("load_failures", summary.LoadFailures).
		Msg("Run finished")

	if flushErr != nil {
		return summary, fmt.Errorf("Run: writing error report: %w", flushErr)
	}
	if summary.Interrupted {
		return summary, fmt.Errorf("Run: interrupted: %w", ctx.Err())
	}
	return summary, nil
}

func (r *Runner) newPipeline() *Pipeline {
	steps := []PipelineStep{
		&FetchStep{Fetcher: r.deps.Fetcher},
		&WriteStep{Writer: r.deps.Writer, Archiver: r.deps.Archiver},
	}
	if r.deps.Loader != nil {
		steps = append(steps, &LoadStep{
			Loader:  r.deps.Loader,
			Target:  r.opts.Target,
			Options: r.opts.LoadOptions,
			Promote: r.opts.RecordLoadFailures,
		})
	}
	return NewPipeline(steps...)
}

func (r *Runner) processUnit(ctx context.Context, p *Pipeline, unit domain.WorkUnit, summary *Summary) {
	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"account": unit.Account,
		"date":    unit.Date.String(),
	})
	ctx = logger.WithContext(ctx, log)

	job := &jobs.UnitJob{
		JobID:     uuid.NewString(),
		Account:   unit.Account,
		Date:      unit.Date.String(),
		Status:    jobs.JobStatusPending,
		CreatedAt: r.opts.Now(),
	}
	r.saveJob(ctx, job)

	started := r.opts.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	if err := r.deps.Jobs.UpdateJobStatus(ctx, job.JobID, jobs.JobStatusRunning, ""); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to mark unit running")
	}

	summary.Attempted++
	log.Info().Msg("Processing work unit")

	state := &UnitState{Unit: unit}
	err := p.Execute(ctx, state)

	completed := r.opts.Now()
	job.CompletedAt = &completed
	job.RawPath = state.RawPath
	if state.LoadErr != nil {
		summary.LoadFailures++
		job.LoadError = state.LoadErr.Error()
	}

	if err != nil {
		msg := err.Error()
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			msg = stepErr.Err.Error()
		}
		r.deps.Collector.Record(unit.Date.String(), unit.Account, msg)
		summary.Failed++
		job.Status = jobs.JobStatusFailed
		job.Error = msg
		log.Error().Err(err).Msg("Work unit failed")
	} else {
		summary.Succeeded++
		job.Status = jobs.JobStatusCompleted
		log.Info().Str("path", state.RawPath).Msg("Work unit completed")
	}
	r.saveJob(ctx, job)
}

func (r *Runner) saveJob(ctx context.Context, job *jobs.UnitJob) {
	if err := r.deps.Jobs.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save unit status")
	}
}

// archiveReport uploads the written error report. Failures are only logged.
func (r *Runner) archiveReport(ctx context.Context) {
	if r.deps.Archiver == nil {
		return
	}
	log := logger.FromContext(ctx)
	uri, err := r.deps.Archiver.UploadFile(context.WithoutCancel(ctx), r.deps.Collector.Path())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to archive error report")
		return
	}
	log.Info().Str("uri", uri).Msg("Error report archived")
}

// LogUnitOutcomes logs one line for every unit of the ledger that failed or
// was written but not loaded, and returns how many lines it logged.
func (r *Runner) LogUnitOutcomes(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	list, err := r.deps.Jobs.ListJobs(ctx, jobs.JobFilter{})
	if err != nil {
		return 0, fmt.Errorf("LogUnitOutcomes: listing units: %w", err)
	}

	logged := 0
	for _, job := range list {
		switch {
		case job.Status == jobs.JobStatusFailed:
			log.Warn().
				Str("account", job.Account).
				Str("date", job.Date).
				Str("error", job.Error).
				Msg("Unit failed")
		case job.LoadError != "":
			log.Warn().
				Str("account", job.Account).
				Str("date", job.Date).
				Str("raw_path", job.RawPath).
				Str("load_error", job.LoadError).
				Msg("Unit written but not loaded")
		default:
			continue
		}
		logged++
	}
	return logged, nil
}

// Jobs returns the unit ledger of the runner.
func (r *Runner) Jobs() jobs.JobStore {
	return r.deps.Jobs
}
