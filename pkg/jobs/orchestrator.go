package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/observability/metrics"
	"github.com/gitfolio/gitfolio/pkg/store"
)

// Job type names as persisted in the jobs table.
const (
	TypeRepoAnalysis        = "REPO_ANALYSIS"
	TypePortfolioGeneration = "PORTFOLIO_GENERATION"
)

// Runner performs the work for one job type. It returns a reference to the
// persisted result (an analysis or portfolio id).
type Runner func(ctx context.Context, inputKey string) (resultRef string, err error)

// Orchestrator owns the job state machine. It creates jobs in PENDING,
// hands them to the pool, and is the only writer of each job after that.
type Orchestrator struct {
	store       store.JobStore
	pool        *Pool
	runners     map[string]Runner
	dedupWindow time.Duration
}

// NewOrchestrator wires runners for the known job types. dedupWindow, when
// positive, lets Submit short-circuit to a recent completed job for the same
// input instead of creating a duplicate.
func NewOrchestrator(jobStore store.JobStore, pool *Pool, runners map[string]Runner, dedupWindow time.Duration) *Orchestrator {
	return &Orchestrator{
		store:       jobStore,
		pool:        pool,
		runners:     runners,
		dedupWindow: dedupWindow,
	}
}

// Submit persists a PENDING job and enqueues its execution, returning
// without waiting for the work. When a completed job for the same type and
// input exists inside the dedup window, that job is returned instead and no
// new work is scheduled. The dedup lookup is best effort: its failure never
// blocks job creation.
func (o *Orchestrator) Submit(ctx context.Context, jobType, inputKey string) (*store.Job, error) {
	if _, ok := o.runners[jobType]; !ok {
		return nil, faults.Newf(faults.KindInvalidInput, "unknown job type: %s", jobType)
	}

	if o.dedupWindow > 0 {
		since := time.Now().UTC().Add(-o.dedupWindow)
		if prior, err := o.store.LatestCompletedJob(ctx, jobType, inputKey, since); err != nil {
			observability.Warnf("job dedup lookup failed for %s %q: %v", jobType, inputKey, err)
		} else if prior != nil {
			observability.Infof("reusing completed job %s for %s %q", prior.ID, jobType, inputKey)
			return prior, nil
		}
	}

	now := time.Now().UTC()
	job := &store.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		InputKey:  inputKey,
		Status:    store.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "failed to persist job", err)
	}
	metrics.RecordJobTransition(jobType, string(store.JobPending))

	o.pool.Submit(func() { o.runOne(job.ID, jobType, inputKey) })
	return job, nil
}

// Status looks up a job by id.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*store.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// List returns all jobs, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*store.Job, error) {
	return o.store.ListJobs(ctx)
}

// runOne executes a job on a pool goroutine. Every failure, panics
// included, ends as a FAILED record with a sanitized message; errors never
// escape the worker boundary.
func (o *Orchestrator) runOne(jobID, jobType, inputKey string) {
	ctx := context.Background()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		observability.Errorf("job %s vanished before execution: %v", jobID, err)
		return
	}

	job.Status = store.JobProcessing
	if err := o.store.UpdateJob(ctx, job); err != nil {
		observability.Errorf("failed to mark job %s processing: %v", jobID, err)
		return
	}
	metrics.RecordJobTransition(jobType, string(store.JobProcessing))
	observability.Infof("job %s (%s) processing input %q", jobID, jobType, inputKey)

	resultRef, runErr := o.safeRun(ctx, jobType, inputKey)
	if runErr != nil {
		job.Status = store.JobFailed
		job.ErrorMessage = faults.ClientMessage(runErr)
		observability.Errorf("job %s failed: %v", jobID, runErr)
	} else {
		job.Status = store.JobCompleted
		job.ResultRef = resultRef
		observability.Infof("job %s completed, result %s", jobID, resultRef)
	}
	if err := o.store.UpdateJob(ctx, job); err != nil {
		observability.Errorf("failed to persist terminal state of job %s: %v", jobID, err)
		return
	}
	metrics.RecordJobTransition(jobType, string(job.Status))
}

func (o *Orchestrator) safeRun(ctx context.Context, jobType, inputKey string) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Newf(faults.KindInternal, "job execution panicked: %v", r)
		}
	}()
	return o.runners[jobType](ctx, inputKey)
}
