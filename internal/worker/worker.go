// Package worker drains the job queue: claim one job through the store's
// atomic claim procedure, dispatch it to the handler registered for its
// type, settle the outcome, repeat until the queue is empty. Concurrency
// safety comes entirely from the store-level claim — many invocations of
// Drain may run at once across processes.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
)

// QueueStore is the engine's contract with the job table. The settle
// writes apply only while workerID still holds the claim and report
// whether a row matched, so a stale worker whose job was recovered and
// re-claimed cannot clobber the live claim.
type QueueStore interface {
	ClaimNext(ctx context.Context, workerID string, jobTypes []string, tenantID string) (*domain.Job, error)
	Complete(ctx context.Context, jobID, workerID string) (bool, error)
	Requeue(ctx context.Context, jobID, workerID, lastError string, runAt time.Time) (bool, error)
	MarkDead(ctx context.Context, jobID, workerID, lastError string) (bool, error)
	Release(ctx context.Context, jobID, workerID string) (bool, error)
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

// Summary is the drain result returned to the HTTP caller.
type Summary struct {
	WorkerID  string `json:"workerId"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

type Worker struct {
	queue          QueueStore
	registry       *Registry
	backoff        time.Duration
	maxJobs        int
	stuckThreshold time.Duration
	log            *zap.Logger
}

func New(queue QueueStore, registry *Registry, backoff time.Duration, maxJobs int, stuckThreshold time.Duration, log *zap.Logger) *Worker {
	return &Worker{
		queue:          queue,
		registry:       registry,
		backoff:        backoff,
		maxJobs:        maxJobs,
		stuckThreshold: stuckThreshold,
		log:            log,
	}
}

// Drain claims and processes jobs until the queue has nothing claimable
// for this worker's job types, then returns the summary. When tenantID is
// set, jobs claimed for other tenants are released back untouched and do
// not count either way. maxJobs bounds one invocation so a queue fed
// faster than it drains cannot pin it forever; the next invocation picks
// up where this one stopped.
func (w *Worker) Drain(ctx context.Context, tenantID string) (Summary, error) {
	sum := Summary{WorkerID: uuid.NewString()}
	log := w.log.With(zap.String("worker_id", sum.WorkerID))
	types := w.registry.Types()
	released := make(map[string]bool)

	for i := 0; w.maxJobs <= 0 || i < w.maxJobs; i++ {
		job, err := w.queue.ClaimNext(ctx, sum.WorkerID, types, tenantID)
		if err != nil {
			return sum, err
		}
		if job == nil {
			break
		}
		jlog := log.With(
			zap.String("job_id", job.ID),
			zap.String("job_type", job.Type),
			zap.String("tenant_id", job.TenantID),
		)

		if tenantID != "" && job.TenantID != tenantID {
			// The claim filters by tenant, so this only happens when the
			// store ignores the filter. Release the job for other workers
			// — and if the store hands it straight back, stop rather than
			// spin claim/release on it for the rest of the invocation.
			if _, err := w.queue.Release(ctx, job.ID, sum.WorkerID); err != nil {
				return sum, err
			}
			if released[job.ID] {
				jlog.Warn("store returned a job this invocation already released, stopping drain")
				break
			}
			released[job.ID] = true
			jlog.Info("released job belonging to another tenant")
			continue
		}

		if err := w.process(ctx, job); err != nil {
			w.settleFailure(ctx, jlog, sum.WorkerID, job, err)
			sum.Failed++
			continue
		}
		done, err := w.queue.Complete(ctx, job.ID, sum.WorkerID)
		if err != nil {
			// Handler already ran; leave the claim for stuck recovery
			// rather than guessing at the job's state.
			jlog.Error("marking job completed failed", zap.Error(err))
			sum.Failed++
			continue
		}
		if !done {
			jlog.Warn("claim was taken over before completion, settle skipped")
			continue
		}
		jlog.Info("job completed")
		sum.Processed++
	}
	return sum, nil
}

func (w *Worker) process(ctx context.Context, job *domain.Job) error {
	h, ok := w.registry.Get(job.Type)
	if !ok {
		return errors.Errorf("no handler for job type %q", job.Type)
	}
	return h(ctx, job.Payload)
}

// settleFailure applies the retry/dead-letter policy. Attempts was already
// incremented by the claim, so attempts >= max_attempts means this was the
// job's last chance. Bookkeeping failures here are logged only — the job
// stays claimed and stuck recovery returns it to the queue later.
func (w *Worker) settleFailure(ctx context.Context, log *zap.Logger, workerID string, job *domain.Job, herr error) {
	msg := herr.Error()
	if job.Attempts >= job.MaxAttempts {
		done, err := w.queue.MarkDead(ctx, job.ID, workerID, msg)
		if err != nil {
			log.Error("dead-lettering job failed", zap.Error(err))
			return
		}
		if !done {
			log.Warn("claim was taken over before dead-lettering, settle skipped")
			return
		}
		log.Error("job dead-lettered",
			zap.Int("attempts", job.Attempts),
			zap.String("last_error", msg))
		return
	}
	runAt := time.Now().UTC().Add(w.backoff)
	done, err := w.queue.Requeue(ctx, job.ID, workerID, msg, runAt)
	if err != nil {
		log.Error("requeueing job failed", zap.Error(err))
		return
	}
	if !done {
		log.Warn("claim was taken over before requeue, settle skipped")
		return
	}
	log.Warn("job requeued",
		zap.Int("attempts", job.Attempts),
		zap.Int("max_attempts", job.MaxAttempts),
		zap.Time("next_run_at", runAt),
		zap.String("last_error", msg))
}

// Recover resets claims older than the staleness threshold back to queued
// and returns how many jobs it reset. Administrative; touches no job logic.
func (w *Worker) Recover(ctx context.Context) (int, error) {
	n, err := w.queue.RecoverStuck(ctx, w.stuckThreshold)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.log.Warn("recovered stuck jobs", zap.Int("count", n))
	}
	return n, nil
}
