package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/disq/internal/domain"
)

// Queue is the engine's view of the job table. Claiming and stuck-job
// recovery go through stored procedures so the atomicity lives in the
// database, where it works across processes.
type Queue struct{ db *pgxpool.Pool }

func NewQueue(db *pgxpool.Pool) *Queue { return &Queue{db} }

const jobColumns = `id, tenant_id, job_type, payload, status, priority,
attempts, max_attempts, scheduled_at, claimed_at, claimed_by,
completed_at, failed_at, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.TenantID, &j.Type, &j.Payload, &j.Status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.ScheduledAt, &j.ClaimedAt, &j.ClaimedBy,
		&j.CompletedAt, &j.FailedAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ClaimNext atomically claims one eligible job for workerID, or returns
// (nil, nil) when nothing is claimable. The claim_next_job procedure locks
// the row with SKIP LOCKED semantics and increments attempts. An empty
// tenantID claims across all tenants.
func (q *Queue) ClaimNext(ctx context.Context, workerID string, jobTypes []string, tenantID string) (*domain.Job, error) {
	var tenant *string
	if tenantID != "" {
		tenant = &tenantID
	}
	row := q.db.QueryRow(ctx,
		`select `+jobColumns+` from claim_next_job($1, $2, $3)`, workerID, jobTypes, tenant)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim next job")
	}
	return j, nil
}

// Settle writes are guarded on holding the claim: stuck recovery can hand
// a slow worker's job to someone else, and the slow worker's late settle
// must not clobber the live claim. Callers branch on the returned match.

// Complete marks a job done if workerID still holds its claim.
func (q *Queue) Complete(ctx context.Context, jobID, workerID string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`update jobs
		    set status = 'completed',
		        completed_at = now(),
		        updated_at = now()
		  where id = $1 and status = 'claimed' and claimed_by = $2`, jobID, workerID)
	if err != nil {
		return false, errors.Wrap(err, "complete job")
	}
	return tag.RowsAffected() > 0, nil
}

// Requeue returns a failed job to the queue with its next eligible time
// pushed forward, recording the failure, if workerID still holds its claim.
func (q *Queue) Requeue(ctx context.Context, jobID, workerID, lastError string, runAt time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`update jobs
		    set status = 'queued',
		        last_error = $3,
		        failed_at = now(),
		        claimed_at = null,
		        claimed_by = null,
		        scheduled_at = $4,
		        updated_at = now()
		  where id = $1 and status = 'claimed' and claimed_by = $2`,
		jobID, workerID, lastError, runAt)
	if err != nil {
		return false, errors.Wrap(err, "requeue job")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkDead dead-letters a job if workerID still holds its claim; nothing
// claims it again.
func (q *Queue) MarkDead(ctx context.Context, jobID, workerID, lastError string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`update jobs
		    set status = 'dead',
		        last_error = $3,
		        failed_at = now(),
		        claimed_at = null,
		        claimed_by = null,
		        updated_at = now()
		  where id = $1 and status = 'claimed' and claimed_by = $2`,
		jobID, workerID, lastError)
	if err != nil {
		return false, errors.Wrap(err, "dead-letter job")
	}
	return tag.RowsAffected() > 0, nil
}

// Release puts a claimed job straight back in the queue. Used when a
// tenant-scoped invocation claims another tenant's job; the claim charged
// an attempt, a release is not a failure, so the attempt is refunded.
func (q *Queue) Release(ctx context.Context, jobID, workerID string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`update jobs
		    set status = 'queued',
		        attempts = greatest(attempts - 1, 0),
		        claimed_at = null,
		        claimed_by = null,
		        updated_at = now()
		  where id = $1 and status = 'claimed' and claimed_by = $2`, jobID, workerID)
	if err != nil {
		return false, errors.Wrap(err, "release job")
	}
	return tag.RowsAffected() > 0, nil
}

// Enqueue inserts a new queued job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, tenantID, jobType string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "encode payload")
	}
	id := uuid.NewString()
	_, err = q.db.Exec(ctx, `insert into jobs(
id, tenant_id, job_type, payload, status, priority, attempts, max_attempts, scheduled_at
) values ($1, $2, $3, $4, 'queued', 0, 0, 3, now())`,
		id, tenantID, jobType, body)
	if err != nil {
		return "", errors.Wrapf(err, "enqueue %s job", jobType)
	}
	return id, nil
}

// RecoverStuck resets jobs claimed longer than olderThan ago back to
// queued and returns how many were reset.
func (q *Queue) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`select recover_stuck_jobs(make_interval(secs => $1))`, olderThan.Seconds()).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "recover stuck jobs")
	}
	return n, nil
}
