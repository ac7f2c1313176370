package domain

import "time"

type Status string

const (
	Queued    Status = "queued"
	Claimed   Status = "claimed"
	Completed Status = "completed"
	Failed    Status = "failed"
	Dead      Status = "dead"
)

// Job types this worker claims. The allow-list is passed to the store's
// claim procedure; anything outside it is left for other workers.
const (
	TypeDisbursementResult = "disbursement_result"
	TypeNotification       = "notification"
)

type Job struct {
	ID          string
	TenantID    string
	Type        string
	Payload     []byte
	Status      Status
	Priority    int
	Attempts    int
	MaxAttempts int
	ScheduledAt time.Time
	ClaimedAt   *time.Time
	ClaimedBy   *string
	CompletedAt *time.Time
	FailedAt    *time.Time
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
