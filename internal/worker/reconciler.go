package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
)

// LendingStore is the reconciler's view of the loan-side tables. The
// guarded writes report whether a row matched so callers can branch on
// replayed callbacks instead of assuming the write applied.
type LendingStore interface {
	CompleteTransaction(ctx context.Context, convID, origID string, res domain.GatewayResult, raw []byte, now time.Time) error
	FailTransaction(ctx context.Context, convID, origID string, res domain.GatewayResult, raw []byte, now time.Time) error
	MarkLedgerSuccess(ctx context.Context, loanID int64) (bool, error)
	MarkLoanDisbursed(ctx context.Context, loanID int64, transactionID string, now time.Time) (bool, error)
	RevertLoan(ctx context.Context, loanID int64) (bool, error)
	TransactionByConversation(ctx context.Context, convID, origID string) (*domain.DisbursementTransaction, error)
}

// Enqueuer chains follow-up jobs onto the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID, jobType string, payload any) (string, error)
}

// Reconciler applies the payout gateway's asynchronous result to the
// transaction, ledger and loan records, and chains a notification job when
// money actually moved.
type Reconciler struct {
	lending LendingStore
	queue   Enqueuer
	log     *zap.Logger
}

func NewReconciler(lending LendingStore, queue Enqueuer, log *zap.Logger) *Reconciler {
	return &Reconciler{lending: lending, queue: queue, log: log}
}

func (r *Reconciler) Handle(ctx context.Context, p domain.DisbursementResultPayload) error {
	if p.Result == nil {
		return errors.New("disbursement result payload has no Result block")
	}
	res := *p.Result
	raw, err := json.Marshal(p.Result)
	if err != nil {
		return errors.Wrap(err, "re-encode gateway result")
	}
	now := time.Now().UTC()

	if res.ResultCode == 0 {
		return r.applySuccess(ctx, res, raw, now)
	}
	return r.applyFailure(ctx, res, raw, now)
}

func (r *Reconciler) applySuccess(ctx context.Context, res domain.GatewayResult, raw []byte, now time.Time) error {
	// Terminal gateway record; safe to overwrite on replay.
	if err := r.lending.CompleteTransaction(ctx, res.ConversationID, res.OriginatorConversationID, res, raw, now); err != nil {
		return err
	}

	loanID, err := res.ReferenceData.LoanID()
	if err != nil {
		return err
	}
	log := r.log.With(zap.Int64("loan_id", loanID), zap.String("transaction_id", res.TransactionID))

	settled, err := r.lending.MarkLedgerSuccess(ctx, loanID)
	if err != nil {
		return err
	}
	moved, err := r.lending.MarkLoanDisbursed(ctx, loanID, res.TransactionID, now)
	if err != nil {
		return err
	}
	if !moved {
		log.Info("loan not in ready_for_disbursement, transition skipped")
	}
	if !settled {
		// Replayed callback: the ledger already flipped, the
		// notification was already enqueued the first time around.
		log.Info("ledger entry already settled, notification skipped")
		return nil
	}

	// The disbursement itself stands from here on. A failure preparing
	// the follow-up notification is logged, never propagated — completed
	// money movement must not be retried for a missing lookup.
	txn, err := r.lending.TransactionByConversation(ctx, res.ConversationID, res.OriginatorConversationID)
	if err != nil {
		log.Error("transaction lookup for notification failed, disbursement stands", zap.Error(err))
		return nil
	}
	payload := domain.NotificationPayload{
		LoanID:        loanID,
		CustomerID:    txn.CustomerID,
		Amount:        txn.Amount,
		TenantID:      txn.TenantID,
		TransactionID: res.TransactionID,
	}
	if _, err := r.queue.Enqueue(ctx, txn.TenantID, domain.TypeNotification, payload); err != nil {
		log.Error("enqueueing notification failed, disbursement stands", zap.Error(err))
	}
	return nil
}

func (r *Reconciler) applyFailure(ctx context.Context, res domain.GatewayResult, raw []byte, now time.Time) error {
	if err := r.lending.FailTransaction(ctx, res.ConversationID, res.OriginatorConversationID, res, raw, now); err != nil {
		return err
	}

	loanID, err := res.ReferenceData.LoanID()
	if err != nil {
		// Failure results are not required to carry a loan reference;
		// without one there is nothing to revert.
		r.log.Warn("failed result carried no loan reference", zap.Error(err))
		return nil
	}
	reverted, err := r.lending.RevertLoan(ctx, loanID)
	if err != nil {
		return err
	}
	if !reverted {
		r.log.Info("loan already back in ready_for_disbursement", zap.Int64("loan_id", loanID))
	} else {
		r.log.Warn("disbursement failed, loan reverted for retry",
			zap.Int64("loan_id", loanID),
			zap.Int("result_code", res.ResultCode),
			zap.String("result_desc", res.ResultDesc))
	}
	return nil
}
