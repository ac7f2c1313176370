package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/disq/internal/domain"
)

// Lending wraps the loan-side tables the reconciler and notifier touch.
// Transaction, ledger and loan rows are shared with the disbursement
// initiation flow, so every write here is conditional on the expected
// prior status and callers branch on whether a row actually matched.
type Lending struct{ db *pgxpool.Pool }

func NewLending(db *pgxpool.Pool) *Lending { return &Lending{db} }

// CompleteTransaction finalizes the gateway transaction matched by either
// conversation-id variant. This is the terminal gateway record; it is safe
// to overwrite whatever status was there before.
func (l *Lending) CompleteTransaction(ctx context.Context, convID, origID string, res domain.GatewayResult, raw []byte, now time.Time) error {
	_, err := l.db.Exec(ctx,
		`update disbursement_transactions
		    set status = 'completed',
		        result_code = $3,
		        result_desc = $4,
		        transaction_id = $5,
		        raw_result = $6,
		        completed_at = $7,
		        updated_at = now()
		  where conversation_id = $1 or originator_conversation_id = $2`,
		convID, origID, res.ResultCode, res.ResultDesc, res.TransactionID, raw, now)
	return errors.Wrap(err, "complete disbursement transaction")
}

// FailTransaction finalizes the gateway transaction as failed.
func (l *Lending) FailTransaction(ctx context.Context, convID, origID string, res domain.GatewayResult, raw []byte, now time.Time) error {
	_, err := l.db.Exec(ctx,
		`update disbursement_transactions
		    set status = 'failed',
		        result_code = $3,
		        result_desc = $4,
		        raw_result = $5,
		        completed_at = $6,
		        updated_at = now()
		  where conversation_id = $1 or originator_conversation_id = $2`,
		convID, origID, res.ResultCode, res.ResultDesc, raw, now)
	return errors.Wrap(err, "fail disbursement transaction")
}

// MarkLedgerSuccess flips the loan's ledger entry from processing to
// success. Returns false when the entry was not in processing — the guard
// that stops a replayed callback from applying twice.
func (l *Lending) MarkLedgerSuccess(ctx context.Context, loanID int64) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`update disbursement_ledger
		    set status = 'success',
		        updated_at = now()
		  where loan_id = $1 and status = 'processing'`, loanID)
	if err != nil {
		return false, errors.Wrap(err, "settle ledger entry")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkLoanDisbursed transitions the loan to disbursed only from
// ready_for_disbursement. Returns false when the guard did not match.
func (l *Lending) MarkLoanDisbursed(ctx context.Context, loanID int64, transactionID string, now time.Time) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`update loans
		    set status = 'disbursed',
		        disbursed_at = $2,
		        disbursement_transaction_id = $3,
		        updated_at = now()
		  where id = $1 and status = 'ready_for_disbursement'`,
		loanID, now, transactionID)
	if err != nil {
		return false, errors.Wrap(err, "mark loan disbursed")
	}
	return tag.RowsAffected() > 0, nil
}

// RevertLoan puts a loan back to ready_for_disbursement after a failed
// payout so the initiation flow can try again.
func (l *Lending) RevertLoan(ctx context.Context, loanID int64) (bool, error) {
	tag, err := l.db.Exec(ctx,
		`update loans
		    set status = 'ready_for_disbursement',
		        disbursed_at = null,
		        disbursement_transaction_id = null,
		        updated_at = now()
		  where id = $1 and status in ('disbursed', 'processing')`, loanID)
	if err != nil {
		return false, errors.Wrap(err, "revert loan")
	}
	return tag.RowsAffected() > 0, nil
}

// TransactionByConversation fetches the originating payout record by
// either conversation-id variant.
func (l *Lending) TransactionByConversation(ctx context.Context, convID, origID string) (*domain.DisbursementTransaction, error) {
	var t domain.DisbursementTransaction
	err := l.db.QueryRow(ctx,
		`select id, tenant_id, customer_id, loan_id, amount,
		        conversation_id, originator_conversation_id,
		        coalesce(transaction_id, ''), status
		   from disbursement_transactions
		  where conversation_id = $1 or originator_conversation_id = $2`,
		convID, origID).Scan(
		&t.ID, &t.TenantID, &t.CustomerID, &t.LoanID, &t.Amount,
		&t.ConversationID, &t.OriginatorConversationID,
		&t.TransactionID, &t.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction for conversation %s/%s", convID, origID)
	}
	return &t, nil
}

// Customer fetches a tenant's customer.
func (l *Lending) Customer(ctx context.Context, tenantID, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := l.db.QueryRow(ctx,
		`select id, tenant_id, full_name, coalesce(mobile, '')
		   from customers
		  where id = $1 and tenant_id = $2`, customerID, tenantID).Scan(
		&c.ID, &c.TenantID, &c.FullName, &c.Mobile)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Errorf("customer %s not found for tenant %s", customerID, tenantID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch customer")
	}
	return &c, nil
}

// TenantSettings fetches a tenant's collection and messaging configuration.
func (l *Lending) TenantSettings(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	var s domain.TenantSettings
	err := l.db.QueryRow(ctx,
		`select tenant_id,
		        coalesce(paybill_number, ''),
		        coalesce(business_shortcode, ''),
		        coalesce(till_number, ''),
		        coalesce(sms_api_key, ''),
		        coalesce(sms_partner_id, ''),
		        coalesce(sms_base_url, ''),
		        coalesce(sms_shortcode, '')
		   from tenant_settings
		  where tenant_id = $1`, tenantID).Scan(
		&s.TenantID, &s.PaybillNumber, &s.BusinessShortcode, &s.TillNumber,
		&s.SMSAPIKey, &s.SMSPartnerID, &s.SMSBaseURL, &s.SMSShortcode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Errorf("no settings for tenant %s", tenantID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "fetch tenant settings")
	}
	return &s, nil
}

// LoanInstallment returns the loan's recurring installment amount.
func (l *Lending) LoanInstallment(ctx context.Context, loanID int64) (float64, error) {
	var amount float64
	err := l.db.QueryRow(ctx,
		`select installment_amount from loans where id = $1`, loanID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Errorf("loan %d not found", loanID)
	}
	if err != nil {
		return 0, errors.Wrap(err, "fetch loan installment")
	}
	return amount, nil
}

// InsertSendLog records an outbound SMS.
func (l *Lending) InsertSendLog(ctx context.Context, sl domain.SendLog) error {
	_, err := l.db.Exec(ctx, `insert into sms_send_logs(
message_id, tenant_id, customer_id, mobile, message, status, sent_at
) values ($1, $2, $3, $4, $5, $6, $7)`,
		sl.MessageID, sl.TenantID, sl.CustomerID, sl.Mobile, sl.Message, sl.Status, sl.SentAt)
	return errors.Wrap(err, "insert send log")
}
