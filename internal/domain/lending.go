package domain

import "time"

// Loan statuses the engine touches. The full loan state machine lives
// upstream; this worker only performs the two guarded transitions around
// disbursement.
const (
	LoanReadyForDisbursement = "ready_for_disbursement"
	LoanProcessing           = "processing"
	LoanDisbursed            = "disbursed"
)

// Disbursement transaction statuses (gateway-facing record).
const (
	TxnPending   = "pending"
	TxnCompleted = "completed"
	TxnFailed    = "failed"
)

// Disbursement ledger statuses (internal bookkeeping record).
const (
	LedgerProcessing = "processing"
	LedgerSuccess    = "success"
)

// DisbursementTransaction mirrors the payout-gateway record created when a
// B2C payment was initiated. The reconciler finalizes it exactly once.
type DisbursementTransaction struct {
	ID                       string
	TenantID                 string
	CustomerID               string
	LoanID                   int64
	Amount                   float64
	ConversationID           string
	OriginatorConversationID string
	TransactionID            string
	Status                   string
	ResultCode               int
	ResultDesc               string
	CompletedAt              *time.Time
}

type Customer struct {
	ID       string
	TenantID string
	FullName string
	Mobile   string
}

// TenantSettings holds the per-tenant collection and messaging
// configuration the notifier needs.
type TenantSettings struct {
	TenantID          string
	PaybillNumber     string
	BusinessShortcode string
	TillNumber        string
	SMSAPIKey         string
	SMSPartnerID      string
	SMSBaseURL        string
	SMSShortcode      string
}

// CollectionPaybill returns the number customers repay into, preferring the
// dedicated paybill and falling back through the shortcode and till number.
func (t TenantSettings) CollectionPaybill() string {
	for _, n := range []string{t.PaybillNumber, t.BusinessShortcode, t.TillNumber} {
		if n != "" {
			return n
		}
	}
	return ""
}

type SMSCredentials struct {
	APIKey    string
	PartnerID string
	BaseURL   string
	Shortcode string
}

// Credentials returns the notification-gateway credentials, or false when
// the tenant has not configured messaging.
func (t TenantSettings) Credentials() (SMSCredentials, bool) {
	c := SMSCredentials{
		APIKey:    t.SMSAPIKey,
		PartnerID: t.SMSPartnerID,
		BaseURL:   t.SMSBaseURL,
		Shortcode: t.SMSShortcode,
	}
	if c.APIKey == "" || c.BaseURL == "" {
		return SMSCredentials{}, false
	}
	return c, true
}

// SendLog records one outbound SMS.
type SendLog struct {
	MessageID  string
	TenantID   string
	CustomerID string
	Mobile     string
	Message    string
	Status     string
	SentAt     time.Time
}
