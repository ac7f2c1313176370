package domain

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DisbursementResultPayload is the body of a disbursement_result job: the
// asynchronous callback the payout gateway posted after a B2C attempt.
type DisbursementResultPayload struct {
	Result *GatewayResult `json:"Result"`
}

type GatewayResult struct {
	ResultCode               int           `json:"ResultCode"`
	ResultDesc               string        `json:"ResultDesc"`
	ConversationID           string        `json:"ConversationID"`
	OriginatorConversationID string        `json:"OriginatorConversationID"`
	TransactionID            string        `json:"TransactionID,omitempty"`
	ReferenceData            ReferenceData `json:"ReferenceData"`
}

// ReferenceData carries the key/value pairs we attached when initiating the
// payout. The gateway serializes ReferenceItem as a single object when there
// is one pair and as an array when there are several.
type ReferenceData struct {
	Items []ReferenceItem
}

type ReferenceItem struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

func (r *ReferenceData) UnmarshalJSON(b []byte) error {
	var multi struct {
		Items []ReferenceItem `json:"ReferenceItem"`
	}
	if err := json.Unmarshal(b, &multi); err == nil {
		r.Items = multi.Items
		return nil
	}
	var single struct {
		Item ReferenceItem `json:"ReferenceItem"`
	}
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	r.Items = []ReferenceItem{single.Item}
	return nil
}

func (r ReferenceData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Items []ReferenceItem `json:"ReferenceItem"`
	}{Items: r.Items})
}

const (
	loanRefPrefix = "loan-"
	loanRefKey    = "Occasion"
)

// LoanID extracts the loan identifier we smuggled through the gateway's
// reference block as "loan-<id>". The item tagged with the known key wins;
// the prefix scan is a fallback for results where the gateway dropped or
// renamed the key.
func (r ReferenceData) LoanID() (int64, error) {
	for _, it := range r.Items {
		if it.Key == loanRefKey && strings.HasPrefix(it.Value, loanRefPrefix) {
			return parseLoanRef(it.Value)
		}
	}
	for _, it := range r.Items {
		if strings.HasPrefix(it.Value, loanRefPrefix) {
			return parseLoanRef(it.Value)
		}
	}
	return 0, errors.New("no loan reference in result ReferenceData")
}

func parseLoanRef(v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(v, loanRefPrefix), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad loan reference %q", v)
	}
	return id, nil
}

// LoanRef formats the reference value for a loan when initiating a payout.
func LoanRef(loanID int64) string {
	return loanRefPrefix + strconv.FormatInt(loanID, 10)
}

// NotificationPayload is the body of a notification job, enqueued by the
// reconciler after a successful disbursement.
type NotificationPayload struct {
	LoanID        int64   `json:"loan_id"`
	CustomerID    string  `json:"customer_id"`
	Amount        float64 `json:"amount"`
	TenantID      string  `json:"tenant_id"`
	TransactionID string  `json:"transaction_id"`
}
