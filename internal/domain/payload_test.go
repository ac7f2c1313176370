package domain

import (
	"encoding/json"
	"testing"
)

func TestReferenceDataSingleItem(t *testing.T) {
	raw := []byte(`{"Result":{"ResultCode":0,"ResultDesc":"ok","ConversationID":"AG_1","OriginatorConversationID":"29112-1","TransactionID":"QK12","ReferenceData":{"ReferenceItem":{"Key":"Occasion","Value":"loan-42"}}}}`)

	var p DisbursementResultPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Result == nil {
		t.Fatal("expected Result block")
	}
	id, err := p.Result.ReferenceData.LoanID()
	if err != nil {
		t.Fatalf("loan id: %v", err)
	}
	if id != 42 {
		t.Fatalf("loan id = %d, want 42", id)
	}
}

func TestReferenceDataItemList(t *testing.T) {
	raw := []byte(`{"ReferenceItem":[{"Key":"QueueTimeoutURL","Value":"https://x"},{"Key":"Occasion","Value":"loan-7"}]}`)

	var rd ReferenceData
	if err := json.Unmarshal(raw, &rd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	id, err := rd.LoanID()
	if err != nil {
		t.Fatalf("loan id: %v", err)
	}
	if id != 7 {
		t.Fatalf("loan id = %d, want 7", id)
	}
}

func TestLoanIDMissingReference(t *testing.T) {
	rd := ReferenceData{Items: []ReferenceItem{{Key: "Occasion", Value: "invoice-9"}}}
	if _, err := rd.LoanID(); err == nil {
		t.Fatal("expected error for missing loan reference")
	}
}

func TestLoanIDPrefersKnownKey(t *testing.T) {
	rd := ReferenceData{Items: []ReferenceItem{
		{Key: "Remarks", Value: "loan-999"},
		{Key: "Occasion", Value: "loan-42"},
	}}
	id, err := rd.LoanID()
	if err != nil {
		t.Fatalf("loan id: %v", err)
	}
	if id != 42 {
		t.Fatalf("loan id = %d, want the Occasion item, not the stray loan- value", id)
	}
}

func TestLoanRefRoundTrip(t *testing.T) {
	rd := ReferenceData{Items: []ReferenceItem{{Key: "Occasion", Value: LoanRef(9001)}}}
	id, err := rd.LoanID()
	if err != nil {
		t.Fatalf("loan id: %v", err)
	}
	if id != 9001 {
		t.Fatalf("loan id = %d, want 9001", id)
	}
}

func TestLoanIDMalformed(t *testing.T) {
	rd := ReferenceData{Items: []ReferenceItem{{Key: "Occasion", Value: "loan-abc"}}}
	if _, err := rd.LoanID(); err == nil {
		t.Fatal("expected error for malformed loan reference")
	}
}

func TestCollectionPaybillFallback(t *testing.T) {
	s := TenantSettings{PaybillNumber: "400200", BusinessShortcode: "500100", TillNumber: "600300"}
	if got := s.CollectionPaybill(); got != "400200" {
		t.Fatalf("paybill = %q, want 400200", got)
	}
	s.PaybillNumber = ""
	if got := s.CollectionPaybill(); got != "500100" {
		t.Fatalf("paybill = %q, want shortcode fallback", got)
	}
	s.BusinessShortcode = ""
	if got := s.CollectionPaybill(); got != "600300" {
		t.Fatalf("paybill = %q, want till fallback", got)
	}
	s.TillNumber = ""
	if got := s.CollectionPaybill(); got != "" {
		t.Fatalf("paybill = %q, want empty", got)
	}
}

func TestCredentialsRequireKeyAndURL(t *testing.T) {
	s := TenantSettings{SMSAPIKey: "k", SMSBaseURL: "https://sms", SMSPartnerID: "p", SMSShortcode: "SENDER"}
	if _, ok := s.Credentials(); !ok {
		t.Fatal("expected credentials to be present")
	}
	s.SMSBaseURL = ""
	if _, ok := s.Credentials(); ok {
		t.Fatal("expected missing base url to invalidate credentials")
	}
}
