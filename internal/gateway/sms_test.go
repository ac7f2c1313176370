package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
	"github.com/you/disq/internal/gateway"
)

func creds(baseURL string) domain.SMSCredentials {
	return domain.SMSCredentials{
		APIKey:    "key",
		PartnerID: "partner",
		BaseURL:   baseURL,
		Shortcode: "LENDER",
	}
}

func TestSendPostsForm(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		got = map[string]string{
			"apikey":    r.FormValue("apikey"),
			"partnerID": r.FormValue("partnerID"),
			"shortcode": r.FormValue("shortcode"),
			"mobile":    r.FormValue("mobile"),
			"message":   r.FormValue("message"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sms := gateway.NewSMS(5*time.Second, zap.NewNop())
	err := sms.Send(context.Background(), creds(srv.URL), "254712345678", "Dear customer, funds sent & received.")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["mobile"] != "254712345678" || got["shortcode"] != "LENDER" || got["apikey"] != "key" {
		t.Fatalf("form = %+v", got)
	}
	if !strings.Contains(got["message"], "&") {
		t.Fatal("message should survive url encoding intact")
	}
}

func TestSendNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	sms := gateway.NewSMS(5*time.Second, zap.NewNop())
	err := sms.Send(context.Background(), creds(srv.URL), "254712345678", "hi")
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("error %q should carry status and body", err)
	}
}

func TestSendBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sms := gateway.NewSMS(5*time.Second, zap.NewNop())
	for i := 0; i < 10; i++ {
		if err := sms.Send(context.Background(), creds(srv.URL), "254712345678", "hi"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if n := hits.Load(); n >= 10 {
		t.Fatalf("gateway hit %d times, breaker never opened", n)
	}
}
