package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
)

// SMS sends messages through a tenant's notification gateway. The HTTP
// client carries a hard timeout so a hung gateway surfaces as a handler
// failure instead of pinning the drain loop, and a circuit breaker sheds
// calls while the gateway is down.
type SMS struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

func NewSMS(timeout time.Duration, log *zap.Logger) *SMS {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sms-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &SMS{
		client: &http.Client{Timeout: timeout},
		cb:     cb,
		log:    log,
	}
}

// Send posts one message. Any 2xx is success; anything else is an error
// carrying the response body.
func (s *SMS) Send(ctx context.Context, creds domain.SMSCredentials, mobile, message string) error {
	form := url.Values{}
	form.Set("apikey", creds.APIKey)
	form.Set("partnerID", creds.PartnerID)
	form.Set("shortcode", creds.Shortcode)
	form.Set("mobile", mobile)
	form.Set("message", message)

	_, err := s.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.BaseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, errors.Wrap(err, "build sms request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(err, "call sms gateway")
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, errors.Errorf("sms gateway returned %d: %s", resp.StatusCode, body)
		}
		return nil, nil
	})
	return err
}
