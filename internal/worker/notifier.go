package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/disq/internal/domain"
)

// NotifyStore is the notifier's view of customer, loan and send-log rows.
type NotifyStore interface {
	Customer(ctx context.Context, tenantID, customerID string) (*domain.Customer, error)
	LoanInstallment(ctx context.Context, loanID int64) (float64, error)
	InsertSendLog(ctx context.Context, sl domain.SendLog) error
}

// SettingsSource resolves tenant settings (cache-fronted in production).
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (*domain.TenantSettings, error)
}

// Sender delivers one message through the notification gateway.
type Sender interface {
	Send(ctx context.Context, creds domain.SMSCredentials, mobile, message string) error
}

// Notifier handles notification jobs: resolve customer and tenant
// configuration, format the disbursement SMS, send it, record the send.
// Any missing data is a handler error — de-duplication is the reconciler's
// job, this handler just has to be safe to retry.
type Notifier struct {
	store    NotifyStore
	settings SettingsSource
	sms      Sender
	log      *zap.Logger
}

func NewNotifier(store NotifyStore, settings SettingsSource, sms Sender, log *zap.Logger) *Notifier {
	return &Notifier{store: store, settings: settings, sms: sms, log: log}
}

func (n *Notifier) Handle(ctx context.Context, p domain.NotificationPayload) error {
	cust, err := n.store.Customer(ctx, p.TenantID, p.CustomerID)
	if err != nil {
		return err
	}
	if cust.Mobile == "" {
		return errors.Errorf("customer %s has no mobile number", p.CustomerID)
	}

	settings, err := n.settings.Get(ctx, p.TenantID)
	if err != nil {
		return err
	}
	paybill := settings.CollectionPaybill()
	if paybill == "" {
		return errors.Errorf("tenant %s has no collection paybill configured", p.TenantID)
	}

	installment, err := n.store.LoanInstallment(ctx, p.LoanID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"Dear %s, your loan of KES %.2f has been disbursed. Ref: %s. Repay KES %.2f per installment via Paybill %s, account your mobile number.",
		cust.FullName, p.Amount, p.TransactionID, installment, paybill)

	creds, ok := settings.Credentials()
	if !ok {
		return errors.Errorf("tenant %s has no sms gateway credentials", p.TenantID)
	}
	if err := n.sms.Send(ctx, creds, cust.Mobile, message); err != nil {
		return err
	}

	sl := domain.SendLog{
		MessageID:  uuid.NewString(),
		TenantID:   p.TenantID,
		CustomerID: cust.ID,
		Mobile:     cust.Mobile,
		Message:    message,
		Status:     "sent",
		SentAt:     time.Now().UTC(),
	}
	if err := n.store.InsertSendLog(ctx, sl); err != nil {
		return err
	}
	n.log.Info("disbursement notification sent",
		zap.String("tenant_id", p.TenantID),
		zap.String("customer_id", cust.ID),
		zap.Int64("loan_id", p.LoanID),
		zap.String("message_id", sl.MessageID))
	return nil
}
