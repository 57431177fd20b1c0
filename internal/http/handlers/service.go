package handlers

import (
	"context"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/rate"
	"github.com/Dhoini/findxo-settlement/internal/services"
)

// SettlementService операции сервиса расчетов, доступные через HTTP.
type SettlementService interface {
	Rate(ctx context.Context) rate.Quote
	InitiatePayment(ctx context.Context, userID string, intent domain.PaymentIntent) (*services.Initiation, error)
	AwaitResult(ctx context.Context, userID, handle string, wait time.Duration) (domain.PaymentResult, error)
	SubmitReference(ctx context.Context, userID, handle, reference string) (domain.PaymentResult, error)
	SubmitSignedTransaction(ctx context.Context, userID, handle string, signedTx []byte) (domain.PaymentResult, error)
	WatchRecipient(ctx context.Context, userID, handle string) (domain.PaymentResult, error)
	SubscriptionStatus(ctx context.Context, userID string) (domain.SubscriptionView, error)
	Reconcile(ctx context.Context, userID, planID string, period domain.BillingPeriod) (*domain.Subscription, error)
}

var _ SettlementService = (*services.SettlementService)(nil)
