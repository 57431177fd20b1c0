package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/kafka"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
	"github.com/Dhoini/findxo-settlement/internal/metrics"
	"github.com/Dhoini/findxo-settlement/internal/payment"
	"github.com/Dhoini/findxo-settlement/internal/rate"
	"github.com/Dhoini/findxo-settlement/internal/repository"
	"github.com/Dhoini/findxo-settlement/internal/subscription"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultConfirmTimeout  = 60 * time.Second
	DefaultHandleRetention = time.Hour
	publishTimeout         = 10 * time.Second
)

var (
	errReferenceUsed = errors.New("transaction signature has already been used")
	errShuttingDown  = errors.New("service is shutting down")
)

// RateProvider отдает текущий курс.
type RateProvider interface {
	Quote(ctx context.Context) rate.Quote
}

// Config настройки сервиса расчетов.
type Config struct {
	ConfirmTimeout  time.Duration
	HandleRetention time.Duration
	Retry           subscription.RetryPolicy
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout:  DefaultConfirmTimeout,
		HandleRetention: DefaultHandleRetention,
		Retry:           subscription.DefaultRetryPolicy(),
	}
}

// Initiation ответ на initiatePayment.
type Initiation struct {
	Handle               string          `json:"handle"`
	Recipient            string          `json:"recipient"`
	FiatAmount           decimal.Decimal `json:"fiat_amount"`
	ExpectedCryptoAmount decimal.Decimal `json:"expected_crypto_amount"`
	Lamports             uint64          `json:"lamports"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	RecentBlockhash      string          `json:"recent_blockhash"`
	Transaction          string          `json:"transaction"`
	PaymentURL           string          `json:"payment_url"`
	ExpiresAt            time.Time       `json:"expires_at"`
}

// SettlementService ведет платеж от намерения до записи подписки.
// Наблюдения выполняются в фоне на базовом контексте сервиса, а не на контексте запроса.
type SettlementService struct {
	ledger      ledger.Client
	rates       RateProvider
	builder     *payment.Builder
	verifier    *payment.Verifier
	monitor     *payment.Monitor
	reconciler  *subscription.Reconciler
	settlements repository.SettlementRepository
	producer    kafka.Producer // Может быть nil, если Kafka недоступен
	metrics     metrics.PaymentMetrics
	cfg         Config
	log         *logger.Logger

	registry *registry
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSettlementService конструктор сервиса
func NewSettlementService(
	client ledger.Client,
	rates RateProvider,
	builder *payment.Builder,
	verifier *payment.Verifier,
	monitor *payment.Monitor,
	reconciler *subscription.Reconciler,
	settlements repository.SettlementRepository,
	producer kafka.Producer,
	m metrics.PaymentMetrics,
	cfg Config,
	log *logger.Logger,
) *SettlementService {
	if producer == nil {
		log.Warnw("Kafka producer is nil, event publishing will be skipped.")
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.HandleRetention <= 0 {
		cfg.HandleRetention = DefaultHandleRetention
	}

	now := func() time.Time { return time.Now().UTC() }
	ctx, cancel := context.WithCancel(context.Background())
	return &SettlementService{
		ledger:      client,
		rates:       rates,
		builder:     builder,
		verifier:    verifier,
		monitor:     monitor,
		reconciler:  reconciler,
		settlements: settlements,
		producer:    producer,
		metrics:     m,
		cfg:         cfg,
		log:         log.Named("settlement"),
		registry:    newRegistry(cfg.HandleRetention, now),
		now:         now,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Rate возвращает текущий курс.
func (s *SettlementService) Rate(ctx context.Context) rate.Quote {
	return s.rates.Quote(ctx)
}

// InitiatePayment проверяет намерение, строит перевод и регистрирует платеж.
func (s *SettlementService) InitiatePayment(ctx context.Context, userID string, intent domain.PaymentIntent) (*Initiation, error) {
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := intent.Validate(); err != nil {
		s.log.Warnw("Invalid payment intent", "userID", userID, "error", err)
		return nil, err
	}
	intent.PlanName, _ = domain.ParsePlanName(string(intent.PlanName))
	intent.BillingPeriod, _ = domain.ParseBillingPeriod(string(intent.BillingPeriod))

	if err := s.ledger.ValidateAddress(intent.PayerAddress); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedAddress, intent.PayerAddress)
	}

	transfer, err := s.builder.Build(ctx, intent.PayerAddress, intent.FiatAmount)
	if err != nil {
		s.log.Errorw("Failed to build transfer", "userID", userID, "error", err)
		return nil, err
	}

	if err := s.checkBalance(ctx, intent.PayerAddress, transfer); err != nil {
		return nil, err
	}

	now := s.now()
	intent.ExpectedCryptoAmount = transfer.CryptoAmount
	intent.CreatedAt = now
	if intent.FiatCurrency == "" {
		intent.FiatCurrency = "EUR"
	}

	p := &pendingPayment{
		handle:    uuid.NewString(),
		userID:    userID,
		intent:    intent,
		transfer:  transfer,
		createdAt: now,
		status:    domain.PaymentStatusPending,
		updatedAt: now,
		done:      make(chan struct{}),
	}
	s.registry.add(p)
	s.metrics.IncPaymentInitiated(string(intent.PlanName))

	var exchangeRate decimal.Decimal
	if transfer.CryptoAmount.IsPositive() {
		exchangeRate = intent.FiatAmount.Div(transfer.CryptoAmount).Round(2)
	}

	s.log.Infow("Payment initiated",
		"handle", p.handle,
		"userID", userID,
		"plan", intent.PlanName,
		"period", intent.BillingPeriod,
		"crypto", transfer.CryptoAmount.String(),
		"lamports", transfer.Lamports,
	)

	return &Initiation{
		Handle:               p.handle,
		Recipient:            transfer.Recipient,
		FiatAmount:           intent.FiatAmount,
		ExpectedCryptoAmount: transfer.CryptoAmount,
		Lamports:             transfer.Lamports,
		ExchangeRate:         exchangeRate,
		RecentBlockhash:      transfer.RecentBlockhash,
		Transaction:          base64.StdEncoding.EncodeToString(transfer.Payload),
		PaymentURL:           payment.PaymentURL(transfer.Recipient, transfer.CryptoAmount, intent.PlanName, intent.BillingPeriod),
		ExpiresAt:            now.Add(s.monitor.Timeout()),
	}, nil
}

// checkBalance отклоняет платеж, если на кошельке меньше требуемой суммы.
// Ошибка сети не блокирует платеж: проверка лишь подсказка пользователю.
func (s *SettlementService) checkBalance(ctx context.Context, payer string, transfer *ledger.UnsignedTransfer) error {
	balance, err := s.ledger.GetBalance(ctx, payer, ledger.CommitmentConfirmed)
	if err != nil {
		s.log.Warnw("Failed to check payer balance, continuing", "payer", payer, "error", err)
		return nil
	}
	if balance < transfer.Lamports {
		available := ledger.FromLamports(int64(balance))
		s.log.Infow("Insufficient payer balance", "payer", payer, "available", available.String(), "required", transfer.CryptoAmount.String())
		return &domain.InsufficientFundsError{
			Required:  transfer.CryptoAmount,
			Available: available,
			Currency:  ledger.Currency,
		}
	}
	return nil
}

// AwaitResult возвращает состояние платежа. При wait > 0 ждет терминального исхода не дольше wait.
func (s *SettlementService) AwaitResult(ctx context.Context, userID, handle string, wait time.Duration) (domain.PaymentResult, error) {
	p, err := s.registry.get(handle, userID)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return s.registry.result(p), nil
}

// SubmitReference начинает наблюдение за транзакцией, которую кошелек уже отправил.
func (s *SettlementService) SubmitReference(ctx context.Context, userID, handle, reference string) (domain.PaymentResult, error) {
	if !domain.ValidReference(reference) {
		return domain.PaymentResult{}, fmt.Errorf("%w: invalid transaction signature format", domain.ErrInvalidInput)
	}
	p, err := s.registry.begin(handle, userID, domain.WatchByReference, reference)
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.log.Infow("Watching submitted reference", "handle", handle, "reference", reference)
	s.spawn(func(ctx context.Context) { s.watchReference(ctx, p, reference) })
	return s.registry.result(p), nil
}

// SubmitSignedTransaction отправляет подписанный перевод в сеть и ждет подтверждения в фоне.
func (s *SettlementService) SubmitSignedTransaction(ctx context.Context, userID, handle string, signedTx []byte) (domain.PaymentResult, error) {
	if len(signedTx) == 0 {
		return domain.PaymentResult{}, fmt.Errorf("%w: signed transaction is empty", domain.ErrInvalidInput)
	}
	p, err := s.registry.begin(handle, userID, domain.WatchBySubmit, "")
	if err != nil {
		return domain.PaymentResult{}, err
	}

	reference, err := s.ledger.SendTransaction(ctx, signedTx)
	if err != nil {
		s.log.Errorw("Failed to send transaction", "handle", handle, "error", err)
		s.fail(p, "transaction_rejected", err)
		return s.registry.result(p), fmt.Errorf("%w: %v", domain.ErrTransactionRejected, err)
	}
	s.registry.setReference(p, reference)

	s.log.Infow("Transaction sent", "handle", handle, "reference", reference)
	s.spawn(func(ctx context.Context) { s.confirmAndSettle(ctx, p, reference) })
	return s.registry.result(p), nil
}

// WatchRecipient ищет входящий перевод от плательщика (оплата по QR).
func (s *SettlementService) WatchRecipient(ctx context.Context, userID, handle string) (domain.PaymentResult, error) {
	p, err := s.registry.begin(handle, userID, domain.WatchByRecipient, "")
	if err != nil {
		return domain.PaymentResult{}, err
	}

	s.log.Infow("Scanning for inbound payment", "handle", handle, "payer", p.intent.PayerAddress)
	s.spawn(func(ctx context.Context) { s.watchRecipient(ctx, p) })
	return s.registry.result(p), nil
}

// Reconcile ручная сверка подписки администратором.
func (s *SettlementService) Reconcile(ctx context.Context, userID, planID string, period domain.BillingPeriod) (*domain.Subscription, error) {
	if userID == "" || planID == "" {
		return nil, fmt.Errorf("%w: user_id and plan_id are required", domain.ErrInvalidInput)
	}
	if period == "" {
		period = domain.BillingMonthly
	}
	sub, err := s.reconciler.Reconcile(ctx, userID, planID, period)
	if err != nil {
		s.log.Errorw("Manual reconciliation failed", "userID", userID, "planID", planID, "error", err)
		return nil, err
	}
	return sub, nil
}

// SubscriptionStatus возвращает эффективную подписку пользователя.
func (s *SettlementService) SubscriptionStatus(ctx context.Context, userID string) (domain.SubscriptionView, error) {
	return s.reconciler.Status(ctx, userID)
}

// Shutdown отменяет фоновые наблюдения и ждет их завершения.
func (s *SettlementService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SettlementService) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.baseCtx)
	}()
}

func (s *SettlementService) watchReference(ctx context.Context, p *pendingPayment, reference string) {
	matched, err := s.monitor.MonitorTransaction(ctx, reference, p.intent.ExpectedCryptoAmount)
	switch {
	case err != nil:
		s.fail(p, "verification_failed", err)
	case !matched:
		s.timeout(p)
	default:
		s.settle(ctx, p, reference, true)
	}
}

func (s *SettlementService) confirmAndSettle(ctx context.Context, p *pendingPayment, reference string) {
	confirmCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()

	if err := s.ledger.ConfirmTransaction(confirmCtx, reference, ledger.CommitmentConfirmed); err != nil {
		if ctx.Err() != nil {
			s.fail(p, "cancelled", errShuttingDown)
			return
		}
		if errors.Is(err, ledger.ErrConfirmTimeout) {
			s.timeout(p)
			return
		}
		s.fail(p, "confirmation_failed", err)
		return
	}
	s.settle(ctx, p, reference, false)
}

func (s *SettlementService) watchRecipient(ctx context.Context, p *pendingPayment) {
	reference, err := s.monitor.MonitorRecipient(ctx, payment.ScanRequest{
		Payer:    p.intent.PayerAddress,
		Expected: p.intent.ExpectedCryptoAmount,
		Exclude:  func(ref string) bool { return s.consumed(ctx, ref) },
	})
	switch {
	case err != nil:
		s.fail(p, "cancelled", err)
	case reference == "":
		s.timeout(p)
	default:
		s.registry.setReference(p, reference)
		s.settle(ctx, p, reference, true)
	}
}

// consumed сообщает, использована ли ссылка другим платежом.
func (s *SettlementService) consumed(ctx context.Context, reference string) bool {
	settlement, err := s.settlements.GetByReference(ctx, reference)
	return err == nil && settlement != nil
}

// settle проверяет перевод, однократно закрепляет ссылку и записывает подписку.
// Шаги повторяются по политике Retry. Проверка пропускается, если монитор уже
// сверил транзакцию, и после закрепления ссылки: оплата к этому моменту подтверждена.
// Закрепленная ссылка без записанной подписки всегда завершается ReconciliationError.
func (s *SettlementService) settle(ctx context.Context, p *pendingPayment, reference string, verified bool) {
	log := s.log.With("handle", p.handle, "reference", reference, "userID", p.userID)
	expected := p.intent.ExpectedCryptoAmount

	var (
		claimed  bool
		mismatch bool
		sub      *domain.Subscription
	)

	op := func(ctx context.Context, attempt int) error {
		mismatch = false
		if !claimed && (!verified || attempt > 1) {
			ok, err := s.verifier.Verify(ctx, reference, expected, s.builder.Recipient())
			if err != nil {
				if errors.Is(err, domain.ErrInvalidInput) {
					return backoff.Permanent(err)
				}
				return err
			}
			if !ok {
				mismatch = true
				return domain.ErrVerificationMismatch
			}
		}

		if !claimed {
			created, err := s.settlements.Record(ctx, &domain.Settlement{
				Reference:    reference,
				UserID:       p.userID,
				PlanID:       s.planID(p),
				CryptoAmount: expected,
				FiatAmount:   p.intent.FiatAmount,
				CreatedAt:    s.now(),
			})
			if err != nil {
				return err
			}
			if !created {
				return backoff.Permanent(errReferenceUsed)
			}
			claimed = true
		}

		activated, err := s.reconciler.ActivatePlan(ctx, p.userID, p.intent.PlanName, p.intent.BillingPeriod)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return backoff.Permanent(err)
			}
			return err
		}
		sub = activated
		return nil
	}

	attempts, err := s.cfg.Retry.Do(ctx, op, func(err error, attempt int, wait time.Duration) {
		s.metrics.IncReconcileAttempt("retry")
		log.Warnw("Settlement attempt failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	})

	switch {
	case err == nil:
		s.metrics.IncReconcileAttempt("success")
		s.succeed(p, sub)
	case errors.Is(err, errReferenceUsed):
		s.metrics.IncReconcileAttempt("replay")
		s.fail(p, "reference_already_used",
			domain.NewPaymentError("reference_already_used", errReferenceUsed.Error(), reference, domain.ErrInvalidInput))
	case claimed:
		s.escalate(p, log, reference, attempts, err)
	case mismatch:
		s.metrics.IncReconcileAttempt("mismatch")
		s.fail(p, "verification_mismatch",
			domain.NewPaymentError("verification_mismatch", "transaction does not match the expected payment", reference, domain.ErrVerificationMismatch))
	case ctx.Err() != nil && !claimed:
		s.fail(p, "cancelled", errShuttingDown)
	default:
		s.escalate(p, log, reference, attempts, err)
	}
}

// escalate завершает платеж ошибкой для ручной сверки по ссылке.
func (s *SettlementService) escalate(p *pendingPayment, log *logger.Logger, reference string, attempts int, err error) {
	s.metrics.IncReconcileAttempt("failed")
	rerr := &domain.ReconciliationError{Reference: reference, Attempts: attempts, OriginalErr: err}
	log.Errorw("Payment settled on-chain but subscription was not recorded", "attempts", attempts, "error", err)
	s.fail(p, "reconciliation_failed", rerr)
}

func (s *SettlementService) planID(p *pendingPayment) string {
	for _, plan := range domain.Catalogue() {
		if plan.Name == p.intent.PlanName {
			return plan.ID
		}
	}
	return ""
}

func (s *SettlementService) succeed(p *pendingPayment, sub *domain.Subscription) {
	if !s.registry.finish(p, domain.PaymentStatusSucceeded, "", sub) {
		return
	}
	s.metrics.IncPaymentSettled(string(p.intent.PlanName))
	s.metrics.ObserveSettlementDuration(string(p.mode), s.now().Sub(p.watchStarted))
	s.log.Infow("Payment settled", "handle", p.handle, "userID", p.userID, "plan", p.intent.PlanName, "subscriptionID", sub.ID)
	s.publish(p)
}

func (s *SettlementService) fail(p *pendingPayment, code string, err error) {
	if !s.registry.finish(p, domain.PaymentStatusFailed, err.Error(), nil) {
		return
	}
	s.metrics.IncPaymentFailed(string(p.intent.PlanName), code)
	s.log.Warnw("Payment failed", "handle", p.handle, "userID", p.userID, "reason", code, "error", err)
	s.publish(p)
}

func (s *SettlementService) timeout(p *pendingPayment) {
	reason := fmt.Sprintf("%s: no matching payment within %s", domain.ErrTimeout, s.monitor.Timeout())
	if !s.registry.finish(p, domain.PaymentStatusTimedOut, reason, nil) {
		return
	}
	s.metrics.IncPaymentFailed(string(p.intent.PlanName), "timeout")
	s.log.Infow("Payment watch timed out", "handle", p.handle, "userID", p.userID)
	s.publish(p)
}

// publish отправляет событие асинхронно; ошибка Kafka не влияет на исход платежа.
func (s *SettlementService) publish(p *pendingPayment) {
	if s.producer == nil {
		return
	}
	result := s.registry.result(p)
	event := &domain.SettlementEvent{
		Handle:        result.Handle,
		UserID:        p.userID,
		PlanName:      p.intent.PlanName,
		BillingPeriod: p.intent.BillingPeriod,
		Status:        result.Status,
		Reference:     result.Reference,
		Reason:        result.Reason,
		CryptoAmount:  p.intent.ExpectedCryptoAmount,
		OccurredAt:    result.UpdatedAt,
	}
	if result.Subscription != nil {
		event.SubscriptionID = result.Subscription.ID
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), publishTimeout)
		defer cancel()
		if err := s.producer.PublishSettlementEvent(ctx, kafka.TopicFor(event.Status), event); err != nil {
			s.log.Errorw("Failed to publish settlement event", "handle", event.Handle, "error", err)
		}
	}()
}
