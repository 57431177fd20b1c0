package services

import (
	"sync"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/ledger"
)

// pendingPayment состояние одного платежа от initiate до терминального исхода.
type pendingPayment struct {
	handle    string
	userID    string
	intent    domain.PaymentIntent
	transfer  *ledger.UnsignedTransfer
	createdAt time.Time

	status       domain.PaymentStatus
	mode         domain.WatchMode
	reference    string
	reason       string
	subscription *domain.Subscription
	updatedAt    time.Time
	watchStarted time.Time

	done chan struct{}
}

func (p *pendingPayment) snapshot() domain.PaymentResult {
	return domain.PaymentResult{
		Handle:       p.handle,
		Status:       p.status,
		Mode:         p.mode,
		Reference:    p.reference,
		Reason:       p.reason,
		Subscription: p.subscription,
		UpdatedAt:    p.updatedAt,
	}
}

// registry хранит платежи по handle. Завершенные и брошенные записи
// удаляются лениво при регистрации новых.
type registry struct {
	mu        sync.Mutex
	payments  map[string]*pendingPayment
	retention time.Duration
	now       func() time.Time
}

func newRegistry(retention time.Duration, now func() time.Time) *registry {
	return &registry{
		payments:  make(map[string]*pendingPayment),
		retention: retention,
		now:       now,
	}
}

func (r *registry) add(p *pendingPayment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	r.payments[p.handle] = p
}

// get возвращает платеж, только если он принадлежит userID.
func (r *registry) get(handle, userID string) (*pendingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[handle]
	if !ok || p.userID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// begin переводит платеж из pending в watching. Повторное наблюдение запрещено.
func (r *registry) begin(handle, userID string, mode domain.WatchMode, reference string) (*pendingPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[handle]
	if !ok || p.userID != userID {
		return nil, domain.ErrNotFound
	}
	if p.status != domain.PaymentStatusPending {
		return nil, domain.ErrPaymentInProgress
	}
	now := r.now()
	p.status = domain.PaymentStatusWatching
	p.mode = mode
	p.reference = reference
	p.updatedAt = now
	p.watchStarted = now
	return p, nil
}

func (r *registry) setReference(p *pendingPayment, reference string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.reference = reference
	p.updatedAt = r.now()
}

// finish фиксирует терминальный исход. Повторный вызов игнорируется.
func (r *registry) finish(p *pendingPayment, status domain.PaymentStatus, reason string, sub *domain.Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.status.Terminal() {
		return false
	}
	p.status = status
	p.reason = reason
	p.subscription = sub
	p.updatedAt = r.now()
	close(p.done)
	return true
}

func (r *registry) result(p *pendingPayment) domain.PaymentResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return p.snapshot()
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

func (r *registry) purgeLocked() {
	cutoff := r.now().Add(-r.retention)
	for handle, p := range r.payments {
		if p.status == domain.PaymentStatusWatching {
			continue
		}
		if p.updatedAt.Before(cutoff) {
			delete(r.payments, handle)
		}
	}
}
