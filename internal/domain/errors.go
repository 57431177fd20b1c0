package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthorized пользователь не авторизован
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateUnavailable курс недоступен (восстановимо: используется кеш или запасной курс)
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrMalformedAddress некорректный адрес кошелька
	ErrMalformedAddress = errors.New("malformed address")

	// ErrRecipientNotConfigured не настроен кошелек получателя
	ErrRecipientNotConfigured = errors.New("payment recipient is not configured")

	// ErrInsufficientFunds недостаточно средств
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrVerificationMismatch транзакция не совпадает с ожидаемым платежом
	ErrVerificationMismatch = errors.New("payment verification mismatch")

	// ErrTimeout превышено время ожидания
	ErrTimeout = errors.New("timeout exceeded")

	// ErrReconciliationConflict подписку не удалось записать, нужна ручная сверка
	ErrReconciliationConflict = errors.New("reconciliation failed")

	// ErrTransactionRejected транзакция отклонена сетью или подписантом
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrPaymentInProgress по этому платежу уже идет наблюдение
	ErrPaymentInProgress = errors.New("payment already in progress")
)

// PaymentError представляет терминальную ошибку платежа
type PaymentError struct {
	Code        string
	Message     string
	Reference   string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PaymentError) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("payment error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment error [%s]: %s (reference: %s)", e.Code, e.Message, e.Reference)
}

// Unwrap возвращает оригинальную ошибку
func (e *PaymentError) Unwrap() error {
	return e.OriginalErr
}

// NewPaymentError создает новую ошибку платежа
func NewPaymentError(code, message, reference string, err error) *PaymentError {
	return &PaymentError{
		Code:        code,
		Message:     message,
		Reference:   reference,
		OriginalErr: err,
	}
}

// InsufficientFundsError сообщает требуемую и доступную сумму.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: you have %s %s but need %s %s",
		e.Available.StringFixed(4), e.Currency, e.Required.StringFixed(4), e.Currency)
}

// Is позволяет errors.Is(err, ErrInsufficientFunds)
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// ReconciliationError - эскалация в поддержку: платеж прошел, подписка не записана.
type ReconciliationError struct {
	Reference   string
	Attempts    int
	OriginalErr error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("failed to update subscription after %d attempts, please contact support with transaction signature: %s",
		e.Attempts, e.Reference)
}

func (e *ReconciliationError) Unwrap() error {
	return e.OriginalErr
}

func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliationConflict
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is позволяет errors.Is(err, ErrInvalidInput)
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err возвращает nil, если ошибок нет.
func (e ValidationErrors) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// GetByField возвращает сообщение об ошибке для указанного поля
func (e ValidationErrors) GetByField(field string) string {
	for _, err := range e {
		if err.Field == field {
			return err.Message
		}
	}
	return ""
}
