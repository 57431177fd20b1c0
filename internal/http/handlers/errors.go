package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
)

// writeError отображает доменные ошибки на HTTP статусы.
func writeError(c *gin.Context, log *logger.Logger, err error) {
	var (
		validation   domain.ValidationErrors
		insufficient *domain.InsufficientFundsError
		paymentErr   *domain.PaymentError
		reconcileErr *domain.ReconciliationError
	)

	resp := res.ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &validation):
		status = http.StatusUnprocessableEntity
		resp.Code = "validation_failed"
		resp.Details = validation
	case errors.As(err, &insufficient):
		status = http.StatusPaymentRequired
		resp.Code = "insufficient_funds"
		resp.Details = gin.H{
			"required":  insufficient.Required.String(),
			"available": insufficient.Available.String(),
			"currency":  insufficient.Currency,
		}
	case errors.As(err, &reconcileErr):
		resp.Code = "reconciliation_failed"
		resp.Details = gin.H{"reference": reconcileErr.Reference, "attempts": reconcileErr.Attempts}
	case errors.As(err, &paymentErr):
		status = http.StatusUnprocessableEntity
		resp.Code = paymentErr.Code
		resp.Details = gin.H{"reference": paymentErr.Reference}
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrMalformedAddress):
		status = http.StatusBadRequest
		resp.Code = "invalid_input"
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
		resp.Code = "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		resp.Code = "not_found"
	case errors.Is(err, domain.ErrPaymentInProgress):
		status = http.StatusConflict
		resp.Code = "payment_in_progress"
	case errors.Is(err, domain.ErrTransactionRejected):
		status = http.StatusUnprocessableEntity
		resp.Code = "transaction_rejected"
	case errors.Is(err, domain.ErrRecipientNotConfigured):
		status = http.StatusServiceUnavailable
		resp.Code = "recipient_not_configured"
	default:
		resp.Error = "Internal server error"
		resp.Code = "internal"
	}

	_ = c.Error(err)
	res.JsonErrorResponse(c.Writer, resp, status, log)
	c.Abort()
}
