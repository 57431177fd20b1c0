package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/middleware"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/req"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// MaxResultWait верхняя граница long-poll ожидания результата.
const MaxResultWait = 30 * time.Second

// PaymentHandler обрабатывает HTTP запросы, связанные с платежами.
type PaymentHandler struct {
	service SettlementService
	log     *logger.Logger
}

// NewPaymentHandler создает новый экземпляр PaymentHandler.
func NewPaymentHandler(service SettlementService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.Named("payments"),
	}
}

type InitiatePaymentRequest struct {
	PlanName      string `json:"plan_name" validate:"required,oneof=free investigator pro"`
	BillingPeriod string `json:"billing_period" validate:"required,oneof=monthly yearly"`
	FiatAmount    string `json:"fiat_amount" validate:"required,numeric"`
	// PayerAddress по умолчанию берется из токена.
	PayerAddress string `json:"payer_address" validate:"omitempty,min=32,max=64"`
}

type SubmitReferenceRequest struct {
	Reference string `json:"reference" validate:"required,alphanum,min=64"`
}

type SubmitTransactionRequest struct {
	Transaction string `json:"transaction" validate:"required,base64"`
}

// Initiate обрабатывает POST /payments
func (h *PaymentHandler) Initiate(c *gin.Context) {
	body, err := req.HandleBody[InitiatePaymentRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	amount, err := decimal.NewFromString(body.FiatAmount)
	if err != nil {
		writeError(c, h.log, fmt.Errorf("%w: fiat_amount is not a number", domain.ErrInvalidInput))
		return
	}

	payer := body.PayerAddress
	if payer == "" {
		payer = middleware.Wallet(c)
	}

	initiation, err := h.service.InitiatePayment(c.Request.Context(), middleware.UserID(c), domain.PaymentIntent{
		FiatAmount:    amount,
		FiatCurrency:  "EUR",
		PlanName:      domain.PlanName(body.PlanName),
		BillingPeriod: domain.BillingPeriod(body.BillingPeriod),
		PayerAddress:  payer,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	res.JsonResponse(c.Writer, initiation, http.StatusCreated)
}

// Result обрабатывает GET /payments/:handle?wait=15s
func (h *PaymentHandler) Result(c *gin.Context) {
	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			writeError(c, h.log, fmt.Errorf("%w: wait must be a duration like 10s", domain.ErrInvalidInput))
			return
		}
		wait = min(parsed, MaxResultWait)
	}

	result, err := h.service.AwaitResult(c.Request.Context(), middleware.UserID(c), c.Param("handle"), wait)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// SubmitReference обрабатывает POST /payments/:handle/reference
func (h *PaymentHandler) SubmitReference(c *gin.Context) {
	body, err := req.HandleBody[SubmitReferenceRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	result, err := h.service.SubmitReference(c.Request.Context(), middleware.UserID(c), c.Param("handle"), body.Reference)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusAccepted)
}

// SubmitTransaction обрабатывает POST /payments/:handle/submit
func (h *PaymentHandler) SubmitTransaction(c *gin.Context) {
	body, err := req.HandleBody[SubmitTransactionRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	signed, err := base64.StdEncoding.DecodeString(body.Transaction)
	if err != nil {
		writeError(c, h.log, fmt.Errorf("%w: transaction must be base64", domain.ErrInvalidInput))
		return
	}

	result, err := h.service.SubmitSignedTransaction(c.Request.Context(), middleware.UserID(c), c.Param("handle"), signed)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusAccepted)
}

// Watch обрабатывает POST /payments/:handle/watch
func (h *PaymentHandler) Watch(c *gin.Context) {
	result, err := h.service.WatchRecipient(c.Request.Context(), middleware.UserID(c), c.Param("handle"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusAccepted)
}
