package handlers

import (
	"net/http"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
)

type RateHandler struct {
	service SettlementService
	log     *logger.Logger
}

func NewRateHandler(service SettlementService, log *logger.Logger) *RateHandler {
	return &RateHandler{service: service, log: log}
}

// GetRate обрабатывает GET /rates
func (h *RateHandler) GetRate(c *gin.Context) {
	quote := h.service.Rate(c.Request.Context())
	res.JsonResponse(c.Writer, gin.H{
		"base":       "SOL",
		"quote":      "EUR",
		"rate":       quote.Rate.String(),
		"fetched_at": quote.FetchedAt,
		"stale":      quote.Stale,
		"fallback":   quote.Fallback,
	}, http.StatusOK)
}
