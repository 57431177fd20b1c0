package handlers

import (
	"net/http"

	"github.com/Dhoini/findxo-settlement/internal/domain"
	"github.com/Dhoini/findxo-settlement/internal/middleware"
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/req"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
)

// SubscriptionHandler отдает состояние подписки и ручную сверку.
type SubscriptionHandler struct {
	service SettlementService
	log     *logger.Logger
}

func NewSubscriptionHandler(service SettlementService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, log: log.Named("subscriptions")}
}

type ReconcileRequest struct {
	UserID        string `json:"user_id" validate:"required"`
	PlanID        string `json:"plan_id" validate:"required,uuid"`
	BillingPeriod string `json:"billing_period" validate:"omitempty,oneof=monthly yearly"`
}

// Status обрабатывает GET /subscriptions/status
func (h *SubscriptionHandler) Status(c *gin.Context) {
	view, err := h.service.SubscriptionStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, view, http.StatusOK)
}

// Reconcile обрабатывает POST /admin/subscriptions/reconcile
func (h *SubscriptionHandler) Reconcile(c *gin.Context) {
	body, err := req.HandleBody[ReconcileRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	h.log.Infow("Admin reconcile requested", "admin", middleware.UserID(c), "userID", body.UserID, "planID", body.PlanID)
	sub, err := h.service.Reconcile(c.Request.Context(), body.UserID, body.PlanID, domain.BillingPeriod(body.BillingPeriod))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, sub, http.StatusOK)
}
