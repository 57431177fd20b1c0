package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
)

// Probe проверяет одну зависимость.
type Probe = func(ctx context.Context) error

// HealthHandler проверка работоспособности сервиса и его зависимостей.
type HealthHandler struct {
	probes map[string]Probe
	log    *logger.Logger
}

func NewHealthHandler(probes map[string]Probe, log *logger.Logger) *HealthHandler {
	return &HealthHandler{probes: probes, log: log}
}

// Health обрабатывает GET /health. Недоступная зависимость дает 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.probes))
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			h.log.Warnw("Health probe failed", "dependency", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	res.JsonResponse(c.Writer, gin.H{
		"status": overall,
		"time":   time.Now().Format(time.RFC3339),
		"checks": checks,
	}, status)
}
