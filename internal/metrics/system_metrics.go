package metrics

import (
	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewRegistry создает реестр с метриками рантайма и процесса.
func NewRegistry(log *logger.Logger) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	log.Debugw("Metrics registry initialized")
	return registry
}
