// Package prometheus exports resource and task metrics for scraping.
package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

type metricsPublisher struct {
	registry *prometheus.Registry

	memoryUsage *prometheus.GaugeVec
	cpuUsage    *prometheus.GaugeVec
	totalMemory prometheus.Gauge
	totalCPU    prometheus.Gauge
	violations  *prometheus.CounterVec
	tasks       *prometheus.CounterVec
}

// NewMetricsPublisher builds a dedicated registry so each service exposes
// only its own series.
func NewMetricsPublisher() *metricsPublisher {
	registry := prometheus.NewRegistry()

	p := &metricsPublisher{
		registry: registry,
		memoryUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resource_manager_memory_usage_bytes",
			Help: "Memory usage by container",
		}, []string{"container"}),
		cpuUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resource_manager_cpu_usage_percent",
			Help: "CPU usage by container",
		}, []string{"container"}),
		totalMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resource_manager_total_memory_bytes",
			Help: "Total memory usage",
		}),
		totalCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "resource_manager_total_cpu_percent",
			Help: "Total CPU usage",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resource_manager_violations_total",
			Help: "Resource limit violations",
		}, []string{"type"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tasks_total",
			Help: "Finished tasks by mode and status",
		}, []string{"mode", "status"}),
	}

	registry.MustRegister(p.memoryUsage, p.cpuUsage, p.totalMemory, p.totalCPU, p.violations, p.tasks)
	return p
}

var _ port.MetricsPublisher = (*metricsPublisher)(nil)

func (p *metricsPublisher) SetContainerUsage(name string, memoryBytes int64, cpuPercent float64) {
	p.memoryUsage.WithLabelValues(name).Set(float64(memoryBytes))
	p.cpuUsage.WithLabelValues(name).Set(cpuPercent)
}

func (p *metricsPublisher) SetTotals(memoryBytes int64, cpuPercent float64) {
	p.totalMemory.Set(float64(memoryBytes))
	p.totalCPU.Set(cpuPercent)
}

func (p *metricsPublisher) IncViolation(kind string) {
	p.violations.WithLabelValues(kind).Inc()
}

func (p *metricsPublisher) IncTask(mode string, status domain.TaskStatus) {
	p.tasks.WithLabelValues(mode, string(status)).Inc()
}

// Handler serves the text exposition format for GET /metrics.
func (p *metricsPublisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
