package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	ingestResults    *prom.CounterVec
	latestAdvances   prom.Counter
	buildClaims      prom.Counter
	buildCompletions *prom.CounterVec
	scanDuration     prom.Histogram
	staleBatchSize   prom.Gauge
	queuePublishes   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.ingestResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docregistry",
			Name:      "ingest_results_total",
			Help:      "Release ingestion results by outcome",
		}, []string{"result"})
		pr.latestAdvances = prom.NewCounter(prom.CounterOpts{
			Namespace: "docregistry",
			Name:      "latest_pointer_advances_total",
			Help:      "Times a package's latest-release pointer moved",
		})
		pr.buildClaims = prom.NewCounter(prom.CounterOpts{
			Namespace: "docregistry",
			Name:      "build_claims_total",
			Help:      "Build attempts claimed by workers",
		})
		pr.buildCompletions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docregistry",
			Name:      "build_completions_total",
			Help:      "Build completions by terminal status",
		}, []string{"status"})
		pr.scanDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docregistry",
			Name:      "stale_scan_duration_seconds",
			Help:      "Duration of staleness scan queries",
			Buckets:   prom.DefBuckets,
		})
		pr.staleBatchSize = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docregistry",
			Name:      "stale_batch_size",
			Help:      "Size of the most recent staleness batch",
		})
		pr.queuePublishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docregistry",
			Name:      "queue_publish_results_total",
			Help:      "Rebuild job publish results",
		}, []string{"result"})
		reg.MustRegister(pr.ingestResults, pr.latestAdvances, pr.buildClaims,
			pr.buildCompletions, pr.scanDuration, pr.staleBatchSize, pr.queuePublishes)
	})
	return pr
}

func (p *PrometheusRecorder) IncIngestResult(result ResultLabel) {
	if p == nil || p.ingestResults == nil {
		return
	}
	p.ingestResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncLatestAdvance() {
	if p == nil || p.latestAdvances == nil {
		return
	}
	p.latestAdvances.Inc()
}

func (p *PrometheusRecorder) IncBuildClaim() {
	if p == nil || p.buildClaims == nil {
		return
	}
	p.buildClaims.Inc()
}

func (p *PrometheusRecorder) IncBuildCompletion(status string) {
	if p == nil || p.buildCompletions == nil {
		return
	}
	p.buildCompletions.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveScanDuration(d time.Duration) {
	if p == nil || p.scanDuration == nil {
		return
	}
	p.scanDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetStaleBatchSize(n int) {
	if p == nil || p.staleBatchSize == nil {
		return
	}
	p.staleBatchSize.Set(float64(n))
}

func (p *PrometheusRecorder) IncQueuePublish(result ResultLabel) {
	if p == nil || p.queuePublishes == nil {
		return
	}
	p.queuePublishes.WithLabelValues(string(result)).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
