package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

const namespace = "contentpipeline"

// Recorder exposes pipeline outcomes as Prometheus collectors on a private registry.
type Recorder struct {
	registry     *prometheus.Registry
	articles     *prometheus.CounterVec
	ruleFailures *prometheus.CounterVec
	revenue      prometheus.Histogram
	runs         prometheus.Counter
	lastRun      *prometheus.GaugeVec
}

var _ ports.Metrics = (*Recorder)(nil)

// NewRecorder registers all collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Articles by terminal state.",
		}, []string{"state", "stage"}),
		ruleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_failures_total",
			Help:      "Revenue rule failures treated as zero.",
		}, []string{"rule"}),
		revenue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "article_revenue",
			Help:      "Estimated revenue per recorded article.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs.",
		}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_articles",
			Help:      "Article counts of the most recent run.",
		}, []string{"kind"}),
	}

	reg.MustRegister(r.articles, r.ruleFailures, r.revenue, r.runs, r.lastRun)
	return r
}

// ObserveOutcome counts an article and, when recorded, its revenue.
func (r *Recorder) ObserveOutcome(outcome domain.Outcome) {
	stage := string(outcome.FailedStage)
	if stage == "" {
		stage = "none"
	}
	r.articles.WithLabelValues(string(outcome.State), stage).Inc()
	for _, rule := range outcome.Revenue.FailedRules {
		r.ruleFailures.WithLabelValues(rule).Inc()
	}
	if outcome.State == domain.StateRecorded {
		r.revenue.Observe(outcome.Revenue.Total)
	}
}

// ObserveRun records run-level counts.
func (r *Recorder) ObserveRun(report domain.RunReport) {
	r.runs.Inc()
	r.lastRun.WithLabelValues("recorded").Set(float64(report.Recorded()))
	r.lastRun.WithLabelValues("failed").Set(float64(report.Failed()))
	r.lastRun.WithLabelValues("skipped").Set(float64(report.Skipped))
	r.lastRun.WithLabelValues("cancelled").Set(float64(report.Cancelled))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}
