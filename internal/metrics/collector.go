// Package metrics exposes pipeline and HTTP counters to Prometheus. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dissent"

type Collector struct {
	registry *prometheus.Registry

	analysesTotal     *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	agentFailures     *prometheus.CounterVec
	residual          prometheus.Histogram
	decisionConf      *prometheus.HistogramVec
	replaysTotal      *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a private registry together with the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		analysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by final decision.",
		}, []string{"decision"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a full analysis run.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		agentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_failures_total",
			Help:      "Analyst calls degraded to an empty result.",
		}, []string{"agent", "stage"}),
		residual: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "residual_disagreement",
			Help:      "Residual disagreement of completed analyses.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		decisionConf: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_confidence",
			Help:      "Decision confidence by final decision.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}, []string{"decision"}),
		replaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replays_total",
			Help:      "Replays by status and determinism outcome.",
		}, []string{"status", "deterministic"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status_class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(
		c.analysesTotal,
		c.analysisDuration,
		c.agentFailures,
		c.residual,
		c.decisionConf,
		c.replaysTotal,
		c.httpRequestsTotal,
		c.httpDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveAnalysis(decision string, confidence, residual float64, took time.Duration) {
	if c == nil {
		return
	}
	c.analysesTotal.WithLabelValues(decision).Inc()
	c.decisionConf.WithLabelValues(decision).Observe(confidence)
	c.residual.Observe(residual)
	c.analysisDuration.Observe(took.Seconds())
}

func (c *Collector) AgentFailure(agent, stage string) {
	if c == nil {
		return
	}
	c.agentFailures.WithLabelValues(agent, stage).Inc()
}

func (c *Collector) Replay(status, deterministic string) {
	if c == nil {
		return
	}
	if deterministic == "" {
		deterministic = "n/a"
	}
	c.replaysTotal.WithLabelValues(status, deterministic).Inc()
}

func (c *Collector) HTTPRequest(method string, status int, took time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Inc()
	c.httpDuration.WithLabelValues(method).Observe(took.Seconds())
}
