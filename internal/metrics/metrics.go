// Package metrics owns the prometheus collectors exported by the backend.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the rag-chat collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	tokens      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragchat_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_llm_tokens_total",
			Help: "Language model tokens consumed, by provider, model and kind.",
		}, []string{"provider", "model", "kind"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}, []string{"bucket"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.tokens, m.rateLimited} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveTokens satisfies agent.TokenCounter.
func (m *Metrics) ObserveTokens(provider, model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	m.tokens.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

// ObserveRateLimited satisfies ratelimit.Observer.
func (m *Metrics) ObserveRateLimited(bucket string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(bucket).Inc()
}
