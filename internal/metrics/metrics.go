// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jeranaias/rigrun-chat/internal/render"
)

const namespace = "rigrun_chat"

// Registry holds the application metrics. All methods are safe for
// concurrent use and tolerate a nil receiver.
type Registry struct {
	registry *prometheus.Registry

	renders        *prometheus.CounterVec
	renderDuration *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	questions      *prometheus.CounterVec
	answerLatency  prometheus.Histogram
	continuations  prometheus.Counter
	feedback       *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	sessions       prometheus.Gauge
}

// New creates a Registry with Go runtime and process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Registry{
		registry: reg,
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Markdown renders by path (engine, fallback, plain).",
		}, []string{"path"}),
		renderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Markdown render latency by path.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"path"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_total",
			Help:      "Questions by outcome (answered, failed, rejected, rate_limited).",
		}, []string{"outcome"}),
		answerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Backend answer latency.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		continuations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continuations_total",
			Help:      "Answers that were truncated and offered a continuation.",
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_total",
			Help:      "Feedback submissions by rating.",
		}, []string{"rating"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter (ip or session).",
		}, []string{"scope"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently tracked.",
		}),
	}

	reg.MustRegister(
		m.renders, m.renderDuration,
		m.requests, m.requestLatency,
		m.questions, m.answerLatency, m.continuations,
		m.feedback, m.rateLimited, m.sessions,
	)
	return m
}

var _ render.Observer = (*Registry)(nil)

// ObserveRender implements render.Observer.
func (m *Registry) ObserveRender(path render.Path, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(string(path)).Inc()
	m.renderDuration.WithLabelValues(string(path)).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request.
func (m *Registry) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Question outcomes.
const (
	OutcomeAnswered    = "answered"
	OutcomeFailed      = "failed"
	OutcomeRejected    = "rejected"
	OutcomeRateLimited = "rate_limited"
)

// ObserveQuestion records a question outcome.
func (m *Registry) ObserveQuestion(outcome string) {
	if m == nil {
		return
	}
	m.questions.WithLabelValues(outcome).Inc()
}

// ObserveAnswer records a backend answer.
func (m *Registry) ObserveAnswer(elapsed time.Duration, continuation bool) {
	if m == nil {
		return
	}
	m.answerLatency.Observe(elapsed.Seconds())
	if continuation {
		m.continuations.Inc()
	}
}

// ObserveFeedback records a feedback rating.
func (m *Registry) ObserveFeedback(rating int) {
	if m == nil {
		return
	}
	m.feedback.WithLabelValues(strconv.Itoa(rating)).Inc()
}

// ObserveRateLimited records a rate limit rejection; scope is "ip" or
// "session".
func (m *Registry) ObserveRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

// SetSessions sets the active session gauge.
func (m *Registry) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

// Gatherer returns the underlying registry for exposition (see
// promhttp.HandlerFor).
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}
