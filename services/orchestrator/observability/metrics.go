// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat exchanges.
// Metrics include:
//   - Message counters (by outcome and classifier rule)
//   - Backend latency histograms
//   - Error counters (by endpoint and error code)
//   - A live session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *ChatMetrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "edubot"

// Subsystem for chat metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for the chat service.
//
// # Fields
//
//   - MessagesTotal: Counter of handled messages by outcome and rule
//   - BackendDurationSeconds: Histogram of LLM backend call latency
//   - ErrorsTotal: Counter of errors by endpoint and code
//   - HistoryClearsTotal: Counter of history resets
//   - Sessions: Gauge of live sessions in the history store
type ChatMetrics struct {
	// MessagesTotal counts handled chat messages.
	// Labels: outcome (answered, refused, failed), rule (meta, keyword, question, none)
	MessagesTotal *prometheus.CounterVec

	// BackendDurationSeconds measures backend call latency.
	// Labels: model, status (success, error)
	BackendDurationSeconds *prometheus.HistogramVec

	// ErrorsTotal counts errors by endpoint and code.
	ErrorsTotal *prometheus.CounterVec

	// HistoryClearsTotal counts POST /clear_history calls.
	HistoryClearsTotal prometheus.Counter

	// Sessions tracks the number of sessions held by the history store.
	Sessions prometheus.Gauge
}

// NewChatMetrics creates and registers the chat metrics with reg.
//
// # Inputs
//
//   - reg: Registry to register with. prometheus.DefaultRegisterer in
//     production; a fresh prometheus.NewRegistry() in tests. nil creates
//     unregistered metrics.
//
// # Limitations
//
//   - Panics if called twice with the same registry (duplicate registration).
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	factory := promauto.With(reg)

	return &ChatMetrics{
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "messages_total",
				Help:      "Total chat messages by outcome and classifier rule",
			},
			[]string{"outcome", "rule"},
		),

		BackendDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "backend_duration_seconds",
				Help:      "LLM backend call duration in seconds",
				Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"model", "status"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		HistoryClearsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "history_clears_total",
				Help:      "Total history clear requests",
			},
		),

		Sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sessions",
				Help:      "Number of sessions held in the history store",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Outcome is the result of one chat exchange.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeRefused  Outcome = "refused"
	OutcomeFailed   Outcome = "failed"
)

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeUnconfigured indicates no LLM backend is configured.
	ErrorCodeUnconfigured ErrorCode = "unconfigured"

	// ErrorCodeLLMError indicates LLM API failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"
)

// Endpoint represents an HTTP endpoint for metrics labeling.
type Endpoint string

const (
	EndpointChat         Endpoint = "chat"
	EndpointHistory      Endpoint = "history"
	EndpointClearHistory Endpoint = "clear_history"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordMessage records a handled chat message.
func (m *ChatMetrics) RecordMessage(outcome Outcome, rule string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(string(outcome), rule).Inc()
}

// RecordBackendCall records the latency of one backend call.
func (m *ChatMetrics) RecordBackendCall(model string, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.BackendDurationSeconds.WithLabelValues(model, status).Observe(seconds)
}

// RecordError records an error returned to a client.
func (m *ChatMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordHistoryClear records one history reset.
func (m *ChatMetrics) RecordHistoryClear() {
	if m == nil {
		return
	}
	m.HistoryClearsTotal.Inc()
}

// SetSessions sets the live session gauge.
func (m *ChatMetrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}
