// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kisanmitra_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kisanmitra_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// CompletionDuration tracks model reply latency.
	CompletionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kisanmitra_completion_duration_seconds",
			Help:    "Language model reply duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// ChatsTotal counts chat requests by reply language and input language.
	ChatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kisanmitra_chats_total",
			Help: "Chat requests by UI language and detected user language",
		},
		[]string{"ui_language", "user_language"},
	)

	// TransliterationsTotal counts transliteration attempts by outcome.
	TransliterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kisanmitra_transliterations_total",
			Help: "Transliteration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WorkerRejections counts jobs refused because the queue was full.
	WorkerRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kisanmitra_worker_rejections_total",
			Help: "Completion jobs rejected because the dispatcher queue was full",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCompletion records one model call.
func RecordCompletion(provider, status string, duration float64) {
	CompletionDuration.WithLabelValues(provider, status).Observe(duration)
}

// RecordChat counts a chat request by its language pair.
func RecordChat(uiLanguage, userLanguage string) {
	ChatsTotal.WithLabelValues(uiLanguage, userLanguage).Inc()
}

// RecordTransliteration counts a transliteration outcome: "ok", "cached" or "failed".
func RecordTransliteration(outcome string) {
	TransliterationsTotal.WithLabelValues(outcome).Inc()
}
