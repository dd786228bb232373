package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_session_sends_total",
		Help: "Completion requests sent to the gateway",
	}, []string{"mode"})

	fragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_session_stream_fragments_total",
		Help: "Fragments merged into streamed replies",
	})

	replyErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_session_reply_errors_total",
		Help: "Replies that failed, by error kind",
	}, []string{"kind"})

	replyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loom_session_reply_duration_seconds",
		Help:    "Time from request to the end of the reply",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"mode"})

	threadsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loom_session_threads",
		Help: "Number of threads in the store",
	})
)

func modeLabel(stream bool) string {
	if stream {
		return "stream"
	}
	return "sync"
}
