package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "attendance_submissions_total",
		Help:      "Attendance code submissions by outcome.",
	}, []string{"outcome"})

	codesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "codes_issued_total",
		Help:      "Attendance codes issued.",
	})

	justifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "justifications_total",
		Help:      "Justification lifecycle events.",
	}, []string{"event"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qrattend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Submission outcomes.
const (
	OutcomeRecorded          = "recorded"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeInvalidCode       = "invalid_code"
	OutcomeExpiredCode       = "expired_code"
	OutcomeSessionNotFound   = "session_not_found"
	OutcomeError             = "error"
)

func ObserveSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

func ObserveCodeIssued() {
	codesIssued.Inc()
}

// ObserveJustification counts a lifecycle event: filed, approved or rejected.
func ObserveJustification(event string) {
	justifications.WithLabelValues(event).Inc()
}

// GinMiddleware records request latency labelled by the matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
