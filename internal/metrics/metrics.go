// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedbackpay"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		},
		[]string{"method", "route"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "submissions_total",
			Help:      "Feedback submissions by terminal status.",
		},
		[]string{"status"},
	)

	slotConsumes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "consume_total",
			Help:      "Slot consumption attempts by result.",
		},
		[]string{"result"},
	)

	disburseAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disbursement",
			Name:      "attempts_total",
			Help:      "Reward transfer attempts by result.",
		},
		[]string{"result"},
	)

	disburseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "disbursement",
			Name:      "duration_seconds",
			Help:      "Wall time of a reward disbursement including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		},
		[]string{"outcome"},
	)

	depositVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposits",
			Name:      "verifications_total",
			Help:      "Deposit verifications by result.",
		},
		[]string{"result"},
	)

	rewardBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "disbursement",
			Name:      "reward_wallet_lamports",
			Help:      "Last observed balance of the reward wallet.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		settlements,
		slotConsumes,
		disburseAttempts,
		disburseDuration,
		depositVerifications,
		rewardBalance,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Requests are labelled by chi route pattern to keep cardinality bounded.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordSettlement counts a feedback submission that reached status.
func RecordSettlement(status string) {
	settlements.WithLabelValues(status).Inc()
}

// RecordSlotConsume counts a TryConsume call; result is consumed, empty or error.
func RecordSlotConsume(result string) {
	slotConsumes.WithLabelValues(result).Inc()
}

// RecordDisbursementAttempt counts one transfer attempt; result is ok, error or timeout.
func RecordDisbursementAttempt(result string) {
	disburseAttempts.WithLabelValues(result).Inc()
}

// RecordDisbursement observes a finished disbursement.
func RecordDisbursement(outcome string, duration time.Duration) {
	disburseDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordDepositVerification counts a verification by result kind.
func RecordDepositVerification(result string) {
	if result == "" {
		result = "unknown"
	}
	depositVerifications.WithLabelValues(result).Inc()
}

// SetRewardBalance records the reward wallet balance in lamports.
func SetRewardBalance(lamports uint64) {
	rewardBalance.Set(float64(lamports))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
