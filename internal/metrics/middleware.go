package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blueberrycongee/sfnodes/pkg/types"
)

var (
	// HTTPRequestsTotal counts runner HTTP requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of runner HTTP requests",
		},
		[]string{"route", "status_code"},
	)

	// HTTPRequestLatency tracks runner HTTP request latency.
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "Runner HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route"},
	)
)

// RecordItem records the outcome of one item.
func RecordItem(resource, status string) {
	ItemsTotal.WithLabelValues(resource, status).Inc()
}

// RecordBatch records the outcome of one Execute call.
func RecordBatch(aborted bool) {
	outcome := "completed"
	if aborted {
		outcome = "aborted"
	}
	BatchesTotal.WithLabelValues(outcome).Inc()
}

// RecordAPICall records latency and payload size of one API call.
func RecordAPICall(resource, model string, payloadBytes int, latency time.Duration) {
	APILatency.WithLabelValues(resource, sanitizeModelLabel(model)).Observe(latency.Seconds())
	if payloadBytes > 0 {
		RequestPayloadBytes.WithLabelValues(resource).Observe(float64(payloadBytes))
	}
}

// RecordTokens records token usage metrics.
func RecordTokens(resource, model string, inputTokens, outputTokens int) {
	model = sanitizeModelLabel(model)
	if inputTokens > 0 {
		TokensTotal.WithLabelValues(resource, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		TokensTotal.WithLabelValues(resource, model, "output").Add(float64(outputTokens))
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware returns an HTTP middleware that records request metrics under route.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.statusCode)).Inc()
		HTTPRequestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

const maxModelLabelLen = 64

// sanitizeModelLabel drops the Pro/ tier and organization prefix and keeps
// label values short and printable.
func sanitizeModelLabel(model string) string {
	_, _, modelName := types.SplitOrgModel(model)
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(min(len(modelName), maxModelLabelLen))
	for _, r := range modelName {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' || r == ':' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= maxModelLabelLen {
			break
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}
