package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medq/internal/auth"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector records per-request metrics and writes one structured log line per request.
type Collector struct {
	log      logrus.FieldLogger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewCollector(db *sql.DB, log logrus.FieldLogger) *Collector {
	if log == nil {
		log = logrus.StandardLogger()
	}

	reg := prometheus.NewRegistry()
	c := &Collector{
		log:      log,
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medq",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, normalized path and status.",
		}, []string{"method", "path", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medq",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and normalized path.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "medq"))
	}
	return c
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		// filled by CaptureUser once auth has run deeper in the chain
		holder := &userHolder{}
		next.ServeHTTP(rec, r.WithContext(withUserHolder(r.Context(), holder)))

		elapsed := time.Since(start)
		path := normalizedPath(r.URL.Path)
		status := strconv.Itoa(rec.status)

		c.requests.WithLabelValues(r.Method, path, status).Inc()
		c.latency.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())

		fields := logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"user_id":    holder.userID(),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": float64(elapsed.Microseconds()) / 1000.0,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		}
		entry := c.log.WithFields(fields)
		switch {
		case rec.status >= 500:
			entry.Error("request")
		case rec.status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}

// CaptureUser records the authenticated user for the request log. Mount it after
// the auth middleware.
func CaptureUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(userHolderKey{}).(*userHolder); ok {
			if u, ok := auth.CurrentUser(r.Context()); ok {
				h.id = u.ID
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Collector) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if stem, ext, ok := strings.Cut(p, "."); ok {
			if _, err := strconv.ParseInt(stem, 10, 64); err == nil {
				parts[i] = "{id}." + ext
			}
		}
	}
	return strings.Join(parts, "/")
}

type userHolderKey struct{}

type userHolder struct {
	id int64
}

func (h *userHolder) userID() int64 {
	if h == nil {
		return 0
	}
	return h.id
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey{}, h)
}
