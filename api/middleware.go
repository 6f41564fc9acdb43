package api

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/yearn/stack-router/common"
	"github.com/yearn/stack-router/log"
	"github.com/yearn/stack-router/metrics"
)

// normalizeEndpoint removes all unique identifiers from the URL in order to
// make it possible to group the Prometheus metrics nicely.
func normalizeEndpoint(url string) string {
	var nels []string

	els := strings.Split(url, "/")
	for _, e := range els {
		// Addresses are long and stack indices are integers, so cut
		// everything that's too long or looks like an int.
		isTooLong := len(e) >= 32
		isInt := len(e) > 0 && strings.IndexFunc(e, func(c rune) bool { return c < '0' || c > '9' }) == -1
		if isTooLong || isInt {
			nels = append(nels, "*")
		} else {
			nels = append(nels, e)
		}
	}

	return strings.Join(nels, "/")
}

// MetricsMiddleware is a middleware that measures the start and end of each request,
// as well as other useful request information.
// It should be used as the outermost middleware, so it can
// - set a requestID and make it available to all handlers and
// - observe the final HTTP status code at the end of the request.
func MetricsMiddleware(m metrics.RequestMetrics, logger *log.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New()
			logger.Debug("starting request",
				"method", r.Method,
				"endpoint", r.URL.Path,
				"request_id", requestID,
			)
			t := time.Now()
			metricName := r.Method + " " + normalizeEndpoint(r.URL.Path)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(
				context.WithValue(r.Context(), common.RequestIDContextKey, requestID),
			))

			httpStatus := ww.Status()
			if httpStatus == 0 {
				httpStatus = http.StatusOK
			}
			latency := time.Since(t)
			logger.Info("ending request",
				"method", r.Method,
				"query_path", r.URL.Path,
				"request_id", requestID,
				"latency", latency,
				"latency_bin", binQueryLatency(latency),
				"status_code", httpStatus,
			)

			statusTxt := "failure"
			switch {
			case httpStatus >= 200 && httpStatus < 400:
				statusTxt = "success"
			case httpStatus == http.StatusNotFound && !strings.HasPrefix(r.URL.Path, "/v1/"):
				// Probes and bots hitting unknown paths.
				statusTxt = "failure_4xx"
				metricName = "ignored"
			case httpStatus >= 400 && httpStatus < 500:
				// Rejected router operations are interesting; keep them
				// under their endpoint.
				statusTxt = "failure_4xx"
			}
			// Ensure metric names are valid UTF-8 strings to prevent Prometheus panics.
			if !utf8.ValidString(metricName) {
				logger.Debug("invalid metric name", "metric_name", metricName)
				metricName = "ignored"
				statusTxt = "non_utf8_path"
			}
			m.RequestCounter(metricName, statusTxt).Inc()
			m.RequestLatencies(metricName).Observe(latency.Seconds())
		})
	}
}

// Bin request durations to make it easier to search
// for slow requests in logs.
func binQueryLatency(t time.Duration) string {
	switch {
	case t < 100*time.Millisecond:
		return "<100ms"
	case t < 300*time.Millisecond:
		return "100-300ms"
	case t < 500*time.Millisecond:
		return "300-500ms"
	case t < 1000*time.Millisecond:
		return "500-1000ms"
	default:
		return ">1000ms"
	}
}

// CorsMiddleware lets browsers call the API, including the signed mutating
// endpoints. No allowed origins means any origin.
func CorsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"Content-Type", SignatureHeader},
		AllowCredentials: false,
	}).Handler
}
