package http

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	applog "txinsight/internal/log"
)

const welcomeMessage = "Welcome to the Financial Transactions Prediction API"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": welcomeMessage}).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.store == nil {
		checks["store"] = "not_configured"
	} else if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldError, err)
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	s.appMetrics.mu.Lock()
	batches := s.appMetrics.batchesAccepted
	rows := s.appMetrics.rowsAccepted
	rejections := make(map[string]int64, len(s.appMetrics.rejections))
	for kind, n := range s.appMetrics.rejections {
		rejections[kind] = n
	}
	s.appMetrics.mu.Unlock()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_requests_failed_total HTTP requests answered with 5xx\n")
	fmt.Fprintf(w, "# TYPE http_requests_failed_total counter\n")
	fmt.Fprintf(w, "http_requests_failed_total %d\n\n", traceMetrics.FailedRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_avg_ms Average response time\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_avg_ms gauge\n")
	fmt.Fprintf(w, "http_request_duration_avg_ms %.2f\n\n", float64(traceMetrics.AverageResponseTime.Microseconds())/1000)

	fmt.Fprintf(w, "# HELP batches_accepted_total Uploaded batches committed\n")
	fmt.Fprintf(w, "# TYPE batches_accepted_total counter\n")
	fmt.Fprintf(w, "batches_accepted_total %d\n\n", batches)

	fmt.Fprintf(w, "# HELP transactions_accepted_total Transactions committed across all batches\n")
	fmt.Fprintf(w, "# TYPE transactions_accepted_total counter\n")
	fmt.Fprintf(w, "transactions_accepted_total %d\n\n", rows)

	fmt.Fprintf(w, "# HELP batches_rejected_total Uploaded batches rejected, by kind\n")
	fmt.Fprintf(w, "# TYPE batches_rejected_total counter\n")
	kinds := make([]string, 0, len(rejections))
	for kind := range rejections {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "batches_rejected_total{kind=%q} %d\n", kind, rejections[kind])
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP blocked_requests_total Requests rejected by the detector\n")
	fmt.Fprintf(w, "# TYPE blocked_requests_total counter\n")
	fmt.Fprintf(w, "blocked_requests_total %d\n\n", securityMetrics.BlockedRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}
