package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
	"txinsight/internal/ingest"
	applog "txinsight/internal/log"
	"txinsight/internal/middleware/ratelimit"
	"txinsight/internal/middleware/security"
	"txinsight/internal/middleware/trace"
	"txinsight/internal/services"
)

// DefaultMaxUploadBytes bounds an uploaded CSV when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

type (
	// Ingester accepts raw uploads.
	Ingester interface {
		Ingest(ctx context.Context, up ingest.Upload) (ingest.Result, error)
	}

	// Reporter answers read queries over committed transactions.
	Reporter interface {
		List(ctx context.Context, f core.Filter, limit, offset int) (services.Page, error)
		Summarize(ctx context.Context, f core.Filter) (core.BatchSummary, error)
		Export(ctx context.Context, f core.Filter, w io.Writer) error
		FilterValues(ctx context.Context) (services.FilterValues, error)
		Invalidate()
	}

	// Predictor serves single-record predictions and forecasts.
	Predictor interface {
		Category(ctx context.Context, description string, amount decimal.Decimal) (string, error)
		Anomaly(ctx context.Context, amount decimal.Decimal) (bool, error)
		ForecastMonthly(ctx context.Context, series map[string]decimal.Decimal) (map[string]decimal.Decimal, error)
		ForecastStored(ctx context.Context) (services.Forecast, error)
	}

	// Pinger reports whether a dependency is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators the server routes to. Store is optional.
type Deps struct {
	Pipeline    Ingester
	Reports     Reporter
	Predictions Predictor
	Store       Pinger
	Logger      *applog.Logger

	MaxUploadBytes int64
	RateLimit      ratelimit.Config
}

// appMetrics counts domain events for /metrics.
type appMetrics struct {
	mu              sync.Mutex
	uptime          time.Time
	batchesAccepted int64
	rowsAccepted    int64
	rejections      map[string]int64
}

func (m *appMetrics) recordAccepted(rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchesAccepted++
	m.rowsAccepted += int64(rows)
}

func (m *appMetrics) recordRejected(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[kind]++
}

type Server struct {
	http.Server

	pipeline    Ingester
	reports     Reporter
	predictions Predictor
	store       Pinger

	logger           *applog.Logger
	structured       *applog.StructuredLogger
	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter

	maxUploadBytes int64
	appMetrics     *appMetrics
	shutdownOnce   sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Call Shutdown to stop it and its background loops.
func NewServer(addr string, deps Deps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector, err := security.NewDetector()
	if err != nil {
		return nil, err
	}

	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	limitCfg := deps.RateLimit
	if limitCfg.RequestsPerMinute == 0 && limitCfg.Methods == nil {
		limitCfg = ratelimit.DefaultConfig()
	}

	s := &Server{
		pipeline:         deps.Pipeline,
		reports:          deps.Reports,
		predictions:      deps.Predictions,
		store:            deps.Store,
		logger:           logger,
		structured:       applog.NewStructuredLogger(logger),
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(limitCfg),
		maxUploadBytes:   maxUpload,
		appMetrics:       &appMetrics{uptime: time.Now(), rejections: make(map[string]int64)},
	}
	s.traceMiddleware = trace.NewMiddleware(detector.ExtractClientIP, logger.WithComponent(applog.ComponentTrace))

	mux := http.NewServeMux()
	s.routes(mux, limitCfg.Methods)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux, limitedMethods []string) {
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, limitedMethods, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, limit(h))
	}

	handle("GET /{$}", s.handleIndex)
	handle("GET /healthz", s.handleHealth)
	handle("GET /readyz", s.handleReady)
	handle("GET /metrics", s.handleMetrics)

	handle("POST /transactions/upload", s.handleUpload)
	handle("GET /transactions", s.handleListTransactions)
	handle("GET /transactions/{$}", s.handleListTransactions)
	handle("GET /transactions/export", s.handleExport)
	handle("GET /transactions/filters", s.handleFilterValues)
	handle("GET /transactions/summary", s.handleSummary)

	handle("POST /predict/category", s.handlePredictCategory)
	handle("POST /predict/anomaly", s.handlePredictAnomaly)
	handle("GET /predict/forecast", s.handleStoredForecast)
	handle("POST /forecast/monthly", s.handleForecastMonthly)
}

// middleware wraps h, outermost first: CORS answers preflights before
// anything else runs, then tracing, screening and headers.
func (s *Server) middleware(h http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	h = headers.Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	h = applog.Middleware(s.logger)(h)
	h = security.CORS(security.PermissiveCORSConfig())(h)
	return h
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
