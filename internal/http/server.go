// Package http serves the trip, family, expense, settlement and archive
// JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"tripsplit/internal/core"
	applog "tripsplit/internal/log"
	"tripsplit/internal/middleware/ratelimit"
	"tripsplit/internal/middleware/security"
	"tripsplit/internal/middleware/trace"
	"tripsplit/internal/report"
	"tripsplit/internal/settlement"
)

// TripService is what the handlers need. *services.TripService satisfies it.
type TripService interface {
	CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error)
	ListTrips(ctx context.Context) ([]core.Trip, error)
	GetTrip(ctx context.Context, id int64) (core.Trip, error)
	ActivateTrip(ctx context.Context, id int64) error
	GetActiveTrip(ctx context.Context) (core.Trip, error)

	AddFamily(ctx context.Context, f core.Family) (core.Family, error)
	UpdateFamily(ctx context.Context, f core.Family) error
	DeleteFamily(ctx context.Context, tripID, familyID int64) error
	ListFamilies(ctx context.Context, tripID int64) ([]core.Family, error)

	AddExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID int64) error
	ListExpenses(ctx context.Context, tripID int64) ([]core.Expense, error)

	Summary(ctx context.Context, tripID int64) (core.TripSummary, error)
	Settle(ctx context.Context, tripID int64) ([]settlement.Transaction, error)
	Report(ctx context.Context, tripID int64) (report.Report, error)

	ArchiveTrip(ctx context.Context, tripID int64) (core.ArchiveEntry, error)
	ListArchives(ctx context.Context) ([]core.ArchiveEntry, error)
	ArchiveReport(ctx context.Context, archiveID int64) (report.Report, error)
	DeleteArchive(ctx context.Context, archiveID int64) error
}

// Options configures the middleware around the router.
type Options struct {
	AllowedOrigins     []string // empty allows any origin without credentials
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	svc      TripService
	router   *mux.Router
	logger   *applog.StructuredLogger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc TripService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		svc:      svc,
		router:   mux.NewRouter(),
		logger:   applog.NewStructuredLogger(logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.routes()

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, please try again later"})
	}, http.MethodPost, http.MethodPut, http.MethodDelete)

	var handler http.Handler = s.router
	handler = limit(handler)
	handler = headers.Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = corsHandler(opts.AllowedOrigins).Handler(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func corsHandler(origins []string) *cors.Cors {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader, "Retry-After"},
		MaxAge:         600,
	}
	if len(origins) == 0 {
		// Wildcard origins must not be combined with credentials.
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	}
	return cors.New(opts)
}

func (s *Server) routes() {
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	r := s.router
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = methodNotAllowed

	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)

	// Subrouters do not inherit the root's error handlers.
	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = notFound
	api.MethodNotAllowedHandler = methodNotAllowed

	api.HandleFunc("/trips", s.handleListTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips", s.handleCreateTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/active", s.handleActiveTrip).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}", s.handleGetTrip).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/activate", s.handleActivateTrip).Methods(http.MethodPost)

	api.HandleFunc("/trips/{id:[0-9]+}/families", s.handleListFamilies).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/families", s.handleAddFamily).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id:[0-9]+}/families/{familyID:[0-9]+}", s.handleUpdateFamily).Methods(http.MethodPut)
	api.HandleFunc("/trips/{id:[0-9]+}/families/{familyID:[0-9]+}", s.handleDeleteFamily).Methods(http.MethodDelete)

	api.HandleFunc("/trips/{id:[0-9]+}/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/expenses", s.handleAddExpense).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id:[0-9]+}/expenses/{expenseID:[0-9]+}", s.handleDeleteExpense).Methods(http.MethodDelete)

	api.HandleFunc("/trips/{id:[0-9]+}/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/settlement", s.handleSettlement).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/report", s.handleReport).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id:[0-9]+}/archive", s.handleArchiveTrip).Methods(http.MethodPost)

	api.HandleFunc("/archives", s.handleListArchives).Methods(http.MethodGet)
	api.HandleFunc("/archives/{archiveID:[0-9]+}/settlement", s.handleArchiveSettlement).Methods(http.MethodGet)
	api.HandleFunc("/archives/{archiveID:[0-9]+}", s.handleDeleteArchive).Methods(http.MethodDelete)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.svc.ListTrips(ctx); err != nil {
		s.logger.LogError(ctx, "Readiness check failed", err, applog.ComponentHTTP, "ready", nil)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
