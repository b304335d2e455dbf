// Package server provides the HTTP API for the pixel canvas backend.
package server

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"somo-backend/internal/config"
	"somo-backend/internal/grid"
	"somo-backend/internal/metrics"
	"somo-backend/internal/pkg/db"
	"somo-backend/internal/repository"
	"somo-backend/internal/service"
)

// Server wires the HTTP routes to the services.
type Server struct {
	claims      *service.ClaimService
	governance  *service.GovernanceService
	pixels      *repository.PixelRepository
	users       *repository.UserRepository
	counters    *repository.MintCounterRepository
	events      *repository.MintEventRepository
	db          *db.Pool
	wsHandler   http.Handler
	totalPixels int

	http *http.Server
}

// Dependencies holds everything the server needs.
type Dependencies struct {
	Config     *config.ServerConfig
	Claims     *service.ClaimService
	Governance *service.GovernanceService
	Pixels     *repository.PixelRepository
	Users      *repository.UserRepository
	Counters   *repository.MintCounterRepository
	Events     *repository.MintEventRepository
	DB         *db.Pool
	WSHandler  http.Handler
}

// New creates the server and registers all routes.
func New(deps *Dependencies) *Server {
	s := &Server{
		claims:      deps.Claims,
		governance:  deps.Governance,
		pixels:      deps.Pixels,
		users:       deps.Users,
		counters:    deps.Counters,
		events:      deps.Events,
		db:          deps.DB,
		wsHandler:   deps.WSHandler,
		totalPixels: grid.PixelCount,
	}

	r := mux.NewRouter()
	r.Use(requestMetrics)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if s.wsHandler != nil {
		r.Handle("/ws", s.wsHandler).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/pixels", s.handleListPixels).Methods(http.MethodGet)
	api.HandleFunc("/pixels/{x}/{y}", s.handleGetPixel).Methods(http.MethodGet)
	api.HandleFunc("/pixels/{x}/{y}/events", s.handlePixelEvents).Methods(http.MethodGet)
	api.HandleFunc("/pixels/{x}/{y}/reserve", s.handleReservePixel).Methods(http.MethodPost)
	api.HandleFunc("/pixels/{x}/{y}/claim", s.handleClaimPixel).Methods(http.MethodPost)
	api.HandleFunc("/pixels/{x}/{y}/melt", s.handleMeltPixel).Methods(http.MethodPost)
	api.HandleFunc("/pixels/{x}/{y}/transfer", s.handleTransferPixel).Methods(http.MethodPost)
	api.HandleFunc("/users/{address}/points", s.handleUserPoints).Methods(http.MethodGet)
	api.HandleFunc("/users/{address}/boost", s.handleSetReferralBoost).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleRecentEvents).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         deps.Config.Addr(),
		Handler:      r,
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
	}
	return s
}

// Start begins serving. Blocks until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// statusRecorder captures the response status for metric labels.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so the websocket upgrade works behind the metrics
// middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// requestMetrics records per-route request counts and latencies.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		pattern := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				pattern = tmpl
			}
		}
		metrics.ObserveHTTPRequest(r.Method, pattern, rec.status, time.Since(start))
	})
}
