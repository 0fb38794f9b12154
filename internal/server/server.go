// internal/server/server.go

// Package server exposes media extraction over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/valpere/MediaScrapexter/internal/config"
	"github.com/valpere/MediaScrapexter/internal/monitoring"
	"github.com/valpere/MediaScrapexter/internal/output"
	"github.com/valpere/MediaScrapexter/internal/pipeline"
	"github.com/valpere/MediaScrapexter/internal/utils"
)

// APIRoot prefixes every API route.
const APIRoot = "/api/v1"

// Processor is the part of the pipeline the API drives.
type Processor interface {
	ProcessPage(ctx context.Context, url string) (output.Record, error)
	ProcessHTML(ctx context.Context, pageURL, html string) (output.Record, error)
	Run(ctx context.Context, urls []string) (*pipeline.Summary, error)
	GetMetrics() pipeline.Metrics
}

// ExtractRequest asks for one page. Either URL is fetched, or HTML is
// processed as if it had been served from BaseURL.
type ExtractRequest struct {
	URL     string `json:"url,omitempty"`
	HTML    string `json:"html,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// ScrapeRequest asks for a batch of pages to be processed and saved.
type ScrapeRequest struct {
	URLs []string `json:"urls"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Record *output.Record `json:"record,omitempty"`
}

// Server routes API requests to a Processor. The processor can be swapped
// while the server runs; in-flight requests finish on the one they started with.
type Server struct {
	router  *mux.Router
	options config.ServerConfig
	health  *monitoring.HealthManager
	metrics *monitoring.Metrics
	logger  utils.Logger

	mu        sync.RWMutex
	processor Processor

	httpServer *http.Server
}

// New builds the router. metrics may be nil, in which case /metrics is not served.
func New(opts config.ServerConfig, processor Processor, health *monitoring.HealthManager, metrics *monitoring.Metrics, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewComponentLogger("server")
	}
	if health == nil {
		health = monitoring.NewHealthManager("", 0)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}

	s := &Server{
		router:    mux.NewRouter(),
		options:   opts,
		health:    health,
		metrics:   metrics,
		logger:    logger,
		processor: processor,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/health", s.health.HealthHandler()).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix(APIRoot).Subrouter()
	if s.options.APIKey != "" {
		api.Use(s.authMiddleware)
	}
	if s.options.RateLimit > 0 {
		api.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(s.options.RateLimit), max(s.options.Burst, 1))))
	}
	api.HandleFunc("/extract", s.handleExtract).Methods(http.MethodPost)
	api.HandleFunc("/scrape", s.handleScrape).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetProcessor swaps the processor after in-flight requests drain and returns
// the previous one so the caller can close it.
func (s *Server) SetProcessor(p Processor) Processor {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.processor
	s.processor = p
	return old
}

// withProcessor runs fn holding the current processor.
func (s *Server) withProcessor(fn func(Processor)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.processor)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.options.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("listening on %s", s.options.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !s.decode(w, r, &req) {
		return
	}

	target := req.URL
	if req.HTML != "" {
		target = req.BaseURL
	}
	if err := validatePageURL(target); err != nil {
		field := "url"
		if req.HTML != "" {
			field = "base_url"
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", field, err), nil)
		return
	}

	var (
		rec output.Record
		err error
	)
	s.withProcessor(func(p Processor) {
		if req.HTML != "" {
			rec, err = p.ProcessHTML(r.Context(), req.BaseURL, req.HTML)
		} else {
			rec, err = p.ProcessPage(r.Context(), req.URL)
		}
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err, &rec)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("urls: at least one URL is required"), nil)
		return
	}
	for i, u := range req.URLs {
		if err := validatePageURL(u); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("urls[%d]: %w", i, err), nil)
			return
		}
	}

	var (
		summary *pipeline.Summary
		err     error
	)
	s.withProcessor(func(p Processor) {
		summary, err = p.Run(r.Context(), req.URLs)
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   err.Error(),
			"summary": summary,
		})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var m pipeline.Metrics
	s.withProcessor(func(p Processor) { m = p.GetMetrics() })
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"), nil)
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err), nil)
		return false
	}
	return true
}

func validatePageURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, err error, rec *output.Record) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Record: rec})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"), nil)
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.options.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, errors.New("invalid API key"), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Microsecond).String(),
		}).Debug("request")
	})
}
