package apiserver

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/github"
	"github.com/gitfolio/gitfolio/pkg/jobs"
	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/ratelimit"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	admission       *ratelimit.Controller
	orchestrator    *jobs.Orchestrator
	pipeline        *Pipeline
	githubClient    *github.Client
	deferredTimeout time.Duration
}

// NewServer wires the HTTP surface. deferredTimeout bounds how long the
// synchronous analyze/generate handlers wait before returning 504.
func NewServer(admission *ratelimit.Controller, orchestrator *jobs.Orchestrator, pipeline *Pipeline, githubClient *github.Client, deferredTimeout time.Duration) *Server {
	return &Server{
		admission:       admission,
		orchestrator:    orchestrator,
		pipeline:        pipeline,
		githubClient:    githubClient,
		deferredTimeout: deferredTimeout,
	}
}

// Start runs the API server on port until it fails. The write timeout leaves
// headroom over the deferred timeout so slow synchronous responses are not
// cut off mid-flight.
func (s *Server) Start(port int) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.deferredTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	observability.Infof("API server listening on port %d", port)
	return server.ListenAndServe()
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", s.handleHealth)

	// Repository analysis endpoints
	mux.HandleFunc("POST /api/v1/repos/analyze", s.limited(s.handleAnalyzeRepo))
	mux.HandleFunc("GET /api/v1/repos/analyses", s.limited(s.handleListAnalyses))
	mux.HandleFunc("GET /api/v1/repos/analyses/{id}", s.limited(s.handleGetAnalysis))

	// Portfolio endpoints
	mux.HandleFunc("POST /api/v1/portfolio/generate", s.limited(s.handleGeneratePortfolio))
	mux.HandleFunc("POST /api/v1/portfolio/generate/async", s.limited(s.handleGeneratePortfolioAsync))
	mux.HandleFunc("GET /api/v1/portfolio", s.limited(s.handleListPortfolios))
	mux.HandleFunc("GET /api/v1/portfolio/{id}", s.limited(s.handleGetPortfolio))

	// Job polling endpoints
	mux.HandleFunc("GET /api/v1/jobs", s.limited(s.handleListJobs))
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.limited(s.handleGetJob))

	// Upstream quota probe
	mux.HandleFunc("GET /api/v1/github/quota", s.limited(s.handleGithubQuota))

	return mux
}

// limited runs the admission check before the handler. Every rate-limited
// response carries the limit headers; denials become 429 with a retry hint.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision := s.admission.Admit(r.URL.Path, ratelimit.ClientIdentity(r))
		if !decision.Exempt {
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		}
		if !decision.Allowed {
			retryAfter := int64(math.Ceil(decision.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			s.writeErrorResponse(w, http.StatusTooManyRequests, string(faults.KindAdmissionDenied),
				fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfter))
			return
		}
		next(w, r)
	}
}

// Helper methods for JSON handling
func (s *Server) parseJSONRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		observability.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":      errorCode,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	s.writeJSONResponse(w, statusCode, errorResponse)
}

// writeFault maps a classified error to its HTTP status exactly once, at
// this boundary, with the client-safe message.
func (s *Server) writeFault(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)
	s.writeErrorResponse(w, faults.HTTPStatus(kind), string(kind), faults.ClientMessage(err))
}
