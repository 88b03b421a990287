package apiserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gitfolio/gitfolio/pkg/jobs"
	"github.com/gitfolio/gitfolio/pkg/store"
)

// AnalyzeRepoRequest is the body of POST /api/v1/repos/analyze.
type AnalyzeRepoRequest struct {
	RepoURL string `json:"repoUrl"`
}

// GeneratePortfolioRequest is the body of the portfolio generate endpoints.
type GeneratePortfolioRequest struct {
	GithubUsername string `json:"githubUsername"`
}

// AsyncJobResponse is the 202 body returned by the async generate endpoint.
type AsyncJobResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy", "service": "gitfolio-api"}`))
}

func (s *Server) handleAnalyzeRepo(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRepoRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "repoUrl is required")
		return
	}

	rec, err := jobs.Await(r.Context(), s.deferredTimeout, func(ctx context.Context) (*store.AnalysisRecord, error) {
		return s.pipeline.AnalyzeRepo(ctx, req.RepoURL)
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	recs, err := s.pipeline.Analyses.ListAnalyses(r.Context())
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"analyses": recs,
		"count":    len(recs),
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pipeline.Analyses.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Server) handleGeneratePortfolio(w http.ResponseWriter, r *http.Request) {
	var req GeneratePortfolioRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if strings.TrimSpace(req.GithubUsername) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "githubUsername is required")
		return
	}

	rec, err := jobs.Await(r.Context(), s.deferredTimeout, func(ctx context.Context) (*store.PortfolioRecord, error) {
		return s.pipeline.GeneratePortfolio(ctx, req.GithubUsername)
	})
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Server) handleGeneratePortfolioAsync(w http.ResponseWriter, r *http.Request) {
	var req GeneratePortfolioRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	if strings.TrimSpace(req.GithubUsername) == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_INPUT", "githubUsername is required")
		return
	}

	job, err := s.orchestrator.Submit(r.Context(), jobs.TypePortfolioGeneration, req.GithubUsername)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusAccepted, AsyncJobResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: "portfolio generation accepted, poll /api/v1/jobs/" + job.ID,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobList, err := s.orchestrator.List(r.Context())
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, job)
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	recs, err := s.pipeline.Portfolios.ListPortfolios(r.Context())
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"portfolios": recs,
		"count":      len(recs),
	})
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pipeline.Portfolios.GetPortfolio(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, rec)
}

func (s *Server) handleGithubQuota(w http.ResponseWriter, r *http.Request) {
	quota, err := s.githubClient.Quota(r.Context())
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, quota)
}
