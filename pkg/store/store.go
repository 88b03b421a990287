// Package store persists jobs, analyses, and portfolios. The SQLite
// implementation backs the server; the in-memory implementation backs tests.
package store

import (
	"context"
	"time"

	"github.com/gitfolio/gitfolio/pkg/analysis"
)

// JobStatus is the lifecycle state of an asynchronous job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobCompleted  JobStatus = "COMPLETED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether a status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the durable record of one asynchronous unit of work. Only the
// worker executing a job mutates it after creation; jobs are never deleted.
type Job struct {
	ID           string    `json:"jobId"`
	Type         string    `json:"type"`
	InputKey     string    `json:"inputKey"`
	Status       JobStatus `json:"status"`
	ResultRef    string    `json:"resultRef,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AnalysisRecord is one persisted repository analysis.
type AnalysisRecord struct {
	ID               string    `json:"id"`
	RepoURL          string    `json:"repoUrl"`
	ProjectName      string    `json:"projectName"`
	ShortDescription string    `json:"shortDescription"`
	TechStack        []string  `json:"techStack"`
	DetectedFeatures []string  `json:"detectedFeatures"`
	ReadmeContent    string    `json:"readmeContent"`
	CreatedAt        time.Time `json:"createdAt"`
}

// PortfolioRecord is one persisted portfolio document.
type PortfolioRecord struct {
	ID               string                       `json:"id"`
	GithubUsername   string                       `json:"githubUsername"`
	Portfolio        *analysis.DeveloperPortfolio `json:"portfolio"`
	TotalPublicRepos int                          `json:"totalPublicRepos"`
	CreatedAt        time.Time                    `json:"createdAt"`
}

// JobStore is the orchestrator's view of persistence.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	// GetJob returns a NotFound fault for unknown ids.
	GetJob(ctx context.Context, id string) (*Job, error)
	UpdateJob(ctx context.Context, job *Job) error
	// ListJobs returns all jobs, newest first.
	ListJobs(ctx context.Context) ([]*Job, error)
	// LatestCompletedJob returns the most recent COMPLETED job for the
	// type and input key created after since, or nil when none exists.
	LatestCompletedJob(ctx context.Context, jobType, inputKey string, since time.Time) (*Job, error)
}

// AnalysisStore persists repository analyses.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error
	GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error)
	ListAnalyses(ctx context.Context) ([]*AnalysisRecord, error)
}

// PortfolioStore persists portfolio documents.
type PortfolioStore interface {
	SavePortfolio(ctx context.Context, rec *PortfolioRecord) error
	GetPortfolio(ctx context.Context, id string) (*PortfolioRecord, error)
	ListPortfolios(ctx context.Context) ([]*PortfolioRecord, error)
	// LatestPortfolioByUser returns the newest portfolio for username, or
	// nil when the user has none.
	LatestPortfolioByUser(ctx context.Context, username string) (*PortfolioRecord, error)
}
