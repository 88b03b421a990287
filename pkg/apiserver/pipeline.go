// Package apiserver exposes the HTTP surface: repository analysis, portfolio
// generation (sync and async), job polling, and the upstream quota probe.
package apiserver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gitfolio/gitfolio/pkg/analysis"
	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/github"
	"github.com/gitfolio/gitfolio/pkg/jobs"
	"github.com/gitfolio/gitfolio/pkg/store"
)

// Pipeline runs the full analyze and generate flows. The synchronous
// handlers and the background job runners share it so both paths persist
// results identically.
type Pipeline struct {
	GitHub     *github.Client
	Engine     *analysis.Engine
	Analyses   store.AnalysisStore
	Portfolios store.PortfolioStore
}

// AnalyzeRepo fetches repository context, runs the analysis model, and
// persists the result.
func (p *Pipeline) AnalyzeRepo(ctx context.Context, repoURL string) (*store.AnalysisRecord, error) {
	rc, err := p.GitHub.RepoContext(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	result, err := p.Engine.AnalyzeRepo(ctx, rc)
	if err != nil {
		return nil, err
	}
	rec := &store.AnalysisRecord{
		ID:               uuid.NewString(),
		RepoURL:          repoURL,
		ProjectName:      result.ProjectName,
		ShortDescription: result.ShortDescription,
		TechStack:        result.TechStack,
		DetectedFeatures: result.DetectedFeatures,
		ReadmeContent:    result.ReadmeMarkdown,
		CreatedAt:        time.Now().UTC(),
	}
	if err := p.Analyses.SaveAnalysis(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "failed to persist analysis", err)
	}
	return rec, nil
}

// GeneratePortfolio lists the user's public repositories, runs the portfolio
// model over them, and persists the document.
func (p *Pipeline) GeneratePortfolio(ctx context.Context, username string) (*store.PortfolioRecord, error) {
	repos, err := p.GitHub.ListUserRepos(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, faults.Newf(faults.KindNotFound, "no analyzable public repositories for user %s", username)
	}
	doc, err := p.Engine.GeneratePortfolio(ctx, username, repos)
	if err != nil {
		return nil, err
	}
	rec := &store.PortfolioRecord{
		ID:               uuid.NewString(),
		GithubUsername:   username,
		Portfolio:        doc,
		TotalPublicRepos: len(repos),
		CreatedAt:        time.Now().UTC(),
	}
	if err := p.Portfolios.SavePortfolio(ctx, rec); err != nil {
		return nil, faults.Wrap(faults.KindInternal, "failed to persist portfolio", err)
	}
	return rec, nil
}

// Runners adapts the pipeline into the orchestrator's job runners. The
// result ref of a job is the id of the persisted analysis or portfolio.
func (p *Pipeline) Runners() map[string]jobs.Runner {
	return map[string]jobs.Runner{
		jobs.TypeRepoAnalysis: func(ctx context.Context, inputKey string) (string, error) {
			rec, err := p.AnalyzeRepo(ctx, inputKey)
			if err != nil {
				return "", err
			}
			return rec.ID, nil
		},
		jobs.TypePortfolioGeneration: func(ctx context.Context, inputKey string) (string, error) {
			rec, err := p.GeneratePortfolio(ctx, inputKey)
			if err != nil {
				return "", err
			}
			return rec.ID, nil
		},
	}
}
