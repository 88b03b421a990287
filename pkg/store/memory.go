package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gitfolio/gitfolio/pkg/faults"
)

// MemoryStore is an in-memory implementation of all three store interfaces,
// used by tests and available as a storage backend for throwaway runs.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	analyses   map[string]*AnalysisRecord
	portfolios map[string]*PortfolioRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]*Job),
		analyses:   make(map[string]*AnalysisRecord),
		portfolios: make(map[string]*PortfolioRecord),
	}
}

// ── jobs ──

func (m *MemoryStore) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, faults.Newf(faults.KindNotFound, "job not found: %s", id)
	}
	cp := *job
	return &cp, nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return faults.Newf(faults.KindNotFound, "job not found: %s", job.ID)
	}
	job.UpdatedAt = time.Now().UTC()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryStore) ListJobs(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

func (m *MemoryStore) LatestCompletedJob(_ context.Context, jobType, inputKey string, since time.Time) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Job
	for _, job := range m.jobs {
		if job.Type != jobType || job.InputKey != inputKey || job.Status != JobCompleted {
			continue
		}
		if !job.CreatedAt.After(since) {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// ── analyses ──

func (m *MemoryStore) SaveAnalysis(_ context.Context, rec *AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.analyses[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAnalysis(_ context.Context, id string) (*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.analyses[id]
	if !ok {
		return nil, faults.Newf(faults.KindNotFound, "analysis not found: %s", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListAnalyses(_ context.Context) ([]*AnalysisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]*AnalysisRecord, 0, len(m.analyses))
	for _, rec := range m.analyses {
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

// ── portfolios ──

func (m *MemoryStore) SavePortfolio(_ context.Context, rec *PortfolioRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.portfolios[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPortfolio(_ context.Context, id string) (*PortfolioRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.portfolios[id]
	if !ok {
		return nil, faults.Newf(faults.KindNotFound, "portfolio not found: %s", id)
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListPortfolios(_ context.Context) ([]*PortfolioRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := make([]*PortfolioRecord, 0, len(m.portfolios))
	for _, rec := range m.portfolios {
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

func (m *MemoryStore) LatestPortfolioByUser(_ context.Context, username string) (*PortfolioRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *PortfolioRecord
	for _, rec := range m.portfolios {
		if rec.GithubUsername != username {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}
