package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gitfolio/gitfolio/pkg/faults"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	input_key     TEXT NOT NULL,
	status        TEXT NOT NULL,
	result_ref    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_dedup ON jobs(type, input_key, status, created_at);

CREATE TABLE IF NOT EXISTS analyses (
	id                TEXT PRIMARY KEY,
	repo_url          TEXT NOT NULL,
	project_name      TEXT NOT NULL,
	short_description TEXT NOT NULL,
	tech_stack        TEXT NOT NULL,
	detected_features TEXT NOT NULL,
	readme_content    TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolios (
	id                 TEXT PRIMARY KEY,
	github_username    TEXT NOT NULL,
	portfolio_data     TEXT NOT NULL,
	total_public_repos INTEGER NOT NULL,
	created_at         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_portfolios_user ON portfolios(github_username, created_at);
`

// SQLiteStore implements JobStore, AnalysisStore, and PortfolioStore on a
// single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ── jobs ──

func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, input_key, status, result_ref, error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.InputKey, job.Status, job.ResultRef, job.ErrorMessage,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, input_key, status, result_ref, error_message, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, result_ref = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		job.Status, job.ResultRef, job.ErrorMessage, job.UpdatedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.Newf(faults.KindNotFound, "job not found: %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, input_key, status, result_ref, error_message, created_at, updated_at
		 FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) LatestCompletedJob(ctx context.Context, jobType, inputKey string, since time.Time) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, input_key, status, result_ref, error_message, created_at, updated_at
		 FROM jobs
		 WHERE type = ? AND input_key = ? AND status = ? AND created_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		jobType, inputKey, JobCompleted, since.UTC())
	job, err := scanJob(row)
	if err != nil {
		if faults.KindOf(err) == faults.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	err := row.Scan(&job.ID, &job.Type, &job.InputKey, &job.Status,
		&job.ResultRef, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.New(faults.KindNotFound, "job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}
	return &job, nil
}

// ── analyses ──

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	techStack, err := json.Marshal(rec.TechStack)
	if err != nil {
		return fmt.Errorf("failed to encode tech stack: %w", err)
	}
	features, err := json.Marshal(rec.DetectedFeatures)
	if err != nil {
		return fmt.Errorf("failed to encode detected features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, repo_url, project_name, short_description, tech_stack, detected_features, readme_content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RepoURL, rec.ProjectName, rec.ShortDescription,
		string(techStack), string(features), rec.ReadmeContent, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert analysis %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, repo_url, project_name, short_description, tech_stack, detected_features, readme_content, created_at
		 FROM analyses WHERE id = ?`, id)
	return scanAnalysis(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context) ([]*AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, repo_url, project_name, short_description, tech_stack, detected_features, readme_content, created_at
		 FROM analyses ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var recs []*AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanAnalysis(row rowScanner) (*AnalysisRecord, error) {
	var (
		rec       AnalysisRecord
		techStack string
		features  string
	)
	err := row.Scan(&rec.ID, &rec.RepoURL, &rec.ProjectName, &rec.ShortDescription,
		&techStack, &features, &rec.ReadmeContent, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.New(faults.KindNotFound, "analysis not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis row: %w", err)
	}
	if err := json.Unmarshal([]byte(techStack), &rec.TechStack); err != nil {
		return nil, fmt.Errorf("corrupt tech stack for analysis %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(features), &rec.DetectedFeatures); err != nil {
		return nil, fmt.Errorf("corrupt detected features for analysis %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// ── portfolios ──

func (s *SQLiteStore) SavePortfolio(ctx context.Context, rec *PortfolioRecord) error {
	data, err := json.Marshal(rec.Portfolio)
	if err != nil {
		return fmt.Errorf("failed to encode portfolio: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO portfolios (id, github_username, portfolio_data, total_public_repos, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.GithubUsername, string(data), rec.TotalPublicRepos, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert portfolio %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPortfolio(ctx context.Context, id string) (*PortfolioRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, github_username, portfolio_data, total_public_repos, created_at
		 FROM portfolios WHERE id = ?`, id)
	rec, err := scanPortfolio(row)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]*PortfolioRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, github_username, portfolio_data, total_public_repos, created_at
		 FROM portfolios ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var recs []*PortfolioRecord
	for rows.Next() {
		rec, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) LatestPortfolioByUser(ctx context.Context, username string) (*PortfolioRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, github_username, portfolio_data, total_public_repos, created_at
		 FROM portfolios WHERE github_username = ? ORDER BY created_at DESC LIMIT 1`, username)
	rec, err := scanPortfolio(row)
	if err != nil {
		if faults.KindOf(err) == faults.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func scanPortfolio(row rowScanner) (*PortfolioRecord, error) {
	var (
		rec  PortfolioRecord
		data string
	)
	err := row.Scan(&rec.ID, &rec.GithubUsername, &data, &rec.TotalPublicRepos, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.New(faults.KindNotFound, "portfolio not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio row: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &rec.Portfolio); err != nil {
		return nil, fmt.Errorf("corrupt portfolio data for %s: %w", rec.ID, err)
	}
	return &rec, nil
}
