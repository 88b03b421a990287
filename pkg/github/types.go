// Package github fetches repository context from the GitHub API using the
// cached installation credential.
package github

import "time"

// RepoContext is the structured snapshot of one repository handed to the
// analysis engine.
type RepoContext struct {
	Name          string
	Description   string
	Language      string
	Languages     map[string]int
	FileTree      []string
	ReadmeContent string
	KeyFiles      map[string]string
}

// RepoSummary describes one repository in a user's profile listing.
type RepoSummary struct {
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	PrimaryLanguage string         `json:"primary_language,omitempty"`
	Languages       map[string]int `json:"languages,omitempty"`
	Stars           int            `json:"stars"`
	Forks           int            `json:"forks"`
	SizeKB          int            `json:"size_kb"`
	URL             string         `json:"url"`
}

// QuotaInfo reports the upstream core API quota.
type QuotaInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
