package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v66/github"

	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/ghauth"
	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/observability/metrics"
)

const maxFileTreeSize = 1000

// keyFiles are the build and dependency manifests worth showing to the
// analysis engine verbatim.
var keyFiles = []string{
	"package.json",
	"build.gradle.kts",
	"build.gradle",
	"pom.xml",
	"Cargo.toml",
	"go.mod",
	"requirements.txt",
	"pyproject.toml",
	"Gemfile",
	"composer.json",
	"Dockerfile",
	"docker-compose.yml",
}

// TokenSource supplies a valid installation credential.
type TokenSource interface {
	GetValid(ctx context.Context) (ghauth.Credential, error)
}

// Client wraps the GitHub REST API behind the operations gitfolio needs.
// Every call pulls a fresh credential from the token source first.
type Client struct {
	tokens        TokenSource
	baseURL       string
	warnThreshold int
}

// NewClient creates a client. baseURL may be empty for api.github.com.
func NewClient(tokens TokenSource, baseURL string, quotaWarnThreshold int) *Client {
	return &Client{
		tokens:        tokens,
		baseURL:       baseURL,
		warnThreshold: quotaWarnThreshold,
	}
}

func (c *Client) api(ctx context.Context) (*gogithub.Client, error) {
	cred, err := c.tokens.GetValid(ctx)
	if err != nil {
		return nil, err
	}
	client := gogithub.NewClient(nil).WithAuthToken(cred.Value)
	if c.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API base URL: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// RepoContext fetches the metadata, language split, file tree, README, and
// key build files for repoURL.
func (c *Client) RepoContext(ctx context.Context, repoURL string) (*RepoContext, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	observability.Infof("Fetching repo context for %s/%s", owner, repo)

	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	repository, _, err := api.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("repository not found or not accessible: %s/%s", owner, repo))
	}

	languages, _, err := api.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		observability.Warnf("Failed to list languages for %s/%s: %v", owner, repo, err)
		languages = nil
	}

	return &RepoContext{
		Name:          repository.GetName(),
		Description:   repository.GetDescription(),
		Language:      repository.GetLanguage(),
		Languages:     languages,
		FileTree:      c.fileTree(ctx, api, owner, repo, repository.GetDefaultBranch()),
		ReadmeContent: c.readme(ctx, api, owner, repo),
		KeyFiles:      c.keyFileContents(ctx, api, owner, repo),
	}, nil
}

// ListUserRepos returns the public, non-fork repositories for username.
func (c *Client) ListUserRepos(ctx context.Context, username string) ([]RepoSummary, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gogithub.RepositoryListByUserOptions{
		Type:        "owner",
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var summaries []RepoSummary
	for {
		repos, resp, err := api.Repositories.ListByUser(ctx, username, opts)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("GitHub user not found: %s", username))
		}
		for _, r := range repos {
			if r.GetFork() || r.GetPrivate() {
				continue
			}
			summaries = append(summaries, RepoSummary{
				Name:            r.GetName(),
				Description:     r.GetDescription(),
				PrimaryLanguage: r.GetLanguage(),
				Stars:           r.GetStargazersCount(),
				Forks:           r.GetForksCount(),
				SizeKB:          r.GetSize(),
				URL:             r.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return summaries, nil
}

// Quota probes the upstream core API quota and warns below the configured
// threshold.
func (c *Client) Quota(ctx context.Context) (QuotaInfo, error) {
	api, err := c.api(ctx)
	if err != nil {
		return QuotaInfo{}, err
	}

	limits, _, err := api.RateLimit.Get(ctx)
	if err != nil {
		return QuotaInfo{}, classify(err, "failed to check GitHub API rate limit")
	}

	core := limits.GetCore()
	info := QuotaInfo{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}
	metrics.UpstreamQuotaRemaining.Set(float64(info.Remaining))
	if info.Remaining < c.warnThreshold {
		observability.Warnf("GitHub API rate limit low: %d/%d remaining, resets at %s",
			info.Remaining, info.Limit, info.ResetAt)
	}
	return info, nil
}

func (c *Client) fileTree(ctx context.Context, api *gogithub.Client, owner, repo, branch string) []string {
	if branch == "" {
		return nil
	}
	tree, _, err := api.Git.GetTree(ctx, owner, repo, branch, true)
	if err != nil {
		observability.Warnf("Failed to fetch file tree for %s/%s: %v", owner, repo, err)
		return nil
	}

	var paths []string
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		paths = append(paths, entry.GetPath())
		if len(paths) >= maxFileTreeSize {
			break
		}
	}
	return paths
}

func (c *Client) readme(ctx context.Context, api *gogithub.Client, owner, repo string) string {
	readme, _, err := api.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return ""
	}
	content, err := readme.GetContent()
	if err != nil {
		return ""
	}
	return content
}

func (c *Client) keyFileContents(ctx context.Context, api *gogithub.Client, owner, repo string) map[string]string {
	result := make(map[string]string)
	for _, path := range keyFiles {
		file, _, _, err := api.Repositories.GetContents(ctx, owner, repo, path, nil)
		if err != nil || file == nil {
			continue
		}
		content, err := file.GetContent()
		if err != nil {
			continue
		}
		result[path] = content
	}
	return result
}

// classify converts a go-github error into a fault: 404s become NotFound
// with the given message, everything else is an upstream API error.
func classify(err error, notFoundMsg string) error {
	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return faults.Wrap(faults.KindNotFound, notFoundMsg, err)
	}
	return faults.Wrap(faults.KindUpstreamAPIError, "GitHub API error", err)
}
