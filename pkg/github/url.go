package github

import (
	"regexp"
	"strings"

	"github.com/gitfolio/gitfolio/pkg/faults"
)

var repoURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and repository name from a GitHub repository
// URL. The scheme, www prefix, trailing slash, and .git suffix are all
// optional.
func ParseRepoURL(url string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", faults.Newf(faults.KindInvalidInput, "invalid GitHub repository URL: %s", url)
	}
	return m[1], m[2], nil
}
