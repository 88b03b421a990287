package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gitfolio/gitfolio/pkg/github"
)

const (
	maxPromptTreeEntries = 50
	maxReadmeChars       = 2000
	maxKeyFileChars      = 1500
)

func buildAnalysisPrompt(rc *github.RepoContext) string {
	var b strings.Builder

	b.WriteString("Analyze the following repository and produce a JSON object with exactly these fields:\n")
	b.WriteString(`{"projectName": string, "shortDescription": string, "techStack": [string], "detectedFeatures": [string], "readmeMarkdown": string}` + "\n")
	b.WriteString("projectName: a professional project name. shortDescription: 1-2 lines for a portfolio. ")
	b.WriteString("techStack: detected technologies. detectedFeatures: key features evident from the code. ")
	b.WriteString("readmeMarkdown: a complete README.md with badges, installation, usage, and structure sections.\n\n")

	b.WriteString("## Repository\n")
	fmt.Fprintf(&b, "- Name: %s\n", rc.Name)
	if rc.Description != "" {
		fmt.Fprintf(&b, "- Description: %s\n", rc.Description)
	}
	b.WriteString("\n")

	writeLanguageSplit(&b, rc.Languages)

	b.WriteString("## File Structure\n")
	for i, path := range rc.FileTree {
		if i >= maxPromptTreeEntries {
			fmt.Fprintf(&b, "... and %d more files\n", len(rc.FileTree)-maxPromptTreeEntries)
			break
		}
		fmt.Fprintf(&b, "- %s\n", path)
	}
	b.WriteString("\n")

	if rc.ReadmeContent != "" {
		b.WriteString("## Existing README\n```\n")
		b.WriteString(truncate(rc.ReadmeContent, maxReadmeChars))
		b.WriteString("\n```\n\n")
	}

	if len(rc.KeyFiles) > 0 {
		b.WriteString("## Key Files\n")
		for _, path := range sortedKeys(rc.KeyFiles) {
			fmt.Fprintf(&b, "### %s\n```\n%s\n```\n\n", path, truncate(rc.KeyFiles[path], maxKeyFileChars))
		}
	}

	b.WriteString("Respond with the JSON object only, no surrounding text.\n")
	return b.String()
}

func buildPortfolioPrompt(username string, repos []github.RepoSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Build a recruiter-facing developer portfolio for GitHub user %q from their public repositories. ", username)
	b.WriteString("Select the repositories that best demonstrate breadth across different technologies and produce a JSON object with exactly these fields:\n")
	b.WriteString(`{"developerName": string, "professionalSummary": string, "topSkills": [string], ` +
		`"selectedProjects": [{"repoName": string, "repoUrl": string, "description": string, "techStack": [string], "whyNotable": string, "category": string}], ` +
		`"skillsByCategory": {string: [string]}, "profileHighlights": [string]}` + "\n\n")

	b.WriteString("## Repositories\n")
	for _, r := range repos {
		fmt.Fprintf(&b, "- %s", r.Name)
		if r.PrimaryLanguage != "" {
			fmt.Fprintf(&b, " (%s)", r.PrimaryLanguage)
		}
		fmt.Fprintf(&b, " — stars:%d forks:%d size:%dKB", r.Stars, r.Forks, r.SizeKB)
		if r.Description != "" {
			fmt.Fprintf(&b, " — %s", r.Description)
		}
		fmt.Fprintf(&b, " — %s\n", r.URL)
	}

	b.WriteString("\nRespond with the JSON object only, no surrounding text.\n")
	return b.String()
}

func writeLanguageSplit(b *strings.Builder, languages map[string]int) {
	if len(languages) == 0 {
		return
	}
	total := 0
	for _, bytes := range languages {
		total += bytes
	}

	b.WriteString("## Languages\n")
	for _, lang := range sortedByBytes(languages) {
		fmt.Fprintf(b, "- %s: %d%%\n", lang, languages[lang]*100/total)
	}
	b.WriteString("\n")
}

func sortedByBytes(languages map[string]int) []string {
	langs := make([]string, 0, len(languages))
	for lang := range languages {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool {
		if languages[langs[i]] != languages[langs[j]] {
			return languages[langs[i]] > languages[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
