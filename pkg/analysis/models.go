// Package analysis turns repository context into structured analysis and
// portfolio documents using a chat completion model.
package analysis

// RepoAnalysis is the structured result of analyzing one repository.
type RepoAnalysis struct {
	ProjectName      string   `json:"projectName"`
	ShortDescription string   `json:"shortDescription"`
	TechStack        []string `json:"techStack"`
	DetectedFeatures []string `json:"detectedFeatures"`
	ReadmeMarkdown   string   `json:"readmeMarkdown"`
}

// PortfolioProject is one repository selected for a portfolio.
type PortfolioProject struct {
	RepoName    string   `json:"repoName"`
	RepoURL     string   `json:"repoUrl"`
	Description string   `json:"description"`
	TechStack   []string `json:"techStack"`
	WhyNotable  string   `json:"whyNotable"`
	Category    string   `json:"category"`
}

// DeveloperPortfolio is the profile-level document generated from a user's
// public repositories.
type DeveloperPortfolio struct {
	DeveloperName       string              `json:"developerName"`
	ProfessionalSummary string              `json:"professionalSummary"`
	TopSkills           []string            `json:"topSkills"`
	SelectedProjects    []PortfolioProject  `json:"selectedProjects"`
	SkillsByCategory    map[string][]string `json:"skillsByCategory"`
	ProfileHighlights   []string            `json:"profileHighlights"`
}
