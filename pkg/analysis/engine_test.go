package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitfolio/gitfolio/pkg/config"
	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/github"
)

// fakeModel serves the chat completions endpoint, answering with content.
func fakeModel(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		reply := map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEngine(t *testing.T, content string) *Engine {
	srv := fakeModel(t, content)
	t.Setenv("GITFOLIO_TEST_AI_KEY", "sk-test")
	return NewEngine(config.AIConfig{BaseURL: srv.URL, APIKeyEnv: "GITFOLIO_TEST_AI_KEY", Model: "test-model"})
}

func sampleContext() *github.RepoContext {
	return &github.RepoContext{
		Name:        "hello-world",
		Description: "demo",
		Language:    "Go",
		Languages:   map[string]int{"Go": 900, "Makefile": 100},
		FileTree:    []string{"main.go", "go.mod"},
		KeyFiles:    map[string]string{"go.mod": "module hello-world\n"},
	}
}

func TestAnalyzeRepoParsesStructuredResponse(t *testing.T) {
	engine := testEngine(t, `{"projectName":"Hello World","shortDescription":"A demo service","techStack":["Go"],"detectedFeatures":["HTTP server"],"readmeMarkdown":"# Hello"}`)

	analysis, err := engine.AnalyzeRepo(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "Hello World", analysis.ProjectName)
	assert.Equal(t, []string{"Go"}, analysis.TechStack)
	assert.Equal(t, "# Hello", analysis.ReadmeMarkdown)
}

func TestAnalyzeRepoToleratesCodeFences(t *testing.T) {
	engine := testEngine(t, "```json\n{\"projectName\":\"Fenced\",\"shortDescription\":\"x\",\"techStack\":[],\"detectedFeatures\":[],\"readmeMarkdown\":\"\"}\n```")

	analysis, err := engine.AnalyzeRepo(context.Background(), sampleContext())
	require.NoError(t, err)
	assert.Equal(t, "Fenced", analysis.ProjectName)
}

func TestAnalyzeRepoRejectsNonJSON(t *testing.T) {
	engine := testEngine(t, "Sorry, I can't help with that.")

	_, err := engine.AnalyzeRepo(context.Background(), sampleContext())
	require.Error(t, err)
	assert.Equal(t, faults.KindAnalysisFailed, faults.KindOf(err))
}

func TestAnalyzeRepoRejectsEmptyAnalysis(t *testing.T) {
	engine := testEngine(t, `{"projectName":"","shortDescription":"","techStack":[],"detectedFeatures":[],"readmeMarkdown":""}`)

	_, err := engine.AnalyzeRepo(context.Background(), sampleContext())
	require.Error(t, err)
	assert.Equal(t, faults.KindAnalysisFailed, faults.KindOf(err))
}

func TestGeneratePortfolioParsesStructuredResponse(t *testing.T) {
	engine := testEngine(t, `{
		"developerName":"Octocat",
		"professionalSummary":"Builds demos.",
		"topSkills":["Go","Docker"],
		"selectedProjects":[{"repoName":"hello-world","repoUrl":"https://github.com/octocat/hello-world","description":"demo","techStack":["Go"],"whyNotable":"clean","category":"backend"}],
		"skillsByCategory":{"backend":["Go"]},
		"profileHighlights":["ships fast"]
	}`)

	portfolio, err := engine.GeneratePortfolio(context.Background(), "octocat", []github.RepoSummary{{Name: "hello-world"}})
	require.NoError(t, err)
	assert.Equal(t, "Octocat", portfolio.DeveloperName)
	require.Len(t, portfolio.SelectedProjects, 1)
	assert.Equal(t, "hello-world", portfolio.SelectedProjects[0].RepoName)
}

func TestGeneratePortfolioRejectsEmptySelection(t *testing.T) {
	engine := testEngine(t, `{"developerName":"x","professionalSummary":"y","topSkills":[],"selectedProjects":[],"skillsByCategory":{},"profileHighlights":[]}`)

	_, err := engine.GeneratePortfolio(context.Background(), "octocat", nil)
	require.Error(t, err)
	assert.Equal(t, faults.KindAnalysisFailed, faults.KindOf(err))
}

func TestBuildAnalysisPromptIncludesContext(t *testing.T) {
	rc := sampleContext()
	rc.ReadmeContent = "# existing readme"
	prompt := buildAnalysisPrompt(rc)

	assert.Contains(t, prompt, "hello-world")
	assert.Contains(t, prompt, "Go: 90%")
	assert.Contains(t, prompt, "main.go")
	assert.Contains(t, prompt, "# existing readme")
	assert.Contains(t, prompt, "module hello-world")
}

func TestBuildAnalysisPromptCapsFileTree(t *testing.T) {
	rc := sampleContext()
	rc.FileTree = nil
	for i := 0; i < 80; i++ {
		rc.FileTree = append(rc.FileTree, fmt.Sprintf("src/file_%02d.go", i))
	}
	prompt := buildAnalysisPrompt(rc)

	assert.Contains(t, prompt, "src/file_49.go")
	assert.NotContains(t, prompt, "src/file_50.go")
	assert.Contains(t, prompt, "and 30 more files")
}

func TestStripFences(t *testing.T) {
	tests := []struct{ in, want string }{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range tests {
		if got := stripFences(tc.in); got != tc.want {
			t.Errorf("stripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
