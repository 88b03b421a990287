package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gitfolio/gitfolio/pkg/config"
	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/github"
	"github.com/gitfolio/gitfolio/pkg/observability"
)

const systemPrompt = "You are a senior software engineer writing portfolio material. " +
	"You always answer with a single valid JSON object and nothing else."

// Engine runs chat completions against the configured model and parses the
// structured responses.
type Engine struct {
	client openai.Client
	model  string
}

// NewEngine creates an engine from the AI configuration. The API key is read
// from the environment variable named in the config.
func NewEngine(cfg config.AIConfig) *Engine {
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, option.WithAPIKey(key))
		}
	}
	return &Engine{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

// AnalyzeRepo produces a structured analysis for one repository context.
func (e *Engine) AnalyzeRepo(ctx context.Context, rc *github.RepoContext) (*RepoAnalysis, error) {
	observability.Infof("Analyzing repository %q with model %s", rc.Name, e.model)

	var analysis RepoAnalysis
	if err := e.complete(ctx, buildAnalysisPrompt(rc), &analysis); err != nil {
		return nil, faults.Wrap(faults.KindAnalysisFailed,
			fmt.Sprintf("analysis failed for repository %s", rc.Name), err)
	}
	if analysis.ProjectName == "" {
		return nil, faults.Newf(faults.KindAnalysisFailed,
			"model returned no usable analysis for repository %s", rc.Name)
	}

	observability.Infof("Analysis complete for %q, tech stack: %s", rc.Name, strings.Join(analysis.TechStack, ", "))
	return &analysis, nil
}

// GeneratePortfolio produces a portfolio document from a user's repository
// listing.
func (e *Engine) GeneratePortfolio(ctx context.Context, username string, repos []github.RepoSummary) (*DeveloperPortfolio, error) {
	observability.Infof("Generating portfolio for %q from %d repositories with model %s", username, len(repos), e.model)

	var portfolio DeveloperPortfolio
	if err := e.complete(ctx, buildPortfolioPrompt(username, repos), &portfolio); err != nil {
		return nil, faults.Wrap(faults.KindAnalysisFailed,
			fmt.Sprintf("portfolio generation failed for user %s", username), err)
	}
	if len(portfolio.SelectedProjects) == 0 {
		return nil, faults.Newf(faults.KindAnalysisFailed,
			"model selected no projects for user %s", username)
	}
	return &portfolio, nil
}

func (e *Engine) complete(ctx context.Context, prompt string, out interface{}) error {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(e.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return fmt.Errorf("error calling chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices returned")
	}

	payload := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("model response is not valid JSON: %w", err)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite JSON-only instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
