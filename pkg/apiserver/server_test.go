package apiserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitfolio/gitfolio/pkg/analysis"
	"github.com/gitfolio/gitfolio/pkg/config"
	"github.com/gitfolio/gitfolio/pkg/ghauth"
	"github.com/gitfolio/gitfolio/pkg/github"
	"github.com/gitfolio/gitfolio/pkg/jobs"
	"github.com/gitfolio/gitfolio/pkg/ratelimit"
	"github.com/gitfolio/gitfolio/pkg/store"
)

const (
	analysisJSON  = `{"projectName":"Hello World","shortDescription":"A demo service","techStack":["Go"],"detectedFeatures":["HTTP server"],"readmeMarkdown":"# Hello"}`
	portfolioJSON = `{"developerName":"octocat","professionalSummary":"builds demos","topSkills":["Go"],"selectedProjects":[{"repoName":"hello-world","repoUrl":"https://github.com/octocat/hello-world","description":"demo","techStack":["Go"],"whyNotable":"clean","category":"Backend"}]}`
)

type staticTokens struct{}

func (staticTokens) GetValid(_ context.Context) (ghauth.Credential, error) {
	return ghauth.Credential{Value: "test-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octocat/hello-world", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"hello-world","description":"demo project","language":"Go","default_branch":"main"}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello-world/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Go": 9000}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello-world/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tree":[{"path":"main.go","type":"blob"}]}`)
	})
	mux.HandleFunc("GET /repos/octocat/hello-world/readme", func(w http.ResponseWriter, r *http.Request) {
		readme := base64.StdEncoding.EncodeToString([]byte("# hello-world"))
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":"%s"}`, readme)
	})
	mux.HandleFunc("GET /users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"name":"hello-world","description":"demo","language":"Go","stargazers_count":7,"forks_count":2,"size":128,"html_url":"https://github.com/octocat/hello-world","fork":false,"private":false}]`)
	})
	mux.HandleFunc("GET /rate_limit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"resources":{"core":{"limit":5000,"remaining":42,"reset":%d}}}`, time.Now().Add(time.Hour).Unix())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// fakeModel answers chat completions with content after delay.
func fakeModel(t *testing.T, content string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		time.Sleep(delay)
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

type harnessOptions struct {
	modelContent    string
	modelDelay      time.Duration
	deferredTimeout time.Duration
	rules           []ratelimit.Rule
	exemptPaths     []string
}

type harness struct {
	mux   *http.ServeMux
	store *store.MemoryStore
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.deferredTimeout == 0 {
		opts.deferredTimeout = 5 * time.Second
	}

	ghSrv := fakeGitHub(t)
	modelSrv := fakeModel(t, opts.modelContent, opts.modelDelay)
	t.Setenv("GITFOLIO_TEST_AI_KEY", "sk-test")

	ghClient := github.NewClient(staticTokens{}, ghSrv.URL, 100)
	engine := analysis.NewEngine(config.AIConfig{
		BaseURL:   modelSrv.URL,
		APIKeyEnv: "GITFOLIO_TEST_AI_KEY",
		Model:     "test-model",
	})

	st := store.NewMemoryStore()
	pipeline := &Pipeline{GitHub: ghClient, Engine: engine, Analyses: st, Portfolios: st}

	pool := jobs.NewPool(2, 2, 8)
	t.Cleanup(pool.Stop)
	orch := jobs.NewOrchestrator(st, pool, pipeline.Runners(), 0)

	registry := ratelimit.NewRegistry(time.Hour, time.Hour)
	t.Cleanup(registry.Stop)
	controller := ratelimit.NewController(opts.rules, opts.exemptPaths, registry)

	srv := NewServer(controller, orch, pipeline, ghClient, opts.deferredTimeout)
	return &harness{mux: srv.setupRoutes(), store: st}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.RemoteAddr = "203.0.113.9:51234"
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestAnalyzeRepoSynchronous(t *testing.T) {
	h := newHarness(t, harnessOptions{modelContent: analysisJSON})

	rec := h.do(t, http.MethodPost, "/api/v1/repos/analyze", `{"repoUrl":"https://github.com/octocat/hello-world"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Hello World", body["projectName"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	// Result is persisted and fetchable.
	rec = h.do(t, http.MethodGet, "/api/v1/repos/analyses/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/repos/analyses", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["count"])
}

func TestAnalyzeRepoValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{modelContent: analysisJSON})

	rec := h.do(t, http.MethodPost, "/api/v1/repos/analyze", `{"repoUrl":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/repos/analyze", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRepoUnknownRepoIs404(t *testing.T) {
	h := newHarness(t, harnessOptions{modelContent: analysisJSON})
	rec := h.do(t, http.MethodPost, "/api/v1/repos/analyze", `{"repoUrl":"https://github.com/octocat/missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyzeRepoTimeoutStillPersists(t *testing.T) {
	h := newHarness(t, harnessOptions{
		modelContent:    analysisJSON,
		modelDelay:      150 * time.Millisecond,
		deferredTimeout: 20 * time.Millisecond,
	})

	rec := h.do(t, http.MethodPost, "/api/v1/repos/analyze", `{"repoUrl":"https://github.com/octocat/hello-world"}`)
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)

	// The timed-out work keeps running and its result lands in the store.
	require.Eventually(t, func() bool {
		recs, err := h.store.ListAnalyses(t.Context())
		return err == nil && len(recs) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestGeneratePortfolioSynchronous(t *testing.T) {
	h := newHarness(t, harnessOptions{modelContent: portfolioJSON})

	rec := h.do(t, http.MethodPost, "/api/v1/portfolio/generate", `{"githubUsername":"octocat"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "octocat", body["githubUsername"])
	assert.Equal(t, float64(1), body["totalPublicRepos"])
}

func TestGeneratePortfolioAsyncLifecycle(t *testing.T) {
	h := newHarness(t, harnessOptions{modelContent: portfolioJSON})

	rec := h.do(t, http.MethodPost, "/api/v1/portfolio/generate/async", `{"githubUsername":"octocat"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	jobID, _ := body["jobId"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, string(store.JobPending), body["status"])

	var job map[string]interface{}
	require.Eventually(t, func() bool {
		poll := h.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "")
		if poll.Code != http.StatusOK {
			return false
		}
		job = decodeBody(t, poll)
		status, _ := job["status"].(string)
		return status == string(store.JobCompleted) || status == string(store.JobFailed)
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, string(store.JobCompleted), job["status"], job["errorMessage"])
	resultRef, _ := job["resultRef"].(string)
	require.NotEmpty(t, resultRef)

	rec = h.do(t, http.MethodGet, "/api/v1/portfolio/"+resultRef, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "octocat", decodeBody(t, rec)["githubUsername"])
}

func TestGetJobUnknownIs404(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	rec := h.do(t, http.MethodGet, "/api/v1/jobs/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]interface{})
	require.NotNil(t, errObj)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestGithubQuota(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	rec := h.do(t, http.MethodGet, "/api/v1/github/quota", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(42), body["remaining"])
}

func TestAdmissionHeadersAndDenial(t *testing.T) {
	h := newHarness(t, harnessOptions{
		rules: []ratelimit.Rule{
			{PathPattern: "/api/v1/jobs*", Capacity: 2, RefillTokens: 2, RefillPeriod: time.Hour},
		},
	})

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodGet, "/api/v1/jobs", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(1-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := h.do(t, http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]interface{})
	require.NotNil(t, errObj)
	assert.Equal(t, "ADMISSION_DENIED", errObj["code"])
}

func TestExemptPathCarriesNoLimitHeaders(t *testing.T) {
	h := newHarness(t, harnessOptions{
		rules: []ratelimit.Rule{
			{PathPattern: "/api/v1/*", Capacity: 1, RefillTokens: 1, RefillPeriod: time.Hour},
		},
		exemptPaths: []string{"/api/v1/jobs*"},
	})

	for i := 0; i < 5; i++ {
		rec := h.do(t, http.MethodGet, "/api/v1/jobs", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
