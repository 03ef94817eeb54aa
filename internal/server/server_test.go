package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jonathan/recruiting-assistant/internal/agents"
	"github.com/jonathan/recruiting-assistant/internal/config"
	"github.com/jonathan/recruiting-assistant/internal/db"
	"github.com/jonathan/recruiting-assistant/internal/resolver"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/server/ratelimit"
	"github.com/jonathan/recruiting-assistant/internal/stubs"
	"github.com/jonathan/recruiting-assistant/internal/types"
	"github.com/jonathan/recruiting-assistant/internal/workflow"
)

// fakeRunner returns a canned report and remembers the last request.
type fakeRunner struct {
	mu     sync.Mutex
	last   workflow.Request
	report func(req workflow.Request) *workflow.Report
}

func (f *fakeRunner) Run(_ context.Context, req workflow.Request) *workflow.Report {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	if f.report != nil {
		return f.report(req)
	}
	return completeReport()
}

func (f *fakeRunner) lastRequest() workflow.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func completeReport() *workflow.Report {
	return &workflow.Report{
		WorkflowResult: types.WorkflowResult{
			FoundCount: 1,
			SavedCount: 1,
			Outcomes:   []types.SaveOutcome{{CandidateRef: "c-1", Name: "Ada", Status: types.SaveStatusSaved}},
		},
		RunID: uuid.NewString(),
		State: workflow.StateComplete,
	}
}

// fakeStore is an in-memory RunStore.
type fakeStore struct {
	runs     map[uuid.UUID]db.Run
	outcomes map[uuid.UUID][]db.Outcome
	err      error
	filters  db.RunFilters
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (*db.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (f *fakeStore) ListRuns(_ context.Context, filters db.RunFilters) ([]db.Run, error) {
	f.filters = filters
	if f.err != nil {
		return nil, f.err
	}
	runs := []db.Run{}
	for _, r := range f.runs {
		runs = append(runs, r)
	}
	return runs, nil
}

func (f *fakeStore) ListOutcomes(_ context.Context, runID uuid.UUID) ([]db.Outcome, error) {
	return f.outcomes[runID], nil
}

func newTestServer(t *testing.T, cfg Config, runner Runner, store RunStore) *httptest.Server {
	t.Helper()
	if cfg.RateLimit == nil {
		cfg.RateLimit = &ratelimit.Config{Enabled: false}
	}
	s := New(cfg, runner, store)
	t.Cleanup(s.Close)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeRunner{}, nil)

	resp := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "ok", "service": "hr_recruiting_assistant"}, body)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeRunner{}, nil)

	resp := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRunWorkflow(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantSkills []string
	}{
		{"comma separated skills", `{"username":"u","password":"p","title":"Engineer","skills":"go, sql"}`, []string{"go", "sql"}},
		{"skill array", `{"username":"u","password":"p","title":"Engineer","skills":["go","sql"]}`, []string{"go", "sql"}},
		{"missing skills", `{"username":"u","password":"p","title":"Engineer"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			ts := newTestServer(t, Config{}, runner, nil)

			resp := post(t, ts.URL+"/run_workflow", tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var report workflow.Report
			decode(t, resp, &report)
			assert.Equal(t, workflow.StateComplete, report.State)
			assert.Equal(t, 1, report.SavedCount)

			req := runner.lastRequest()
			assert.Equal(t, "u", req.Credentials.Username)
			assert.Equal(t, "p", req.Credentials.Password)
			assert.Equal(t, "Engineer", req.Criteria.Title)
			if tt.wantSkills == nil {
				assert.Empty(t, req.Criteria.Skills)
			} else {
				assert.Equal(t, tt.wantSkills, req.Criteria.Skills)
			}
		})
	}
}

func TestRunWorkflow_ValidationFailureIs400WithReport(t *testing.T) {
	runner := &fakeRunner{report: func(workflow.Request) *workflow.Report {
		return &workflow.Report{
			WorkflowResult: types.WorkflowResult{TopLevelError: workflow.TopLevelValidation, ErrorKind: "validation", Outcomes: []types.SaveOutcome{}},
			State:          workflow.StateValidationFailed,
		}
	}}
	ts := newTestServer(t, Config{}, runner, nil)

	resp := post(t, ts.URL+"/run_workflow", `{"username":"","password":"","title":"","skills":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var report workflow.Report
	decode(t, resp, &report)
	assert.Equal(t, workflow.TopLevelValidation, report.TopLevelError)
}

func TestRunWorkflow_BadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{nope`},
		{"numeric skills", `{"username":"u","password":"p","title":"t","skills":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Config{}, &fakeRunner{}, nil)
			resp := post(t, ts.URL+"/run_workflow", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body map[string]string
			decode(t, resp, &body)
			assert.Contains(t, body["error"], "validation error: body")
		})
	}
}

func TestRunWorkflow_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeRunner{}, nil)
	big := `{"title":"` + strings.Repeat("x", maxRequestBytes) + `"}`
	resp := post(t, ts.URL+"/run_workflow", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRunWorkflowStream(t *testing.T) {
	runner := &fakeRunner{report: func(req workflow.Request) *workflow.Report {
		req.OnProgress(workflow.ProgressEvent{RunID: "r1", Type: "state", State: workflow.StateAuthenticating})
		req.OnProgress(workflow.ProgressEvent{RunID: "r1", Type: "save", Position: 1, Total: 1})
		return completeReport()
	}}
	ts := newTestServer(t, Config{}, runner, nil)

	resp := post(t, ts.URL+"/run_workflow/stream", `{"username":"u","password":"p","title":"t","skills":"go"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	var last string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			last = data
		}
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []string{"progress", "progress", "complete"}, events)
	var report workflow.Report
	require.NoError(t, json.Unmarshal([]byte(last), &report))
	assert.Equal(t, workflow.StateComplete, report.State)
}

func TestRunWorkflowStream_OutlivesWriteTimeout(t *testing.T) {
	runner := &fakeRunner{report: func(req workflow.Request) *workflow.Report {
		req.OnProgress(workflow.ProgressEvent{RunID: "r1", Type: "state", State: workflow.StateSaving})
		time.Sleep(250 * time.Millisecond)
		return completeReport()
	}}
	s := New(Config{RateLimit: &ratelimit.Config{Enabled: false}}, runner, nil)
	t.Cleanup(s.Close)
	ts := httptest.NewUnstartedServer(s.Handler())
	ts.Config.WriteTimeout = 50 * time.Millisecond
	ts.Start()
	t.Cleanup(ts.Close)

	resp := post(t, ts.URL+"/run_workflow/stream", `{"username":"u","password":"p","title":"t","skills":"go"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: complete")
}

func rpcCall(t *testing.T, url, method string, params any) rpc.Response {
	t.Helper()
	req, err := rpc.NewRequest(method, params, "1")
	require.NoError(t, err)
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestA2A(t *testing.T) {
	runner := &fakeRunner{}
	ts := newTestServer(t, Config{}, runner, nil)

	out := rpcCall(t, ts.URL+"/a2a", MethodStartWorkflow, map[string]any{
		"username": "u", "password": "p", "title": "Engineer", "skills": []string{"go"},
	})
	require.Nil(t, out.Error)
	var report workflow.Report
	require.NoError(t, json.Unmarshal(out.Result, &report))
	assert.Equal(t, workflow.StateComplete, report.State)
	assert.Equal(t, []string{"go"}, runner.lastRequest().Criteria.Skills)

	out = rpcCall(t, ts.URL+"/a2a", MethodStartWorkflow, map[string]any{"skills": 5})
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeInvalidParams, out.Error.Code)

	out = rpcCall(t, ts.URL+"/a2a", "stop_everything", map[string]any{})
	require.NotNil(t, out.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, out.Error.Code)
}

func TestRuns_NoStore(t *testing.T) {
	ts := newTestServer(t, Config{}, &fakeRunner{}, nil)

	for _, path := range []string{"/runs", "/runs/" + uuid.NewString()} {
		resp := get(t, ts.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
	}
}

func TestRuns_WithStore(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{
		runs: map[uuid.UUID]db.Run{
			id: {ID: id, Username: "ann", Title: "Engineer", State: "complete", FoundCount: 1, SavedCount: 1, StartedAt: time.Now()},
		},
		outcomes: map[uuid.UUID][]db.Outcome{
			id: {{RunID: id, Position: 1, SaveOutcome: types.SaveOutcome{CandidateRef: "c-1", Name: "Ada", Status: types.SaveStatusSaved}}},
		},
	}
	ts := newTestServer(t, Config{}, &fakeRunner{}, store)

	resp := get(t, ts.URL+"/runs?username=ann&state=complete&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list RunListResponse
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, db.RunFilters{Username: "ann", State: "complete", Limit: 5}, store.filters)

	resp = get(t, ts.URL+"/runs?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts.URL+"/runs/"+id.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail RunDetailResponse
	decode(t, resp, &detail)
	require.NotNil(t, detail.Run)
	assert.Equal(t, "ann", detail.Run.Username)
	require.Len(t, detail.Outcomes, 1)
	assert.Equal(t, "Ada", detail.Outcomes[0].Name)

	resp = get(t, ts.URL+"/runs/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, ts.URL+"/runs/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRuns_StoreErrorIsNotEchoed(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused to 10.1.2.3")}
	ts := newTestServer(t, Config{}, &fakeRunner{}, store)

	resp := get(t, ts.URL+"/runs")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "internal error", body["error"])
}

func TestAPIKey(t *testing.T) {
	ts := newTestServer(t, Config{APIKey: "k3y"}, &fakeRunner{}, nil)

	resp := post(t, ts.URL+"/run_workflow", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/run_workflow", strings.NewReader(`{"username":"u","password":"p","title":"t","skills":"go"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer k3y")
	authed, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)

	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/health").StatusCode, "health stays open")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Config{AllowedOrigins: []string{"https://hr.example.com"}}, &fakeRunner{}, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/run_workflow", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://hr.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://hr.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := Config{RateLimit: &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{{Path: "/run_workflow", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1}},
	}}
	ts := newTestServer(t, cfg, &fakeRunner{}, nil)
	body := `{"username":"u","password":"p","title":"t","skills":"go"}`

	first := post(t, ts.URL+"/run_workflow", body)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, "1", first.Header.Get("X-RateLimit-Limit"))

	second := post(t, ts.URL+"/run_workflow", body)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
	var payload map[string]any
	decode(t, second, &payload)
	assert.Equal(t, "rate_limit_exceeded", payload["error"])
}

// TestRunWorkflow_AgainstStubPlatform serves the real orchestrator over the
// stub services.
func TestRunWorkflow_AgainstStubPlatform(t *testing.T) {
	platform, err := stubs.New(&stubs.Options{
		Config: &config.StubConfig{JWTSecret: "s", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
	})
	require.NoError(t, err)
	backend := httptest.NewServer(platform.Handler())
	t.Cleanup(backend.Close)

	invoker := rpc.NewHTTPInvoker(nil)
	res := resolver.New(invoker, resolver.Options{Static: stubs.Addresses(backend.URL)})
	orch := workflow.New(agents.New(invoker, res, nil), nil)
	ts := newTestServer(t, Config{}, orch, nil)

	resp := post(t, ts.URL+"/run_workflow", `{"username":"hr_admin","password":"changeme","title":"data engineer","skills":"python"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report workflow.Report
	decode(t, resp, &report)
	assert.Equal(t, workflow.StateComplete, report.State)
	assert.Equal(t, 1, report.FoundCount)
	assert.Equal(t, 1, report.SavedCount)
	assert.Equal(t, []string{"Jonas Weber"}, platform.RecordNames())

	resp = post(t, ts.URL+"/run_workflow", `{"username":"hr_admin","password":"changeme","title":"","skills":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
