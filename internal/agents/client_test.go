package agents

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/recruiting-assistant/internal/resolver"
	"github.com/jonathan/recruiting-assistant/internal/rpc"
	"github.com/jonathan/recruiting-assistant/internal/types"
)

// platform runs one fake JSON-RPC service per capability.
type platform struct {
	auth, web, db *rpc.Mux
	static        map[string]string
	calls         atomic.Int32

	mu         sync.Mutex
	lastParams map[string]json.RawMessage // by method
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	p := &platform{
		auth:       rpc.NewMux(nil),
		web:        rpc.NewMux(nil),
		db:         rpc.NewMux(nil),
		static:     map[string]string{},
		lastParams: map[string]json.RawMessage{},
	}
	for name, mux := range map[string]*rpc.Mux{AuthService: p.auth, SearchService: p.web, RecordsService: p.db} {
		server := httptest.NewServer(mux)
		t.Cleanup(server.Close)
		p.static[name] = server.URL
	}
	return p
}

// handle registers fn and records the params of each call.
func (p *platform) handle(mux *rpc.Mux, method string, fn rpc.HandlerFunc) {
	mux.Handle(method, func(ctx context.Context, params json.RawMessage) (any, error) {
		p.calls.Add(1)
		p.mu.Lock()
		p.lastParams[method] = params
		p.mu.Unlock()
		return fn(ctx, params)
	})
}

func (p *platform) params(method string) json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastParams[method]
}

func (p *platform) client(opts *Options) *Client {
	return New(rpc.NewHTTPInvoker(nil), resolver.New(nil, resolver.Options{Static: p.static}), opts)
}

func reply(v any) rpc.HandlerFunc {
	return func(context.Context, json.RawMessage) (any, error) { return v, nil }
}

func fail(err error) rpc.HandlerFunc {
	return func(context.Context, json.RawMessage) (any, error) { return nil, err }
}

var creds = types.Credentials{Username: "hr_user", Password: "hunter2"}

func TestAuthenticate_Success(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.auth, MethodLogin, reply(map[string]any{"success": true, "token": "opaque-token"}))

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	session, err := p.client(&Options{Now: func() time.Time { return now }}).Authenticate(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, "opaque-token", session.Token)
	assert.Equal(t, now, session.ObtainedAt)
	assert.Nil(t, session.ExpiresAt)
	assert.JSONEq(t, `{"username":"hr_user","password":"hunter2"}`, string(p.params(MethodLogin)))
}

func TestAuthenticate_ReadsJWTClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "hr_user",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	p := newPlatform(t)
	p.handle(p.auth, MethodLogin, reply(map[string]any{"success": true, "token": token}))

	session, err := p.client(nil).Authenticate(context.Background(), creds)
	require.NoError(t, err)
	require.NotNil(t, session.ExpiresAt)
	assert.True(t, exp.Equal(*session.ExpiresAt))
	assert.Equal(t, "hr_user", session.Subject)
}

func TestAuthenticate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler rpc.HandlerFunc
		kind    rpc.Kind
		reason  string
	}{
		{
			name:    "rejected credentials",
			handler: reply(map[string]any{"success": false, "error": "Invalid username or password"}),
			kind:    rpc.KindBusiness,
			reason:  "Invalid username or password",
		},
		{
			name:    "rejected without reason",
			handler: reply(map[string]any{"success": false}),
			kind:    rpc.KindBusiness,
			reason:  "invalid credentials",
		},
		{
			name:    "json-rpc error",
			handler: fail(&rpc.Error{Kind: rpc.KindBusiness, Code: -32001, Message: "account locked"}),
			kind:    rpc.KindBusiness,
			reason:  "account locked",
		},
		{
			name:    "success without token",
			handler: reply(map[string]any{"success": true}),
			kind:    rpc.KindProtocol,
			reason:  "without a token",
		},
		{
			name:    "result does not match schema",
			handler: reply(map[string]any{"ok": true}),
			kind:    rpc.KindProtocol,
			reason:  "login_result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t)
			p.handle(p.auth, MethodLogin, tt.handler)

			session, err := p.client(nil).Authenticate(context.Background(), creds)
			assert.Nil(t, session)

			af, ok := IsAuthFailure(err)
			require.True(t, ok, "expected *AuthFailure, got %v", err)
			assert.Equal(t, tt.kind, af.Kind)
			assert.Contains(t, af.Reason, tt.reason)
		})
	}
}

func TestAuthenticate_InvalidCredentialsMakeNoCall(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.auth, MethodLogin, reply(map[string]any{"success": true, "token": "t"}))

	_, err := p.client(nil).Authenticate(context.Background(), types.Credentials{Username: "hr_user"})
	af, ok := IsAuthFailure(err)
	require.True(t, ok)
	assert.Equal(t, rpc.KindValidation, af.Kind)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestAuthenticate_UnresolvableService(t *testing.T) {
	client := New(rpc.NewHTTPInvoker(nil), resolver.New(nil, resolver.Options{}), nil)

	_, err := client.Authenticate(context.Background(), creds)
	af, ok := IsAuthFailure(err)
	require.True(t, ok)
	assert.Equal(t, rpc.KindResolution, af.Kind)
	assert.Equal(t, rpc.KindResolution, rpc.KindOf(err))
}

func TestAuthenticate_PasswordNeverLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	p := newPlatform(t)
	p.handle(p.auth, MethodLogin, reply(map[string]any{"success": false, "error": "nope"}))
	client := p.client(&Options{Logger: zap.New(core)})

	_, _ = client.Authenticate(context.Background(), creds)
	p.handle(p.auth, MethodLogin, reply(map[string]any{"success": true, "token": "t"}))
	_, _ = client.Authenticate(context.Background(), creds)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, creds.Password)
		for k, v := range entry.ContextMap() {
			assert.NotContains(t, k+"="+toString(v), creds.Password)
		}
	}
}

func toString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestSearchCandidates_Success(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.web, MethodSearchCandidates, reply([]map[string]any{
		{"id": "c1", "name": "Jane Doe", "title": "Software Engineer", "skills": []string{"Python", "AWS"}, "experience": "5 years"},
		{"id": "c2", "name": "John Smith", "title": "Software Engineer", "skills": []string{"Python"}},
	}))

	criteria := types.SearchCriteria{Title: " Software Engineer ", Skills: []string{"Python", " aws", "python"}}
	candidates, err := p.client(nil).SearchCandidates(context.Background(), criteria, &types.Session{Token: "tok"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "c1", candidates[0].ID)
	assert.Equal(t, []string{"Python", "AWS"}, candidates[0].Skills)
	assert.Equal(t, "5 years", candidates[0].Experience)
	assert.Equal(t, "c2", candidates[1].ID)

	assert.JSONEq(t, `{"title":"Software Engineer","skills":["Python","aws"]}`, string(p.params(MethodSearchCandidates)))
}

func TestSearchCandidates_EmptyIsSuccess(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.web, MethodSearchCandidates, reply([]any{}))

	candidates, err := p.client(nil).SearchCandidates(context.Background(), types.NewSearchCriteria("Chef", "Knives"), nil)
	require.NoError(t, err)
	assert.NotNil(t, candidates)
	assert.Empty(t, candidates)
}

func TestSearchCandidates_AttachesTokenWhenConfigured(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.web, MethodSearchCandidates, reply([]any{}))

	_, err := p.client(&Options{AttachToken: true}).SearchCandidates(context.Background(),
		types.NewSearchCriteria("Engineer", "Go"), &types.Session{Token: "tok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Engineer","skills":["Go"],"token":"tok"}`, string(p.params(MethodSearchCandidates)))
}

func TestSearchCandidates_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler rpc.HandlerFunc
		kind    rpc.Kind
		reason  string
	}{
		{"error object", reply(map[string]any{"error": "index unavailable"}), rpc.KindBusiness, "index unavailable"},
		{"json-rpc error", fail(rpc.NewBusinessError("search backend down")), rpc.KindBusiness, "search backend down"},
		{"not a list", reply("three candidates"), rpc.KindProtocol, "candidate_list"},
		{"object without error", reply(map[string]any{"results": []any{}}), rpc.KindProtocol, "candidate_list"},
		{"candidate without id", reply([]map[string]any{{"name": "Jane", "title": "Engineer"}}), rpc.KindProtocol, "candidate_list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t)
			p.handle(p.web, MethodSearchCandidates, tt.handler)

			candidates, err := p.client(nil).SearchCandidates(context.Background(), types.NewSearchCriteria("Engineer", "Go"), nil)
			assert.Nil(t, candidates)

			var sf *SearchFailure
			require.ErrorAs(t, err, &sf)
			assert.Equal(t, tt.kind, sf.Kind)
			assert.Contains(t, sf.Reason, tt.reason)
		})
	}
}

func TestSearchCandidates_InvalidCriteriaMakeNoCall(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.web, MethodSearchCandidates, reply([]any{}))

	_, err := p.client(nil).SearchCandidates(context.Background(), types.SearchCriteria{Title: "Engineer", Skills: []string{" "}}, nil)
	var sf *SearchFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, rpc.KindValidation, sf.Kind)
	assert.Equal(t, int32(0), p.calls.Load())
}

var jane = types.Candidate{ID: "c1", Name: "Jane Doe", Title: "Software Engineer", Skills: []string{"Python", "AWS"}}

func TestSaveCandidate_Saved(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.db, MethodCreateRecord, reply(map[string]any{"status": "saved", "name": "Jane Doe"}))

	outcome := p.client(nil).SaveCandidate(context.Background(), jane, &types.Session{Token: "tok"})
	assert.Equal(t, types.SaveOutcome{CandidateRef: "c1", Name: "Jane Doe", Status: types.SaveStatusSaved}, outcome)
	assert.JSONEq(t, `{"name":"Jane Doe","title":"Software Engineer","skills":["Python","AWS"]}`, string(p.params(MethodCreateRecord)))
}

func TestSaveCandidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler rpc.HandlerFunc
		kind    rpc.Kind
		detail  string
	}{
		{"duplicate record", fail(rpc.NewBusinessError("duplicate record")), rpc.KindBusiness, "duplicate record"},
		{"failed status with error", reply(map[string]any{"status": "failed", "error": "disk full"}), rpc.KindBusiness, "disk full"},
		{"unknown status", reply(map[string]any{"status": "queued"}), rpc.KindBusiness, `status "queued"`},
		{"schema mismatch", reply([]any{"saved"}), rpc.KindProtocol, "create_record_result"},
		{"internal error", fail(assert.AnError), rpc.KindBusiness, "Internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t)
			p.handle(p.db, MethodCreateRecord, tt.handler)

			outcome := p.client(nil).SaveCandidate(context.Background(), jane, nil)
			assert.Equal(t, types.SaveStatusFailed, outcome.Status)
			assert.Equal(t, "c1", outcome.CandidateRef)
			assert.Equal(t, "Jane Doe", outcome.Name)
			assert.Equal(t, string(tt.kind), outcome.ErrorKind)
			assert.Contains(t, outcome.ErrorDetail, tt.detail)
		})
	}
}

func TestSaveCandidate_Timeout(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.db, MethodCreateRecord, func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return map[string]any{"status": "saved"}, nil
	})
	client := New(rpc.NewHTTPInvoker(&rpc.Options{Timeout: 50 * time.Millisecond}),
		resolver.New(nil, resolver.Options{Static: p.static}), nil)

	outcome := client.SaveCandidate(context.Background(), jane, nil)
	assert.Equal(t, types.SaveStatusFailed, outcome.Status)
	assert.Equal(t, string(rpc.KindTimeout), outcome.ErrorKind)
}

func TestSaveCandidate_MissingNameMakesNoCall(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.db, MethodCreateRecord, reply(map[string]any{"status": "saved"}))

	outcome := p.client(nil).SaveCandidate(context.Background(), types.Candidate{ID: "c9", Name: "  "}, nil)
	assert.Equal(t, types.SaveStatusFailed, outcome.Status)
	assert.Equal(t, string(rpc.KindValidation), outcome.ErrorKind)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestSaveCandidate_AttachesToken(t *testing.T) {
	p := newPlatform(t)
	p.handle(p.db, MethodCreateRecord, reply(map[string]any{"status": "saved"}))

	outcome := p.client(&Options{AttachToken: true}).SaveCandidate(context.Background(),
		types.Candidate{ID: "c1", Name: "Jane"}, &types.Session{Token: "tok"})
	assert.True(t, outcome.Saved())
	assert.True(t, strings.Contains(string(p.params(MethodCreateRecord)), `"token":"tok"`))
	assert.Contains(t, string(p.params(MethodCreateRecord)), `"skills":[]`)
}
