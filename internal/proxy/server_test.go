package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexrouter/semantic-proxy/internal/decision"
	"github.com/cortexrouter/semantic-proxy/internal/routerconfig"
)

type stubComputer struct {
	signal  routerconfig.Signal
	emitted bool
	err     error
	delay   time.Duration
}

func (c *stubComputer) Compute(ctx context.Context, cfg routerconfig.SignalConfig, content string) (routerconfig.Signal, bool, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	if c.err != nil {
		return nil, false, c.err
	}

	return c.signal, c.emitted, nil
}

func newRouter(t *testing.T, models []routerconfig.Model, decisions []routerconfig.DecisionConfig, signals []routerconfig.SignalConfig) *routerconfig.RouterConfig {
	t.Helper()

	rc := &routerconfig.RouterConfig{Models: models, Decisions: decisions, Signals: signals}
	require.NoError(t, rc.Validate())

	return rc
}

func TestServer_ChatStreamingPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"resp"}`))
	}))
	defer upstream.Close()

	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: upstream.URL, IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)

	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, nil)

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"id":"resp"}`, rec.Body.String())
}

func TestServer_ResponsesStringInput(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: upstream.URL, IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)
	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, nil)

	body := `{"model":"m","input":"write a haiku"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/responses", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ComplexityRoutingSelectsDecision(t *testing.T) {
	var hitPath string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	models := []routerconfig.Model{
		{Name: "default", Endpoint: "http://unused.invalid", IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI},
		{Name: "gpt-large", Endpoint: upstream.URL, ModelType: routerconfig.ModelTypeOpenAI},
	}
	decisions := []routerconfig.DecisionConfig{
		{
			Name:     "big",
			ModelRef: "gpt-large",
			Operator: routerconfig.RuleAND,
			Rules: []routerconfig.Condition{
				{Operator: routerconfig.OpGT, Expected: routerconfig.ExpectedSignal{SignalType: routerconfig.SignalTypeComplexity, NumericValue: 7.0}},
			},
		},
	}
	signals := []routerconfig.SignalConfig{
		{SignalType: routerconfig.SignalTypeComplexity, ConfidenceThreshold: 0.9, ClassifierModelPath: "local:complexity"},
	}

	router := newRouter(t, models, decisions, signals)
	eng := decision.NewEngine(decisions)

	computers := map[routerconfig.SignalType]SignalComputer{
		routerconfig.SignalTypeComplexity: &stubComputer{
			signal:  routerconfig.ComplexitySignal{Score: 9, Confidence: 0.95},
			emitted: true,
		},
	}

	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, computers)

	body := `{"model":"m","messages":[{"role":"user","content":"do something hard"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/v1/chat/completions", hitPath)
}

func TestServer_ANDPartialMatchFallsBackToDefault(t *testing.T) {
	var hitDefault bool

	defaultUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitDefault = true
		w.WriteHeader(http.StatusOK)
	}))
	defer defaultUpstream.Close()

	models := []routerconfig.Model{
		{Name: "default", Endpoint: defaultUpstream.URL, IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI},
		{Name: "special", Endpoint: "http://unused.invalid", ModelType: routerconfig.ModelTypeOpenAI},
	}
	decisions := []routerconfig.DecisionConfig{
		{
			Name:     "special",
			ModelRef: "special",
			Operator: routerconfig.RuleAND,
			Rules: []routerconfig.Condition{
				{Operator: routerconfig.OpEQ, Expected: routerconfig.ExpectedSignal{SignalType: routerconfig.SignalTypeUseCase, Label: "code_generation"}},
				{Operator: routerconfig.OpGT, Expected: routerconfig.ExpectedSignal{SignalType: routerconfig.SignalTypeComplexity, NumericValue: 5.0}},
			},
		},
	}
	signals := []routerconfig.SignalConfig{
		{SignalType: routerconfig.SignalTypeUseCase, ConfidenceThreshold: 0.5, ClassifierModelPath: "local:uc", Labels: []string{"code_generation"}},
		{SignalType: routerconfig.SignalTypeComplexity, ConfidenceThreshold: 0.5, ClassifierModelPath: "local:c"},
	}

	router := newRouter(t, models, decisions, signals)
	eng := decision.NewEngine(decisions)

	computers := map[routerconfig.SignalType]SignalComputer{
		routerconfig.SignalTypeUseCase:    &stubComputer{signal: routerconfig.UseCaseSignal{Label: "code_generation", Confidence: 0.9}, emitted: true},
		routerconfig.SignalTypeComplexity: &stubComputer{signal: routerconfig.ComplexitySignal{Score: 2, Confidence: 0.9}, emitted: true},
	}

	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, computers)

	body := `{"model":"m","messages":[{"role":"user","content":"write code"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hitDefault, "AND partial match must fall back to the default model")
}

func TestServer_ORPartialMatchRoutesToDecision(t *testing.T) {
	var hitSpecial bool

	specialUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitSpecial = true
		w.WriteHeader(http.StatusOK)
	}))
	defer specialUpstream.Close()

	models := []routerconfig.Model{
		{Name: "default", Endpoint: "http://unused.invalid", IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI},
		{Name: "special", Endpoint: specialUpstream.URL, ModelType: routerconfig.ModelTypeOpenAI},
	}
	decisions := []routerconfig.DecisionConfig{
		{
			Name:     "special",
			ModelRef: "special",
			Operator: routerconfig.RuleOR,
			Rules: []routerconfig.Condition{
				{Operator: routerconfig.OpEQ, Expected: routerconfig.ExpectedSignal{SignalType: routerconfig.SignalTypeUseCase, Label: "code_generation"}},
				{Operator: routerconfig.OpGT, Expected: routerconfig.ExpectedSignal{SignalType: routerconfig.SignalTypeComplexity, NumericValue: 5.0}},
			},
		},
	}
	signals := []routerconfig.SignalConfig{
		{SignalType: routerconfig.SignalTypeUseCase, ConfidenceThreshold: 0.5, ClassifierModelPath: "local:uc", Labels: []string{"code_generation"}},
		{SignalType: routerconfig.SignalTypeComplexity, ConfidenceThreshold: 0.5, ClassifierModelPath: "local:c"},
	}

	router := newRouter(t, models, decisions, signals)
	eng := decision.NewEngine(decisions)

	computers := map[routerconfig.SignalType]SignalComputer{
		routerconfig.SignalTypeUseCase:    &stubComputer{signal: routerconfig.UseCaseSignal{Label: "code_generation", Confidence: 0.9}, emitted: true},
		routerconfig.SignalTypeComplexity: &stubComputer{signal: routerconfig.ComplexitySignal{Score: 2, Confidence: 0.9}, emitted: true},
	}

	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, computers)

	body := `{"model":"m","messages":[{"role":"user","content":"write code"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hitSpecial, "OR partial match must pass and route to the decision's model")
}

func TestServer_UpstreamTimeoutYields502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: upstream.URL, IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)

	srv := New(Config{RequestTimeout: 5 * time.Millisecond}, router, eng, nil)

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bad Gateway")
}

func TestServer_ParseFailureDefaultsTo500(t *testing.T) {
	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: "http://unused.invalid", IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)

	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"foo":"bar"}`))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_ParseFailureStrictStatusIs400(t *testing.T) {
	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: "http://unused.invalid", IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)

	srv := New(Config{RequestTimeout: 5 * time.Second, StrictParseStatus: true}, router, eng, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"foo":"bar"}`))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_NoDefaultFallsBackToUpstreamBase(t *testing.T) {
	var hit bool

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router := newRouter(t, nil, nil, nil)
	eng := decision.NewEngine(nil)

	srv := New(Config{RequestTimeout: 5 * time.Second, UpstreamBase: upstream.URL}, router, eng, nil)

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit, "no default model and no matched decision must fall back to upstream_base")
}

func TestServer_HeaderFidelity(t *testing.T) {
	var gotHeader string

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	router := newRouter(t, []routerconfig.Model{{Name: "default", Endpoint: upstream.URL, IsDefault: true, ModelType: routerconfig.ModelTypeOpenAI}}, nil, nil)
	eng := decision.NewEngine(nil)
	srv := New(Config{RequestTimeout: 5 * time.Second}, router, eng, nil)

	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("X-Custom", "value123")
	rec := httptest.NewRecorder()

	srv.handle(rec, req)
	assert.Equal(t, "value123", gotHeader)
}
