package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/logging"
)

type fakeWatsonx struct {
	tokenCalls      atomic.Int32
	generationCalls atomic.Int32
	reply           string
	status          int
}

func (f *fakeWatsonx) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/identity/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != apiKeyGrant || r.PostForm.Get("apikey") != "api-key" {
			t.Errorf("unexpected token form: %v", r.PostForm)
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	})
	mux.HandleFunc(generationPath, func(w http.ResponseWriter, r *http.Request) {
		f.generationCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("missing bearer token: %q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("version") != "2023-05-29" {
			t.Errorf("unexpected version: %s", r.URL.RawQuery)
		}
		var req generationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		p := req.Parameters
		if p.DecodingMethod != "greedy" || p.MinNewTokens != 1 || p.MaxNewTokens != 1000 {
			t.Errorf("unexpected parameters: %+v", p)
		}
		if len(p.StopSequences) != 1 || p.StopSequences[0] != "<|endoftext|>" {
			t.Errorf("unexpected stop sequences: %v", p.StopSequences)
		}
		if req.ModelID != "mistralai/mistral-large" || req.ProjectID != "project-1" || req.Input != "prompt" {
			t.Errorf("unexpected request: %+v", req)
		}
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"errors":[{"code":"rate_limit"}]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"generated_text": f.reply, "stop_reason": "eos_token"}},
		})
	})
	return mux
}

func newTestClient(serverURL string) *WatsonxClient {
	cfg := config.Default().Inference
	cfg.URL = serverURL
	cfg.IAMEndpoint = serverURL + "/identity/token"
	cfg.APIKey = "api-key"
	cfg.ProjectID = "project-1"
	cfg.Timeout = time.Second
	return NewWatsonxClient(cfg, logging.Discard())
}

func TestGenerateReturnsFirstResultAndCachesToken(t *testing.T) {
	t.Parallel()

	fake := &fakeWatsonx{reply: "```json\n{}\n```"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	for i := 0; i < 2; i++ {
		out, err := client.Generate(context.Background(), "prompt")
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if out != fake.reply {
			t.Fatalf("unexpected reply: %q", out)
		}
	}

	if fake.tokenCalls.Load() != 1 {
		t.Fatalf("expected token to be cached, got %d token calls", fake.tokenCalls.Load())
	}
	if fake.generationCalls.Load() != 2 {
		t.Fatalf("expected 2 generation calls, got %d", fake.generationCalls.Load())
	}
}

func TestGenerateRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	fake := &fakeWatsonx{reply: "ok"}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	client := newTestClient(server.URL)
	now := time.Now()
	client.now = func() time.Time { return now }

	if _, err := client.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := client.Generate(context.Background(), "prompt"); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if fake.tokenCalls.Load() != 2 {
		t.Fatalf("expected token refresh, got %d token calls", fake.tokenCalls.Load())
	}
}

func TestGenerateFailuresAreTagged(t *testing.T) {
	t.Parallel()

	fake := &fakeWatsonx{status: http.StatusTooManyRequests}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	out, err := newTestClient(server.URL).Generate(context.Background(), "prompt")
	if out != "" || domain.ReasonOf(err) != domain.ReasonStatus || domain.StageOf(err) != domain.StageInference {
		t.Fatalf("expected status failure, got %q / %v", out, err)
	}

	misconfigured := newTestClient(server.URL)
	misconfigured.apiKey = ""
	if _, err := misconfigured.Generate(context.Background(), "prompt"); domain.ReasonOf(err) != domain.ReasonTransport {
		t.Fatalf("expected transport failure for misconfigured client, got %v", err)
	}
}
