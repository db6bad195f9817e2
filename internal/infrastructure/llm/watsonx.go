package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

const (
	generationPath = "/ml/v1/text/generation"
	apiKeyGrant    = "urn:ibm:params:oauth:grant-type:apikey"
	tokenLeeway    = time.Minute
)

// WatsonxClient implements ports.Generator backed by watsonx.ai text generation.
type WatsonxClient struct {
	baseURL     string
	iamEndpoint string
	apiKey      string
	projectID   string
	modelID     string
	version     string
	params      generationParams
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ ports.Generator = (*WatsonxClient)(nil)

type generationParams struct {
	DecodingMethod string   `json:"decoding_method"`
	MinNewTokens   int      `json:"min_new_tokens"`
	MaxNewTokens   int      `json:"max_new_tokens"`
	StopSequences  []string `json:"stop_sequences,omitempty"`
}

type generationRequest struct {
	ModelID    string           `json:"model_id"`
	ProjectID  string           `json:"project_id"`
	Input      string           `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
		StopReason    string `json:"stop_reason"`
	} `json:"results"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// NewWatsonxClient builds a client from configuration with greedy decoding.
func NewWatsonxClient(cfg config.InferenceConfig, logger *slog.Logger) *WatsonxClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	params := generationParams{
		DecodingMethod: "greedy",
		MinNewTokens:   cfg.MinNewTokens,
		MaxNewTokens:   cfg.MaxNewTokens,
	}
	if cfg.StopSequence != "" {
		params.StopSequences = []string{cfg.StopSequence}
	}

	return &WatsonxClient{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		iamEndpoint: cfg.IAMEndpoint,
		apiKey:      cfg.APIKey,
		projectID:   cfg.ProjectID,
		modelID:     cfg.ModelID,
		version:     cfg.Version,
		params:      params,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
		now:         time.Now,
	}
}

// Generate sends the prompt and returns the first generated text.
func (c *WatsonxClient) Generate(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("watsonx client is nil"))
	}
	if c.apiKey == "" || c.baseURL == "" || c.projectID == "" {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("watsonx client misconfigured"))
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("iam token: %w", err))
	}

	body, err := json.Marshal(generationRequest{
		ModelID:    c.modelID,
		ProjectID:  c.projectID,
		Input:      prompt,
		Parameters: c.params,
	})
	if err != nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("marshal generation payload: %w", err))
	}

	endpoint := c.baseURL + generationPath + "?version=" + url.QueryEscape(c.version)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("send generation: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusUnauthorized {
			c.resetToken()
		}
		return "", domain.Fail(domain.StageInference, domain.ReasonStatus,
			fmt.Errorf("watsonx error %s: %s", resp.Status, strings.TrimSpace(string(payload))))
	}

	var out generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.Fail(domain.StageInference, domain.ReasonDecode, fmt.Errorf("decode generation: %w", err))
	}
	if len(out.Results) == 0 {
		return "", domain.Fail(domain.StageInference, domain.ReasonDecode, fmt.Errorf("no results in generation response"))
	}

	c.logger.Debug("generation finished",
		"model", c.modelID,
		"stop_reason", out.Results[0].StopReason,
		"elapsed_ms", c.now().Sub(start).Milliseconds(),
	)
	return out.Results[0].GeneratedText, nil
}

func (c *WatsonxClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", apiKeyGrant)
	form.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.iamEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("iam returned %s", resp.Status)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}

	expiry := c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if tok.Expiration > 0 {
		expiry = time.Unix(tok.Expiration, 0)
	}
	c.token = tok.AccessToken
	c.tokenExpiry = expiry.Add(-tokenLeeway)
	return c.token, nil
}

func (c *WatsonxClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
