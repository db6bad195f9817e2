package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

// GoogleSearcher implements ports.ImageSearcher on the Custom Search JSON API.
type GoogleSearcher struct {
	endpoint     string
	apiKey       string
	engineID     string
	keyword      string
	pageFallback bool
	client       *http.Client
	logger       *slog.Logger
}

var _ ports.ImageSearcher = (*GoogleSearcher)(nil)

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	Link    string `json:"link"`
	Pagemap struct {
		CSEImage []struct {
			Src string `json:"src"`
		} `json:"cse_image"`
	} `json:"pagemap"`
}

// NewGoogleSearcher wires an HTTP client; a nil client gets the configured timeout.
func NewGoogleSearcher(cfg config.SearchConfig, client *http.Client, logger *slog.Logger) *GoogleSearcher {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleSearcher{
		endpoint:     cfg.Endpoint,
		apiKey:       cfg.APIKey,
		engineID:     cfg.EngineID,
		keyword:      cfg.Keyword,
		pageFallback: cfg.PageFallback,
		client:       client,
		logger:       logger,
	}
}

// Search queries the keyword and collects every cse_image src across all items.
// On failure the slice is empty and the error is a *domain.Failure.
func (g *GoogleSearcher) Search(ctx context.Context) ([]domain.ImageLocation, error) {
	g.logger.Info("searching image urls", "keyword", g.keyword)

	reqURL, err := g.buildURL()
	if err != nil {
		return nil, domain.Fail(domain.StageDiscovery, domain.ReasonTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.Fail(domain.StageDiscovery, domain.ReasonTransport, fmt.Errorf("build request: %w", err))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, domain.Fail(domain.StageDiscovery, domain.ReasonTransport, fmt.Errorf("request search: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, domain.Fail(domain.StageDiscovery, domain.ReasonStatus, fmt.Errorf("search returned %s", resp.Status))
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.Fail(domain.StageDiscovery, domain.ReasonDecode, fmt.Errorf("decode search response: %w", err))
	}

	g.logger.Info("search items found", "count", len(payload.Items))

	var out []domain.ImageLocation
	for _, item := range payload.Items {
		found := 0
		for _, img := range item.Pagemap.CSEImage {
			if src := strings.TrimSpace(img.Src); src != "" {
				out = append(out, domain.ImageLocation(src))
				found++
			}
		}
		if found > 0 || !g.pageFallback || item.Link == "" {
			continue
		}

		src, err := g.pageImage(ctx, item.Link)
		if err != nil {
			g.logger.Debug("page image fallback failed", "link", item.Link, "error", err)
			continue
		}
		out = append(out, domain.ImageLocation(src))
	}

	g.logger.Info("image urls extracted", "count", len(out))
	return out, nil
}

func (g *GoogleSearcher) buildURL() (string, error) {
	parsed, err := url.Parse(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid search endpoint %s: %w", g.endpoint, err)
	}

	query := parsed.Query()
	query.Set("key", g.apiKey)
	query.Set("cx", g.engineID)
	query.Set("q", g.keyword)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
