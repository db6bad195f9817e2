package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

const secretHeader = "X-OCR-SECRET"

// ClovaClient implements ports.TextRecognizer on the CLOVA OCR general API.
type ClovaClient struct {
	endpoint  string
	secretKey string
	format    string
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.TextRecognizer = (*ClovaClient)(nil)

type ocrRequest struct {
	Version   string     `json:"version"`
	RequestID string     `json:"requestId"`
	Timestamp int64      `json:"timestamp"`
	Images    []ocrImage `json:"images"`
}

type ocrImage struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	URL    string `json:"url"`
}

type ocrResponse struct {
	Images []struct {
		InferResult string `json:"inferResult"`
		Fields      []struct {
			InferText string `json:"inferText"`
		} `json:"fields"`
	} `json:"images"`
}

// NewClovaClient builds a client bounded by cfg.Timeout (30s by default).
func NewClovaClient(cfg config.OCRConfig, logger *slog.Logger) *ClovaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	format := cfg.Format
	if format == "" {
		format = "jpg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClovaClient{
		endpoint:  cfg.Endpoint,
		secretKey: cfg.SecretKey,
		format:    format,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		now:       time.Now,
	}
}

// Recognize returns every inferText of the reply joined by newlines.
// Any failure yields "" together with a *domain.Failure.
func (c *ClovaClient) Recognize(ctx context.Context, loc domain.ImageLocation) (string, error) {
	reqID := uuid.New().String()
	c.logger.Info("calling ocr", "url", string(loc), "req_id", reqID)

	body, err := json.Marshal(ocrRequest{
		Version:   "V2",
		RequestID: reqID,
		Timestamp: c.now().UnixMilli(),
		Images: []ocrImage{
			{Name: "ocr_image", Format: c.format, URL: string(loc)},
		},
	})
	if err != nil {
		return "", domain.Fail(domain.StageOCR, domain.ReasonTransport, fmt.Errorf("marshal ocr payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.Fail(domain.StageOCR, domain.ReasonTransport, fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(secretHeader, c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.Fail(domain.StageOCR, domain.ReasonTransport, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.Fail(domain.StageOCR, domain.ReasonStatus,
			fmt.Errorf("ocr error %s: %s", resp.Status, strings.TrimSpace(string(payload))))
	}

	var result ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", domain.Fail(domain.StageOCR, domain.ReasonDecode, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Images) == 0 {
		return "", domain.Fail(domain.StageOCR, domain.ReasonNoText, fmt.Errorf("no images in ocr response"))
	}

	var lines []string
	for _, img := range result.Images {
		for _, field := range img.Fields {
			if field.InferText != "" {
				lines = append(lines, field.InferText)
			}
		}
	}
	if len(lines) == 0 {
		return "", domain.Fail(domain.StageOCR, domain.ReasonNoText,
			fmt.Errorf("no fields in ocr result (%s)", result.Images[0].InferResult))
	}

	c.logger.Debug("ocr extraction complete", "req_id", reqID, "lines", len(lines))
	return strings.Join(lines, "\n"), nil
}
