package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/logging"
)

func newTestClient(endpoint string) *ClovaClient {
	c := NewClovaClient(config.OCRConfig{
		Endpoint:  endpoint,
		SecretKey: "secret-1",
		Timeout:   time.Second,
	}, logging.Discard())
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestRecognizeJoinsFields(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(secretHeader) != "secret-1" {
			t.Errorf("secret header missing: %q", r.Header.Get(secretHeader))
		}
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Version != "V2" || req.Timestamp != 1700000000000 {
			t.Errorf("unexpected request envelope: %+v", req)
		}
		if _, err := uuid.Parse(req.RequestID); err != nil {
			t.Errorf("request id is not a uuid: %s", req.RequestID)
		}
		if len(req.Images) != 1 || req.Images[0].URL != "http://example.com/a.jpg" || req.Images[0].Format != "jpg" {
			t.Errorf("unexpected images: %+v", req.Images)
		}
		_, _ = w.Write([]byte(`{"images":[{"inferResult":"SUCCESS","fields":[
			{"inferText":"Title: X"},{"inferText":""},{"inferText":"Audience: 대학생"}
		]}]}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL).Recognize(context.Background(), "http://example.com/a.jpg")
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	if text != "Title: X\nAudience: 대학생" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRecognizeEmptyResults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		reason domain.Reason
	}{
		{name: "no fields", status: http.StatusOK, body: `{"images":[{"inferResult":"SUCCESS"}]}`, reason: domain.ReasonNoText},
		{name: "no images", status: http.StatusOK, body: `{"images":[]}`, reason: domain.ReasonNoText},
		{name: "non-200", status: http.StatusUnauthorized, body: `{"code":"0002"}`, reason: domain.ReasonStatus},
		{name: "garbage", status: http.StatusOK, body: `<html>`, reason: domain.ReasonDecode},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			text, err := newTestClient(server.URL).Recognize(context.Background(), "http://example.com/a.jpg")
			if text != "" {
				t.Fatalf("expected empty text, got %q", text)
			}
			if domain.ReasonOf(err) != tc.reason || domain.StageOf(err) != domain.StageOCR {
				t.Fatalf("unexpected failure: %v", err)
			}
		})
	}
}

func TestRecognizeTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	text, err := newTestClient(endpoint).Recognize(context.Background(), "http://example.com/a.jpg")
	if text != "" || domain.ReasonOf(err) != domain.ReasonTransport {
		t.Fatalf("expected transport failure, got %q / %v", text, err)
	}
}
