package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/logging"
)

const modelReply = "아래는 결과입니다.\n```json\n" +
	`{"제목":"X","응시 대상자":"대학생","기간":"전체","분야":"기타","주최사":"기타","시상내역":"기타"}` +
	"\n```\n"

func newServices(t *testing.T) (searchURL, ocrURL, watsonxURL string) {
	t.Helper()

	searchSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"link":"http://example.com/page","pagemap":{"cse_image":[{"src":"http://example.com/a.jpg"}]}}]}`))
	}))
	t.Cleanup(searchSrv.Close)

	ocrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[{"inferResult":"SUCCESS","fields":[{"inferText":"Title: X"},{"inferText":"Audience: 대학생"}]}]}`))
	}))
	t.Cleanup(ocrSrv.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/identity/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/ml/v1/text/generation", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"generated_text": modelReply}},
		})
	})
	watsonxSrv := httptest.NewServer(mux)
	t.Cleanup(watsonxSrv.Close)

	return searchSrv.URL, ocrSrv.URL, watsonxSrv.URL
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	searchURL, ocrURL, watsonxURL := newServices(t)
	cfg := config.Default()
	cfg.Search.Endpoint = searchURL
	cfg.Search.APIKey = "key"
	cfg.Search.EngineID = "cx"
	cfg.OCR.Endpoint = ocrURL
	cfg.OCR.SecretKey = "secret"
	cfg.Inference.URL = watsonxURL
	cfg.Inference.IAMEndpoint = watsonxURL + "/identity/token"
	cfg.Inference.APIKey = "api-key"
	cfg.Inference.ProjectID = "project"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "competition.db")
	cfg.Database.AutoMigrate = true
	cfg.Pipeline.ItemDelay = time.Millisecond
	return cfg
}

func TestRunOnceStoresOneRowPerImage(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid: %v", err)
	}
	application, err := New(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	report, err := application.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if report.Discovered != 1 || report.Inserted != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	db, err := sql.Open("sqlite", cfg.Database.DSN)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var (
		title, target, period, category, org, award string
		url                                         sql.NullString
		count                                       int
	)
	if err := db.QueryRow(`SELECT COUNT(*) FROM competition`).Scan(&count); err != nil || count != 1 {
		t.Fatalf("expected exactly one row, got %d (%v)", count, err)
	}
	err = db.QueryRow(`SELECT title, target, period, category, org, award, url FROM competition`).
		Scan(&title, &target, &period, &category, &org, &award, &url)
	if err != nil {
		t.Fatalf("select row: %v", err)
	}
	if title != "X" || target != "대학생" || period != "전체" || category != "기타" || org != "기타" || award != "기타" {
		t.Fatalf("unexpected row: %s %s %s %s %s %s", title, target, period, category, org, award)
	}
	if url.Valid {
		t.Fatalf("url must be NULL, got %q", url.String)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scheduler.Interval = time.Hour
	application, err := New(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Database.Driver = "mysql"
	if _, err := New(cfg, logging.Discard()); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
