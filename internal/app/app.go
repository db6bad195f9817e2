package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"CompetitionScanner/internal/config"
	"CompetitionScanner/internal/extract"
	"CompetitionScanner/internal/infrastructure/llm"
	"CompetitionScanner/internal/infrastructure/metrics"
	"CompetitionScanner/internal/infrastructure/ocr"
	"CompetitionScanner/internal/infrastructure/scheduler"
	"CompetitionScanner/internal/infrastructure/search"
	"CompetitionScanner/internal/infrastructure/storage"
	"CompetitionScanner/internal/infrastructure/telegram"
	"CompetitionScanner/internal/logging"
	"CompetitionScanner/internal/ports"
	"CompetitionScanner/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	observer  *metrics.Observer
	driver    *scheduler.IntervalScheduler
	scheduler *usecase.Scheduler
}

// New builds the adapters and the batch pipeline from cfg.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	connector, err := storage.NewConnector(cfg.Database, baseLogger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var auditor *extract.LabelAuditor
	if cfg.Extraction.AuditLabels {
		auditor, err = extract.NewLabelAuditor()
		if err != nil {
			return nil, fmt.Errorf("label audit schema: %w", err)
		}
	}

	generator := llm.NewWatsonxClient(cfg.Inference, baseLogger.With("component", "llm.watsonx"))
	observer := metrics.NewObserver()

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram); tg.Enabled() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Searcher:   search.NewGoogleSearcher(cfg.Search, nil, baseLogger.With("component", "search.google")),
		Recognizer: ocr.NewClovaClient(cfg.OCR, baseLogger.With("component", "ocr.clova")),
		Extractor:  extract.NewExtractor(generator, auditor, baseLogger.With("component", "extract")),
		Connector:  connector,
		Notifier:   notifier,
		Observer:   observer,
		Logger:     baseLogger.With("component", "pipeline"),
		Policy: usecase.Policy{
			ReconnectAttempts: cfg.Database.ReconnectAttempts,
			ReconnectDelay:    cfg.Database.ReconnectDelay,
			ItemDelay:         cfg.Pipeline.ItemDelay,
			RecordSourceURL:   cfg.Database.RecordSourceURL,
		},
	})

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, baseLogger.With("component", "scheduler"))
	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		observer:  observer,
		driver:    driver,
		scheduler: usecase.NewScheduler(driver, pipeline),
	}, nil
}

// Run repeats the batch every scheduler interval until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.cfg.Metrics.Addr, a.observer, a.logger.With("component", "metrics")); err != nil {
				a.logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	a.logger.Info("competition scanner started", "interval", a.cfg.Scheduler.Interval, "keyword", a.cfg.Search.Keyword)
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.driver.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	a.logger.Info("competition scanner stopped")
	return nil
}

// RunOnce performs a single batch run.
func (a *Application) RunOnce(ctx context.Context) (usecase.BatchReport, error) {
	return a.scheduler.RunOnce(ctx)
}
