package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

// Item outcomes reported to the observer.
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Batch outcomes.
const (
	BatchCompleted = "completed"
	BatchEmpty     = "empty"
	BatchHalted    = "halted"
	BatchCancelled = "cancelled"
)

// Policy holds reconnect and pacing settings for a batch run.
type Policy struct {
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ItemDelay         time.Duration
	RecordSourceURL   bool
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Searcher   ports.ImageSearcher
	Recognizer ports.TextRecognizer
	Extractor  ports.FieldExtractor
	Connector  ports.StoreConnector
	Notifier   ports.Notifier
	Observer   ports.BatchObserver
	Logger     *slog.Logger
	Policy     Policy
	Sleep      func(context.Context, time.Duration) error
}

// BatchReport summarises one batch run.
type BatchReport struct {
	Started    time.Time
	Duration   time.Duration
	Discovered int
	Attempted  int
	Inserted   int
	Skipped    int
	Failed     int
	Outcome    string
}

// Pipeline implements the discovery, OCR, extraction and persistence workflow.
type Pipeline struct {
	searcher   ports.ImageSearcher
	recognizer ports.TextRecognizer
	extractor  ports.FieldExtractor
	connector  ports.StoreConnector
	notifier   ports.Notifier
	observer   ports.BatchObserver
	logger     *slog.Logger
	policy     Policy
	sleep      func(context.Context, time.Duration) error
	now        func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	policy := deps.Policy
	if policy.ReconnectAttempts < 1 {
		policy.ReconnectAttempts = 3
	}
	return &Pipeline{
		searcher:   deps.Searcher,
		recognizer: deps.Recognizer,
		extractor:  deps.Extractor,
		connector:  deps.Connector,
		notifier:   deps.Notifier,
		observer:   deps.Observer,
		logger:     logger,
		policy:     policy,
		sleep:      sleep,
		now:        time.Now,
	}
}

// errHalt stops the item loop; rows written before it stay committed.
var errHalt = errors.New("batch halted")

// RunBatch performs one pass over every discovered image.
// The returned error is non-nil only when the batch was halted or cancelled.
func (p *Pipeline) RunBatch(ctx context.Context) (BatchReport, error) {
	report := BatchReport{Started: p.now()}
	err := p.runBatch(ctx, &report)
	report.Duration = p.now().Sub(report.Started)

	switch {
	case err == nil && report.Discovered == 0:
		report.Outcome = BatchEmpty
	case err == nil:
		report.Outcome = BatchCompleted
	case ctx.Err() != nil:
		report.Outcome = BatchCancelled
	default:
		report.Outcome = BatchHalted
	}

	p.logger.Info("batch finished",
		"outcome", report.Outcome,
		"discovered", report.Discovered,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration)
	if p.observer != nil {
		p.observer.BatchFinished(report.Outcome, report.Duration)
	}
	p.notify(ctx, report)
	return report, err
}

func (p *Pipeline) runBatch(ctx context.Context, report *BatchReport) error {
	if p.searcher == nil {
		return nil
	}

	locations, err := p.searcher.Search(ctx)
	if err != nil {
		p.stepFailed(err, "")
	}
	report.Discovered = len(locations)
	p.logger.Info("images discovered", "count", len(locations))
	if len(locations) == 0 || p.connector == nil {
		return nil
	}

	store, err := p.connector.Connect(ctx)
	if err != nil {
		p.stepFailed(err, "")
		return fmt.Errorf("%w: %w", errHalt, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			p.logger.Warn("close store", "error", cerr)
		}
	}()

	for i, loc := range locations {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !store.Connected(ctx) {
			p.logger.Warn("database connection lost", "index", i)
			if err := store.Reconnect(ctx, p.policy.ReconnectAttempts, p.policy.ReconnectDelay); err != nil {
				p.stepFailed(err, loc)
				return fmt.Errorf("%w at item %d: %w", errHalt, i, err)
			}
		}

		report.Attempted++
		outcome := p.processItem(ctx, store, i, loc)
		switch outcome {
		case OutcomeInserted:
			report.Inserted++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		if p.observer != nil {
			p.observer.ItemProcessed(outcome)
		}

		if err := p.sleep(ctx, p.policy.ItemDelay); err != nil {
			return err
		}
	}
	return nil
}

// processItem runs OCR, extraction and insert for a single image.
// A panic inside any step is recovered and counted as a failed item.
func (p *Pipeline) processItem(ctx context.Context, store ports.CompetitionStore, index int, loc domain.ImageLocation) (outcome string) {
	logger := p.logger.With("index", index, "url", string(loc))

	defer func() {
		if r := recover(); r != nil {
			p.stepFailed(domain.Fail(domain.StageItem, domain.ReasonPanic, fmt.Errorf("%v", r)), loc)
			outcome = OutcomeFailed
		}
	}()

	text, err := p.recognizer.Recognize(ctx, loc)
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = domain.Fail(domain.StageOCR, domain.ReasonNoText, errors.New("empty text"))
		}
		p.stepFailed(err, loc)
		return OutcomeSkipped
	}
	logger.Debug("ocr text", "text", text)

	record, err := p.extractor.Extract(ctx, text)
	if err != nil || record.Empty() {
		if err == nil {
			err = domain.Fail(domain.StageInference, domain.ReasonEmptyRecord, errors.New("empty record"))
		}
		p.stepFailed(err, loc)
		return OutcomeSkipped
	}

	row := domain.Row{Record: record}
	if p.policy.RecordSourceURL {
		src := string(loc)
		row.SourceURL = &src
	}
	if err := store.Insert(ctx, row); err != nil {
		p.stepFailed(err, loc)
		return OutcomeFailed
	}

	logger.Info("competition stored", "title", record[domain.FieldTitle])
	return OutcomeInserted
}

func (p *Pipeline) stepFailed(err error, loc domain.ImageLocation) {
	stage, reason := domain.StageOf(err), domain.ReasonOf(err)
	attrs := []any{"stage", stage, "reason", reason, "error", err}
	if loc != "" {
		attrs = append(attrs, "url", string(loc))
	}
	p.logger.Warn("step failed", attrs...)
	if p.observer != nil {
		p.observer.StepFailed(stage, reason)
	}
}

func (p *Pipeline) notify(ctx context.Context, report BatchReport) {
	if p.notifier == nil || report.Discovered == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(report)); err != nil {
		p.logger.Warn("publish digest", "error", err)
	}
}

func buildDigestMessage(report BatchReport) string {
	return fmt.Sprintf("*Competition scan %s*\nDiscovered: %d\nInserted: %d\nSkipped: %d\nFailed: %d\nDuration: %s",
		report.Outcome,
		report.Discovered,
		report.Inserted,
		report.Skipped,
		report.Failed,
		report.Duration.Round(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
