package ports

import (
	"context"
	"time"

	"CompetitionScanner/internal/domain"
)

// ImageSearcher discovers poster images for the configured keyword.
type ImageSearcher interface {
	Search(ctx context.Context) ([]domain.ImageLocation, error)
}

// TextRecognizer runs OCR on a single image.
type TextRecognizer interface {
	Recognize(ctx context.Context, loc domain.ImageLocation) (string, error)
}

// Generator sends a prompt to the language model and returns its raw reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FieldExtractor turns OCR text into a structured record.
type FieldExtractor interface {
	Extract(ctx context.Context, text string) (domain.Record, error)
}

// CompetitionStore is a batch-scoped database session.
type CompetitionStore interface {
	Connected(ctx context.Context) bool
	Reconnect(ctx context.Context, attempts int, delay time.Duration) error
	Insert(ctx context.Context, row domain.Row) error
	Close() error
}

// StoreConnector opens a store at the start of each batch run.
type StoreConnector interface {
	Connect(ctx context.Context) (CompetitionStore, error)
}

// Notifier publishes a batch summary to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// BatchObserver records per-item and per-batch outcomes.
type BatchObserver interface {
	ItemProcessed(outcome string)
	StepFailed(stage domain.Stage, reason domain.Reason)
	BatchFinished(outcome string, duration time.Duration)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
