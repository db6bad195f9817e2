package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"CompetitionScanner/internal/domain"
	"CompetitionScanner/internal/ports"
)

// Extractor implements ports.FieldExtractor on top of a text generator.
type Extractor struct {
	generator ports.Generator
	auditor   *LabelAuditor
	logger    *slog.Logger
}

var _ ports.FieldExtractor = (*Extractor)(nil)

// NewExtractor wires the generator; auditor may be nil.
func NewExtractor(generator ports.Generator, auditor *LabelAuditor, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{generator: generator, auditor: auditor, logger: logger}
}

// Extract asks the model for the record fields. Failures return an empty record.
func (e *Extractor) Extract(ctx context.Context, text string) (domain.Record, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Record{}, domain.Fail(domain.StageOCR, domain.ReasonNoText, fmt.Errorf("empty ocr text"))
	}
	if e.generator == nil {
		return domain.Record{}, domain.Fail(domain.StageInference, domain.ReasonTransport, fmt.Errorf("generator is not configured"))
	}

	e.logger.Debug("sending prompt", "text_len", len(text))
	reply, err := e.generator.Generate(ctx, BuildPrompt(text))
	if err != nil {
		return domain.Record{}, err
	}
	e.logger.Debug("model reply", "reply", reply)

	rec, err := ParseReply(reply)
	if err != nil {
		return domain.Record{}, err
	}

	if e.auditor != nil {
		if aErr := e.auditor.Audit(rec); aErr != nil {
			e.logger.Warn("label audit", "error", aErr)
		}
	}
	return rec, nil
}
