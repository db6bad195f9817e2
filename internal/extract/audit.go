package extract

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"CompetitionScanner/internal/domain"
)

const auditSchemaURL = "competition-record.json"

// LabelAuditor checks record values against the allowed label sets.
// It only reports; records are never rejected.
type LabelAuditor struct {
	schema *jsonschema.Schema
}

// NewLabelAuditor compiles a JSON Schema with one enum per labelled field.
func NewLabelAuditor() (*LabelAuditor, error) {
	props := map[string]any{}
	for _, f := range domain.Fields {
		prop := map[string]any{"type": "string"}
		if labels := f.Labels(); len(labels) > 0 {
			prop["enum"] = labels
		}
		props[string(f)] = prop
	}

	raw, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(auditSchemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(auditSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &LabelAuditor{schema: schema}, nil
}

// Audit returns nil when every labelled value is one of the allowed labels.
func (a *LabelAuditor) Audit(rec domain.Record) error {
	doc := make(map[string]any, len(rec))
	for f, v := range rec {
		doc[string(f)] = v
	}
	if err := a.schema.Validate(doc); err != nil {
		return fmt.Errorf("record outside label sets: %w", err)
	}
	return nil
}
