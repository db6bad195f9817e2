package domain

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step that produced a failure.
type Stage string

const (
	StageDiscovery   Stage = "discovery"
	StageOCR         Stage = "ocr"
	StageInference   Stage = "inference"
	StagePersistence Stage = "persistence"
	StageItem        Stage = "item"
)

// Reason classifies why a step produced no value.
type Reason string

const (
	ReasonTransport         Reason = "transport"
	ReasonStatus            Reason = "status"
	ReasonDecode            Reason = "decode"
	ReasonNoItems           Reason = "no_items"
	ReasonNoText            Reason = "no_text"
	ReasonNoStructuredReply Reason = "no_structured_reply"
	ReasonEmptyRecord       Reason = "empty_record"
	ReasonConnect           Reason = "connect"
	ReasonReconnect         Reason = "reconnect"
	ReasonWrite             Reason = "write"
	ReasonPanic             Reason = "panic"
	ReasonUnknown           Reason = "unknown"
)

// Failure is a tagged error; callers treat it as an empty result.
type Failure struct {
	Stage  Stage
	Reason Reason
	Err    error
}

// Fail builds a *Failure.
func Fail(stage Stage, reason Reason, err error) error {
	return &Failure{Stage: stage, Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Stage, f.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", f.Stage, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	if err == nil {
		return ""
	}
	return ReasonUnknown
}

// StageOf extracts the failure stage from err.
func StageOf(err error) Stage {
	var f *Failure
	if errors.As(err, &f) {
		return f.Stage
	}
	return StageItem
}
