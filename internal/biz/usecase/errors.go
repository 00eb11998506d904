package usecase

import "errors"

var (
	// ErrEmptyResponse is returned when the oracle produced no text
	ErrEmptyResponse = errors.New("empty oracle response")
	// ErrInvalidClassification is returned when decoded output is missing or mistypes a field
	ErrInvalidClassification = errors.New("invalid classification")
	// ErrRepairFailed is returned when no repair strategy produced valid JSON
	ErrRepairFailed = errors.New("json repair failed")
	// ErrNoOracle is returned by operations that need a model when none is configured
	ErrNoOracle = errors.New("oracle not configured")
	// ErrEmptyTranscript is returned when a summary is requested over no messages
	ErrEmptyTranscript = errors.New("empty transcript")
)
