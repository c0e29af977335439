package domain

import "fmt"

// FailureKind tags every way a calculation request can fail. Each stage of
// the orchestration returns exactly one kind; the HTTP layer maps kinds to
// status codes without inspecting stage internals.
type FailureKind string

const (
	// Authentication failures.
	KindUnauthenticated   FailureKind = "unauthenticated"
	KindInvalidCredential FailureKind = "invalid_credential"

	// Engine invocation failures.
	KindEngineTimeout         FailureKind = "engine_timeout"
	KindEngineExecutionFailed FailureKind = "engine_execution_failed"
	KindEngineEmptyOutput     FailureKind = "engine_empty_output"

	// Normalization failures.
	KindMalformedOutput     FailureKind = "malformed_output"
	KindEngineReportedError FailureKind = "engine_reported_error"
	KindIncompleteResult    FailureKind = "incomplete_result"

	// Storage failures.
	KindPersistenceFailure FailureKind = "persistence_failure"
)

// Failure is the tagged error carried between orchestration stages. Raw
// holds the engine's output or error stream when one exists, so failures
// stay diagnosable without re-running the computation. Failure never carries
// credential material.
type Failure struct {
	Kind   FailureKind
	Detail string
	Raw    []byte
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// NewFailure creates a Failure without diagnostic payload.
func NewFailure(kind FailureKind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// NewFailureRaw creates a Failure carrying raw diagnostic bytes.
func NewFailureRaw(kind FailureKind, detail string, raw []byte) *Failure {
	return &Failure{Kind: kind, Detail: detail, Raw: raw}
}
