package memo

import "fmt"

// Stage names one of the five sequential pipeline steps.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StageTranscribe Stage = "transcribe"
	StageExtract    Stage = "extract"
	StageValidate   Stage = "validate"
	StagePersist    Stage = "persist"
)

// ErrorKind classifies a pipeline failure. Every stage-local error is
// translated into exactly one kind before it leaves the service; raw
// provider errors never reach the caller.
type ErrorKind string

const (
	KindRetrieval       ErrorKind = "RetrievalError"
	KindTranscription   ErrorKind = "TranscriptionError"
	KindExtraction      ErrorKind = "ExtractionError"
	KindSchemaViolation ErrorKind = "SchemaViolationError"
	KindPersistence     ErrorKind = "PersistenceError"
)

// PipelineError is the terminal failure of one pipeline invocation.
// Message is safe to show to the caller; Err holds the internal cause
// for logging only.
type PipelineError struct {
	Stage   Stage
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (stage %s): %s", e.Kind, e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(stage Stage, kind ErrorKind, message string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: kind, Message: message, Err: err}
}

// SchemaViolation reports that syntactically valid provider output is
// semantically invalid against the memo schema. Field names the first
// offending field.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (v *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation in field %q: %s", v.Field, v.Reason)
}
