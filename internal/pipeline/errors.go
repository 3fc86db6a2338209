package pipeline

import (
	"errors"
	"fmt"
)

// Error kinds partition pipeline failures by the stage family that produced
// them. The kind is what gets persisted in the record's error column and what
// callers branch on.
const (
	KindExtraction  = "extraction"
	KindAnalysis    = "analysis"
	KindGeneration  = "generation"
	KindPersistence = "persistence"
)

// ErrAlreadyProcessing means another invocation holds the processing lease on
// the record. Handlers map it to 409.
var ErrAlreadyProcessing = errors.New("record is already being processed")

// ErrNotEnoughMembers means a collection operation needs more analyzed
// members than it has.
var ErrNotEnoughMembers = errors.New("collection needs at least 2 members")

// StageError wraps a stage failure with its kind and the specific step that
// failed. The Error() string is what lands in the failed record's error
// column.
type StageError struct {
	Kind  string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s error at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(kind, stage string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Err: err}
}

// ErrKind extracts the stage kind from an error chain, or "" if the error did
// not come from a pipeline stage.
func ErrKind(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
