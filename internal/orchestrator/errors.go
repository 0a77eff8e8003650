package orchestrator

import "fmt"

// Pipeline stages used to classify failures.
const (
	StageValidation     = "validation"
	StageTranscription  = "transcription"
	StageSynthesis      = "synthesis"
	StageDurationMatch  = "duration_match"
	StageReconstruction = "reconstruction"
	StagePersistence    = "persistence"
)

// PipelineError is a stage-aware error describing where a conversion
// failed.
type PipelineError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

func stageError(stage, message string, err error) *PipelineError {
	return &PipelineError{Stage: stage, Message: message, Err: err}
}
