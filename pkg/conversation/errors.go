package conversation

import "fmt"

// PipelineInitError means the pipeline could not be assembled or started;
// the call fails.
type PipelineInitError struct {
	Stage string
	Err   error
}

func (e *PipelineInitError) Error() string {
	return fmt.Sprintf("pipeline init failed at %s: %v", e.Stage, e.Err)
}

func (e *PipelineInitError) Unwrap() error { return e.Err }

// TransientStreamError is a mid-call recognizer, generator or synthesizer
// failure. It is surfaced to the caller of Run without retry.
type TransientStreamError struct {
	Stage string
	Err   error
}

func (e *TransientStreamError) Error() string {
	return fmt.Sprintf("%s stream failed: %v", e.Stage, e.Err)
}

func (e *TransientStreamError) Unwrap() error { return e.Err }

const (
	StageConfig = "config"
	StageSTT    = "stt"
	StageLLM    = "llm"
	StageTTS    = "tts"
	StageMedia  = "media"
)

// stageError tags an error from a speaking task with where it happened
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }
