package audio

import (
	"errors"
	"fmt"
)

// ErrCanceled is returned when a checkpoint observes a cancel request. It is
// not a failure: callers record the job as canceled.
var ErrCanceled = errors.New("canceled")

// Stage names one step of the mastering pipeline.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageTrim      Stage = "trim"
	StageNormalize Stage = "normalize"
	StageLimit     Stage = "limit"
	StageJingles   Stage = "jingles"
	StageEncode    Stage = "encode"
)

// ConfigurationError reports a job that cannot run with the current setup:
// a missing input file, or a jingle inventory too small for the selection.
type ConfigurationError struct {
	Stage   Stage
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Stage, e.Message)
}

// PipelineError is a stage-aware processing failure: corrupt audio, an
// unsupported format, an I/O or ffmpeg error.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Stage: stage, Err: err}
}
