package radioedit

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/yirzhou/radioedit/audio"
)

// AudioProcessor runs jobs through an audio.Pipeline.
type AudioProcessor struct {
	pipeline   *audio.Pipeline
	outputsDir string
}

// NewAudioProcessor wires a pipeline whose artifacts land in outputsDir.
func NewAudioProcessor(pipeline *audio.Pipeline, outputsDir string) *AudioProcessor {
	return &AudioProcessor{pipeline: pipeline, outputsDir: outputsDir}
}

// Process implements Processor.
func (p *AudioProcessor) Process(ctx context.Context, job Job, token *CancelToken) (string, error) {
	res, err := p.pipeline.Execute(ctx, audio.Request{
		JobID:                job.ID,
		Input:                job.Filename,
		SilenceThresholdDBFS: job.Params.SilenceThresholdDBFS,
		TargetLUFS:           job.Params.TargetLUFS,
		Intro:                job.Params.Jingles.Intro,
		Outro:                job.Params.Jingles.Outro,
	}, token)
	if err != nil {
		return "", err
	}
	return res.OutputName, nil
}

// Discard implements Processor.
func (p *AudioProcessor) Discard(output string) error {
	err := os.Remove(filepath.Join(p.outputsDir, filepath.Base(output)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
