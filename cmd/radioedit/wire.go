package main

import (
	"go.uber.org/zap"

	"github.com/yirzhou/radioedit"
	"github.com/yirzhou/radioedit/audio"
	"github.com/yirzhou/radioedit/config"
)

// components is everything a command needs to run jobs.
type components struct {
	service *radioedit.Service
	inbox   *radioedit.Inbox
	jingles *audio.JingleLibrary
}

func buildComponents(cfg *config.Config, log *zap.Logger) (*components, error) {
	var jingles *audio.JingleLibrary
	if cfg.Jingles.Seed != 0 {
		jingles = audio.NewSeededJingleLibrary(cfg.Dirs.Jingles, cfg.Jingles.Seed)
	} else {
		jingles = audio.NewJingleLibrary(cfg.Dirs.Jingles, nil)
	}

	pipeline := audio.NewPipeline(audio.Options{
		InputsDir:  cfg.Dirs.Inputs,
		OutputsDir: cfg.Dirs.Outputs,
		Format:     cfg.Output.Format,
		Bitrate:    cfg.Output.Bitrate,
		Headroom:   cfg.Output.Headroom,
		Codec:      audio.NewCodec(audio.NewFFmpeg(cfg.FFmpeg.Path)),
		Jingles:    jingles,
		Logger:     log.Named("pipeline"),
	})

	svc, err := radioedit.NewService(radioedit.Options{
		Workers:    cfg.Workers,
		StateDir:   cfg.Dirs.State,
		OutputsDir: cfg.Dirs.Outputs,
		Logger:     log,
	}, radioedit.NewAudioProcessor(pipeline, cfg.Dirs.Outputs))
	if err != nil {
		return nil, err
	}

	return &components{
		service: svc,
		inbox:   radioedit.NewInbox(cfg.Dirs.Inputs),
		jingles: jingles,
	}, nil
}
