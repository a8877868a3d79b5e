package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Checkpoint is consulted between stages. Once it reports true the pipeline
// stops and returns ErrCanceled.
type Checkpoint interface {
	Canceled() bool
}

// Options configure a Pipeline.
type Options struct {
	InputsDir  string
	OutputsDir string
	Format     string  // wav, mp3 or flac
	Bitrate    string  // for lossy formats, e.g. "192k"
	Headroom   float64 // peak ceiling in (0, 1]; 1.0 when unset
	Codec      *Codec
	Jingles    *JingleLibrary
	Logger     *zap.Logger

	// OnStage, when set, is called as each stage starts.
	OnStage func(jobID string, stage Stage)
}

// Request is one mastering run.
type Request struct {
	JobID                string
	Input                string // file name inside InputsDir
	SilenceThresholdDBFS float64
	TargetLUFS           float64
	Intro                string // jingle name or RandomJingle
	Outro                string
}

// Result describes what the pipeline did.
type Result struct {
	OutputName    string
	Trim          TrimReport
	Normalization Normalization
	Limit         Limit
	IntroJingle   string
	OutroJingle   string
	Duration      time.Duration
}

// Pipeline is the deterministic mastering chain. It holds no per-job state
// and is safe for concurrent use by several workers.
type Pipeline struct {
	opts   Options
	logger *zap.Logger
}

// NewPipeline fills in defaults for unset options.
func NewPipeline(opts Options) *Pipeline {
	if opts.Codec == nil {
		opts.Codec = NewCodec(nil)
	}
	if opts.Format == "" {
		opts.Format = FormatMP3
	}
	if opts.Bitrate == "" {
		opts.Bitrate = "192k"
	}
	if opts.Headroom <= 0 || opts.Headroom > 1 {
		opts.Headroom = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Jingles == nil {
		opts.Jingles = NewJingleLibrary("jingles", nil)
	}
	return &Pipeline{opts: opts, logger: opts.Logger}
}

// OutputName is the artifact name for a job: the input's base name, the
// "_edited_" marker and the first eight characters of the job id.
func OutputName(input, jobID, format string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_edited_%s%s", base, short, Extension(format))
}

func (p *Pipeline) checkpoint(ctx context.Context, cp Checkpoint) error {
	if cp != nil && cp.Canceled() {
		return ErrCanceled
	}
	return ctx.Err()
}

func (p *Pipeline) stage(req Request, s Stage) {
	if p.opts.OnStage != nil {
		p.opts.OnStage(req.JobID, s)
	}
}

// Execute runs every stage in order, consulting cp before decoding and after
// trim, normalization, limiting and jingle insertion. Nothing is written to
// the outputs directory unless the final encode succeeds.
func (p *Pipeline) Execute(ctx context.Context, req Request, cp Checkpoint) (*Result, error) {
	log := p.logger.With(zap.String("job_id", req.JobID))
	res := &Result{}

	// 1. Decode.
	if err := p.checkpoint(ctx, cp); err != nil {
		return nil, err
	}
	p.stage(req, StageDecode)
	input := filepath.Join(p.opts.InputsDir, filepath.Base(req.Input))
	if _, err := os.Stat(input); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ConfigurationError{Stage: StageDecode, Message: fmt.Sprintf("input file not found: %s", req.Input)}
		}
		return nil, stageErr(StageDecode, err)
	}
	pcm, err := p.opts.Codec.Decode(ctx, input)
	if err != nil {
		return nil, stageErr(StageDecode, err)
	}
	log.Debug("decoded input",
		zap.Int("frames", pcm.Frames()),
		zap.Int("channels", pcm.Channels),
		zap.Int("sample_rate", pcm.SampleRate))

	// 2. Trim silence.
	p.stage(req, StageTrim)
	trimmed, report := TrimSilence(pcm, req.SilenceThresholdDBFS)
	res.Trim = report
	log.Debug("trimmed silence",
		zap.Int("leading_frames", report.Leading),
		zap.Int("trailing_frames", report.Trailing))
	if err := p.checkpoint(ctx, cp); err != nil {
		return nil, err
	}

	// 3. Scale to [-1, 1], measure, apply gain.
	p.stage(req, StageNormalize)
	programme := trimmed.Float()
	res.Normalization = Normalize(programme, req.TargetLUFS)
	if math.IsInf(res.Normalization.MeasuredLUFS, -1) {
		log.Warn("loudness not measurable, gain left unchanged")
	} else {
		log.Info("normalized loudness",
			zap.Float64("measured_lufs", res.Normalization.MeasuredLUFS),
			zap.Float64("target_lufs", req.TargetLUFS),
			zap.Float64("gain_db", res.Normalization.GainDB))
	}
	if err := p.checkpoint(ctx, cp); err != nil {
		return nil, err
	}

	// 4. Peak safety.
	p.stage(req, StageLimit)
	res.Limit = LimitPeak(programme, p.opts.Headroom)
	if res.Limit.Applied {
		log.Warn("peak over ceiling, scaled down",
			zap.Float64("peak", res.Limit.Peak),
			zap.Float64("scale", res.Limit.Scale))
	}
	if err := p.checkpoint(ctx, cp); err != nil {
		return nil, err
	}

	// 5. Jingles.
	p.stage(req, StageJingles)
	final, err := p.addJingles(ctx, programme, req, res)
	if err != nil {
		return nil, err
	}
	log.Info("selected jingles", zap.String("intro", res.IntroJingle), zap.String("outro", res.OutroJingle))
	if err := p.checkpoint(ctx, cp); err != nil {
		return nil, err
	}

	// 6. Encode.
	p.stage(req, StageEncode)
	name := OutputName(req.Input, req.JobID, p.opts.Format)
	if err := p.opts.Codec.Encode(ctx, final, p.opts.OutputsDir, name, p.opts.Format, p.opts.Bitrate); err != nil {
		return nil, stageErr(StageEncode, err)
	}
	res.OutputName = name
	res.Duration = final.Duration()
	log.Info("exported", zap.String("output", name), zap.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) addJingles(ctx context.Context, programme *Buffer, req Request, res *Result) (*Buffer, error) {
	introPath, outroPath, err := p.opts.Jingles.Pick(req.Intro, req.Outro)
	if err != nil {
		return nil, err
	}
	res.IntroJingle = filepath.Base(introPath)
	res.OutroJingle = filepath.Base(outroPath)

	load := func(path string) (*Buffer, error) {
		pcm, err := p.opts.Codec.Decode(ctx, path)
		if err != nil {
			return nil, stageErr(StageJingles, fmt.Errorf("load jingle %s: %w", filepath.Base(path), err))
		}
		clip := Conform(pcm.Float(), programme.Channels, programme.SampleRate)
		LimitPeak(clip, p.opts.Headroom)
		return clip, nil
	}
	intro, err := load(introPath)
	if err != nil {
		return nil, err
	}
	outro, err := load(outroPath)
	if err != nil {
		return nil, err
	}
	return Concat(intro, programme, outro), nil
}
