package audio

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// errUnsupportedWAV marks WAV files the native decoder does not handle
// (float or 8-bit samples); they go through ffmpeg instead.
var errUnsupportedWAV = errors.New("unsupported wav encoding")

// DecodeWAV reads integer PCM from a RIFF/WAVE stream.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format tag %d", errUnsupportedWAV, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit", errUnsupportedWAV, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	channels := int(d.NumChans)
	if channels <= 0 {
		return nil, errors.New("wav file declares no channels")
	}
	data := buf.Data
	if rem := len(data) % channels; rem != 0 {
		data = data[:len(data)-rem]
	}
	return &PCM{
		Data:       data,
		Channels:   channels,
		SampleRate: int(d.SampleRate),
		BitDepth:   int(d.BitDepth),
	}, nil
}

// EncodeWAV writes p as a PCM WAV file.
func EncodeWAV(w io.WriteSeeker, p *PCM) error {
	enc := wav.NewEncoder(w, p.SampleRate, p.BitDepth, p.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: p.Channels,
			SampleRate:  p.SampleRate,
		},
		Data:           p.Data,
		SourceBitDepth: p.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
