// Package pipeline sequences one dictation session end to end:
// capture, resample, transcribe.
//
// The two-phase split between PrepareForTranscription and TranscribePrepared
// is the load-bearing liveness property. Prepare is cheap (proportional to
// audio length) and may run while the caller holds a lock shared with the
// capture path; TranscribePrepared blocks for seconds of CPU-bound inference
// and must run with no such lock held. Nothing in the type system enforces
// this; callers that share state with a live capture session must release
// their lock between the two calls.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/murmurvoice/murmur/internal/fault"
	"github.com/murmurvoice/murmur/internal/resample"
	"github.com/murmurvoice/murmur/internal/whisper"
)

// TargetSampleRate is the rate the transcription engine requires, in Hz.
const TargetSampleRate = whisper.SampleRate

// Capturer is the capture seam; satisfied by audio.Capturer.
type Capturer interface {
	Start() error
	Stop() ([]float32, error)
	SampleRate() uint32
}

// Resampler converts one batch of samples to the target rate.
type Resampler interface {
	Resample(samples []float32) ([]float32, error)
}

// Pipeline owns one capturer, one lazily constructed resampler, and one
// transcription engine. It is not safe for concurrent use; callers serialize
// sessions themselves.
type Pipeline struct {
	capturer  Capturer
	engine    whisper.Engine
	resampler Resampler
	logger    *zap.Logger

	newResampler func(inputRate uint32) (Resampler, error)
}

// New assembles a pipeline around an existing capturer and engine.
func New(capturer Capturer, engine whisper.Engine, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		capturer: capturer,
		engine:   engine,
		logger:   logger,
		newResampler: func(inputRate uint32) (Resampler, error) {
			return resample.New(inputRate, TargetSampleRate, logger)
		},
	}
}

// StartRecording configures resampling for the capture rate and opens the
// stream.
func (p *Pipeline) StartRecording() error {
	rate := p.capturer.SampleRate()

	if rate != TargetSampleRate {
		r, err := p.newResampler(rate)
		if err != nil {
			return err
		}
		p.resampler = r
		p.logger.Debug("resampler configured",
			zap.Uint32("input_rate", rate),
			zap.Uint32("output_rate", TargetSampleRate))
	} else {
		p.resampler = nil
	}

	if err := p.capturer.Start(); err != nil {
		return err
	}

	p.logger.Info("recording started", zap.Uint32("sample_rate", rate))
	return nil
}

// StopRecordingRaw stops capture and returns the raw samples.
func (p *Pipeline) StopRecordingRaw() ([]float32, error) {
	samples, err := p.capturer.Stop()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fault.New(fault.ErrNoAudio, "")
	}

	p.logger.Info("recording stopped", zap.Int("sample_count", len(samples)))
	return samples, nil
}

// PrepareForTranscription converts raw samples to the target rate. When no
// conversion is needed the input slice is returned as-is (zero-copy); the
// caller must treat the result as borrowed in that case. Safe to call while
// holding an externally shared lock.
func (p *Pipeline) PrepareForTranscription(samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, fault.New(fault.ErrNoAudio, "")
	}

	if p.resampler == nil {
		return samples, nil
	}

	prepared, err := p.resampler.Resample(samples)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("audio prepared",
		zap.Int("raw_len", len(samples)),
		zap.Int("prepared_len", len(prepared)))
	return prepared, nil
}

// TranscribePrepared runs inference over prepared samples. CPU-bound and
// blocking for seconds; must not run while any lock shared with the capture
// path is held.
func (p *Pipeline) TranscribePrepared(prepared []float32) (string, error) {
	if len(prepared) == 0 {
		return "", fault.New(fault.ErrNoAudio, "")
	}

	started := time.Now()
	transcript, err := p.engine.Transcribe(prepared)
	if err != nil {
		return "", err
	}

	p.logger.Info("transcription complete",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("text_len", len(transcript)))
	return transcript, nil
}

// TranscribeSamples prepares and transcribes in one call. Single-threaded
// convenience; do not use while holding a lock shared with the capture path.
func (p *Pipeline) TranscribeSamples(samples []float32) (string, error) {
	prepared, err := p.PrepareForTranscription(samples)
	if err != nil {
		return "", err
	}
	return p.TranscribePrepared(prepared)
}

// StopRecording stops capture, prepares, and transcribes in one call.
// Single-threaded convenience with the same caveat as TranscribeSamples.
func (p *Pipeline) StopRecording() (string, error) {
	samples, err := p.StopRecordingRaw()
	if err != nil {
		return "", err
	}
	return p.TranscribeSamples(samples)
}

// Close releases the engine.
func (p *Pipeline) Close() error {
	if p.engine == nil {
		return nil
	}
	if err := p.engine.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}
