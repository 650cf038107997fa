// Package resample converts captured audio to the fixed rate the speech
// engine requires, using a streaming chunked converter.
package resample

import (
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
	"go.uber.org/zap"

	"github.com/murmurvoice/murmur/internal/fault"
)

// chunkSize is the fixed number of input samples fed to the converter per
// step. The final short chunk is zero-padded up to this size.
const chunkSize = 1024

// maxFlushChunks bounds the zero-filled chunks fed after the input to pull
// the converter's internal latency out before truncation.
const maxFlushChunks = 64

// Resampler is a stateful streaming sample rate converter for mono float32
// audio. It is constructed once per (input, output) rate pair and is not
// safe for concurrent use.
type Resampler struct {
	conv       resampling.Resampler
	inputRate  uint32
	outputRate uint32
	logger     *zap.Logger
}

// New builds a converter from inputRate to outputRate (Hz, mono).
func New(inputRate, outputRate uint32, logger *zap.Logger) (*Resampler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conv, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrResampling, err, "create converter %d->%d Hz", inputRate, outputRate)
	}

	logger.Debug("resampler initialized",
		zap.Uint32("input_rate", inputRate),
		zap.Uint32("output_rate", outputRate),
		zap.Int("chunk_size", chunkSize))

	return &Resampler{
		conv:       conv,
		inputRate:  inputRate,
		outputRate: outputRate,
		logger:     logger,
	}, nil
}

// Resample converts samples to the output rate. Empty input yields empty
// output without touching the converter.
//
// The input is processed in fixed-size chunks; the final chunk is padded
// with zeros, and the overall output is truncated to the length estimated
// from the exact rate ratio, discarding the padding's trailing contribution.
// Converter latency is flushed with bounded zero chunks before truncation so
// the result stays within tolerance of the estimate.
func (r *Resampler) Resample(samples []float32) ([]float32, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	estimate := int(math.Round(float64(len(samples)) * float64(r.outputRate) / float64(r.inputRate)))
	output := make([]float32, 0, estimate+chunkSize)

	chunk := make([]float64, chunkSize)
	for start := 0; start < len(samples); start += chunkSize {
		end := min(start+chunkSize, len(samples))
		n := end - start
		for i := 0; i < n; i++ {
			chunk[i] = float64(samples[start+i])
		}
		for i := n; i < chunkSize; i++ {
			chunk[i] = 0
		}

		converted, err := r.conv.Process(chunk)
		if err != nil {
			return nil, fault.Wrap(fault.ErrResampling, err, "process chunk at sample %d", start)
		}
		for _, s := range converted {
			output = append(output, float32(s))
		}
	}

	// Pull remaining latency out of the converter until the estimate is
	// covered; padding and flush samples beyond it are discarded below.
	zeros := make([]float64, chunkSize)
	for flush := 0; len(output) < estimate && flush < maxFlushChunks; flush++ {
		converted, err := r.conv.Process(zeros)
		if err != nil {
			return nil, fault.Wrap(fault.ErrResampling, err, "flush converter")
		}
		for _, s := range converted {
			output = append(output, float32(s))
		}
	}

	if len(output) > estimate {
		output = output[:estimate]
	}

	r.logger.Debug("audio resampled",
		zap.Int("input_len", len(samples)),
		zap.Int("output_len", len(output)),
		zap.Uint32("input_rate", r.inputRate),
		zap.Uint32("output_rate", r.outputRate))

	return output, nil
}

// InputRate reports the configured input rate in Hz.
func (r *Resampler) InputRate() uint32 { return r.inputRate }

// OutputRate reports the configured output rate in Hz.
func (r *Resampler) OutputRate() uint32 { return r.outputRate }
