package whisper

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	whispercpp "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"go.uber.org/zap"

	"github.com/murmurvoice/murmur/internal/fault"
)

// SampleRate is the sample rate whisper models expect, in Hz.
const SampleRate = 16000

// Context is an Engine backed by an in-process whisper.cpp model.
type Context struct {
	model    whispercpp.Model
	language string
	logger   *zap.Logger
}

var _ Engine = (*Context)(nil)

// New loads the model at modelPath. It fails with fault.ErrModelNotFound
// before any engine state is created when the file does not exist.
func New(modelPath, language string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fault.Wrap(fault.ErrModelNotFound, err, "%s", modelPath)
	}

	model, err := whispercpp.New(modelPath)
	if err != nil {
		return nil, fault.Wrap(fault.ErrTranscription, err, "load model %s", modelPath)
	}

	logger.Info("whisper model loaded", zap.String("model_path", modelPath))

	return &Context{
		model:    model,
		language: strings.TrimSpace(strings.ToLower(language)),
		logger:   logger,
	}, nil
}

// Transcribe runs inference over the samples and returns the recognized
// segments joined by single spaces, trimmed. Blocking and CPU-bound.
func (c *Context) Transcribe(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", fault.New(fault.ErrNoAudio, "")
	}

	ctx, err := c.model.NewContext()
	if err != nil {
		return "", fault.Wrap(fault.ErrTranscription, err, "create decode state")
	}

	if c.language != "" && c.language != "auto" {
		if err := ctx.SetLanguage(c.language); err != nil {
			return "", fault.Wrap(fault.ErrTranscription, err, "set language %q", c.language)
		}
	}

	started := time.Now()
	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fault.Wrap(fault.ErrTranscription, err, "decode %d samples", len(samples))
	}

	var parts []string
	for {
		segment, err := ctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fault.Wrap(fault.ErrTranscription, err, "read segment %d", len(parts))
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	transcript := strings.TrimSpace(strings.Join(parts, " "))

	c.logger.Debug("transcription complete",
		zap.Int("sample_count", len(samples)),
		zap.Int("segment_count", len(parts)),
		zap.Int("text_len", len(transcript)),
		zap.Duration("elapsed", time.Since(started)))

	return transcript, nil
}

// Close releases the model.
func (c *Context) Close() error {
	if c.model == nil {
		return nil
	}
	err := c.model.Close()
	c.model = nil
	return err
}
