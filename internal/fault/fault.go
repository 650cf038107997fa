// Package fault defines the error kinds shared across the audio pipeline.
//
// Every error produced by the pipeline carries the call site that created it,
// so a failure deep in a capture/resample/transcribe sequence can be traced
// without a retry loop ever masking it. Kinds are plain sentinel errors, so
// callers match with errors.Is as usual.
package fault

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

var (
	// ErrNoMicrophone indicates no default audio input device is available.
	ErrNoMicrophone = errors.New("no microphone found")

	// ErrDevice indicates an audio device open/configure/stream failure.
	ErrDevice = errors.New("audio device error")

	// ErrModelNotFound indicates the whisper model file does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrTranscription wraps an inference failure from the speech engine.
	ErrTranscription = errors.New("transcription failed")

	// ErrNoAudio indicates empty samples at a stage that requires audio.
	ErrNoAudio = errors.New("no audio captured")

	// ErrResampling indicates a sample rate conversion failure.
	ErrResampling = errors.New("resampling error")
)

// Error attaches a reason, an optional cause, and the originating call site
// to one of the sentinel kinds above.
type Error struct {
	kind   error
	reason string
	cause  error
	file   string
	line   int
}

// New returns an error of the given kind with a formatted reason, recording
// the caller's file and line.
func New(kind error, format string, args ...any) error {
	e := &Error{kind: kind, reason: fmt.Sprintf(format, args...)}
	e.file, e.line = callSite()
	return e
}

// Wrap is New with an underlying cause preserved for errors.Is/As.
func Wrap(kind error, cause error, format string, args ...any) error {
	e := &Error{kind: kind, reason: fmt.Sprintf(format, args...), cause: cause}
	e.file, e.line = callSite()
	return e
}

func (e *Error) Error() string {
	msg := e.kind.Error()
	if e.reason != "" {
		msg += ": " + e.reason
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return fmt.Sprintf("%s (%s:%d)", msg, e.file, e.line)
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

func callSite() (string, int) {
	// Skip callSite and the New/Wrap frame.
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown", 0
	}
	return filepath.Base(file), line
}
