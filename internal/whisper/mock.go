package whisper

import "github.com/murmurvoice/murmur/internal/fault"

// MockEngine is an in-memory Engine for tests and wiring without a model.
type MockEngine struct {
	Transcript string
	Err        error

	Calls       int
	LastSamples []float32
	Closed      bool
}

var _ Engine = (*MockEngine)(nil)

func (m *MockEngine) Transcribe(samples []float32) (string, error) {
	m.Calls++
	m.LastSamples = samples
	if len(samples) == 0 {
		return "", fault.New(fault.ErrNoAudio, "")
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Transcript, nil
}

func (m *MockEngine) Close() error {
	m.Closed = true
	return nil
}
