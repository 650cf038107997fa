package whisper

// Engine turns 16kHz mono samples into recognized text.
//
// Transcribe is synchronous and CPU-bound (seconds for a typical utterance).
// Callers integrating with shared state must not hold a lock shared with the
// capture path across the call; see the pipeline package.
type Engine interface {
	Transcribe(samples []float32) (string, error)
	Close() error
}
