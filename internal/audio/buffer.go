package audio

import "sync"

// MaxBufferSamples caps the capture buffer at 5 minutes of 48kHz mono audio
// (~58MB of float32 samples). Older samples are evicted first once the cap
// is reached, so the most recent audio is always retained.
const MaxBufferSamples = 48_000 * 60 * 5

// Buffer is a bounded FIFO of float32 mono samples shared between the
// real-time capture callback (writer) and the pipeline (drainer).
//
// It is a mutex-guarded circular buffer: appending past capacity overwrites
// the oldest samples, and the writer never blocks on anything other than the
// brief lock acquisition. Appends release the lock via defer, so a panicking
// writer can never leave the lock held or corrupt previously committed
// samples.
type Buffer struct {
	mu   sync.Mutex
	buf  []float32
	head int // next write position
	size int // number of valid samples
}

// NewBuffer creates a Buffer holding at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = MaxBufferSamples
	}
	return &Buffer{buf: make([]float32, capacity)}
}

// Append adds samples, evicting the oldest ones when the bound is exceeded.
func (b *Buffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.buf)
	if len(samples) >= capacity {
		// The batch alone fills the buffer; only its tail survives.
		copy(b.buf, samples[len(samples)-capacity:])
		b.head = 0
		b.size = capacity
		return
	}

	for _, s := range samples {
		b.buf[b.head] = s
		b.head = (b.head + 1) % capacity
	}
	b.size += len(samples)
	if b.size > capacity {
		b.size = capacity
	}
}

// Drain returns all buffered samples in capture order and empties the
// buffer. The returned slice is an owned copy.
func (b *Buffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}

	out := make([]float32, b.size)
	start := (b.head - b.size + len(b.buf)) % len(b.buf)
	n := copy(out, b.buf[start:min(start+b.size, len(b.buf))])
	copy(out[n:], b.buf[:b.size-n])

	b.head = 0
	b.size = 0
	return out
}

// Reset empties the buffer without allocating.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
