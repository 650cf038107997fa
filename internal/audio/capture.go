package audio

import (
	"encoding/binary"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/murmurvoice/murmur/internal/fault"
)

// stopGrace gives a final in-flight capture callback time to observe the
// shutdown flag after the device has been torn down. Teardown is synchronous
// on most miniaudio backends, so this is defense-in-depth, not load-bearing.
const stopGrace = 5 * time.Millisecond

// Config selects the capture device and requested stream parameters.
type Config struct {
	// SampleRate requested from the device; 0 means 48000.
	SampleRate uint32
	// DeviceName selects a capture device by (substring) name; empty means
	// the default input device.
	DeviceName string
	Logger     *zap.Logger
}

// Device describes one capture device for diagnostics listings.
type Device struct {
	Name    string
	Default bool
}

// Capturer owns the microphone stream and the bounded sample buffer.
//
// Thread affinity: the miniaudio callback thread only appends to the buffer
// (fast path, shutdown-fenced); the owning goroutine starts/stops the stream
// and drains. The shutdown flag is checked by the callback before the buffer
// lock is ever touched, so a stop request fences further writes without
// contending for the lock.
type Capturer struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	buf      *Buffer
	shutdown atomic.Bool

	sampleRate uint32
	deviceName string
	logger     *zap.Logger
}

// NewCapturer initializes the audio backend and verifies that at least one
// capture device exists.
func NewCapturer(cfg Config) (*Capturer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rate := cfg.SampleRate
	if rate == 0 {
		rate = 48_000
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("miniaudio", zap.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrDevice, err, "initialize audio backend")
	}

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fault.Wrap(fault.ErrDevice, err, "enumerate capture devices")
	}
	if len(infos) == 0 {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fault.New(fault.ErrNoMicrophone, "")
	}

	c := &Capturer{
		ctx:        ctx,
		buf:        NewBuffer(MaxBufferSamples),
		sampleRate: rate,
		deviceName: cfg.DeviceName,
		logger:     logger,
	}

	logger.Info("audio capturer initialized",
		zap.Uint32("sample_rate", rate),
		zap.Int("capture_devices", len(infos)))

	return c, nil
}

// Start clears the buffer, resets the shutdown fence, and opens the capture
// stream. The stream callback runs on the audio backend's own thread and
// must return before the next hardware buffer period; it therefore does
// nothing beyond the fence check, the f32 decode, and one bounded append.
func (c *Capturer) Start() error {
	c.shutdown.Store(false)
	c.buf.Reset()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.Alsa.NoMMap = 1

	if c.deviceName != "" {
		id, err := c.findDeviceID(c.deviceName)
		if err != nil {
			return err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	var scratch []float32
	onFrames := func(_, input []byte, frameCount uint32) {
		// Fence first, without touching the lock: once Stop has been
		// requested no write may ever be observed in the buffer.
		if c.shutdown.Load() {
			return
		}

		// A panic must never unwind into the C audio thread, and must never
		// discard audio already committed to the buffer.
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("capture callback panicked, recovered", zap.Any("panic", r))
			}
		}()

		n := int(frameCount)
		if n*4 > len(input) {
			n = len(input) / 4
		}
		if cap(scratch) < n {
			scratch = make([]float32, n)
		}
		scratch = scratch[:n]
		for i := 0; i < n; i++ {
			scratch[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
		}
		c.buf.Append(scratch)
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onFrames})
	if err != nil {
		return fault.Wrap(fault.ErrDevice, err, "build capture stream")
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fault.Wrap(fault.ErrDevice, err, "start capture stream")
	}

	c.device = device
	c.sampleRate = device.SampleRate()
	c.logger.Info("audio capture started", zap.Uint32("sample_rate", c.sampleRate))

	return nil
}

// Stop fences the callback, tears down the stream, and drains the buffer.
// An empty result is legal here; the pipeline rejects empty audio.
func (c *Capturer) Stop() ([]float32, error) {
	// Fence BEFORE teardown so an in-flight callback cannot write after the
	// drain below.
	c.shutdown.Store(true)

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
		time.Sleep(stopGrace)
		c.logger.Info("audio capture stopped")
	}

	samples := c.buf.Drain()
	c.logger.Debug("captured audio drained", zap.Int("sample_count", len(samples)))
	return samples, nil
}

// SampleRate reports the capture stream's sample rate in Hz.
func (c *Capturer) SampleRate() uint32 {
	return c.sampleRate
}

// Devices lists the available capture devices.
func (c *Capturer) Devices() ([]Device, error) {
	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fault.Wrap(fault.ErrDevice, err, "enumerate capture devices")
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Close releases the audio backend. The capturer is unusable afterwards.
func (c *Capturer) Close() error {
	if c.device != nil {
		c.shutdown.Store(true)
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		err := c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
		if err != nil {
			return fault.Wrap(fault.ErrDevice, err, "uninitialize audio backend")
		}
	}
	return nil
}

func (c *Capturer) findDeviceID(name string) (malgo.DeviceID, error) {
	var zero malgo.DeviceID

	infos, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return zero, fault.Wrap(fault.ErrDevice, err, "enumerate capture devices")
	}

	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(name)) {
			return info.ID, nil
		}
	}
	return zero, fault.New(fault.ErrDevice, "capture device %q not found", name)
}
