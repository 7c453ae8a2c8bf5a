package miniaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voicechat/core/audio"
)

// captureClient opens the default microphone on first use. Opening it
// lazily means a denied microphone is reported by StartCapture, when the
// session actually needs it.
type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device

	// onAudio is read from the device thread, so it is swapped atomically
	// rather than under mu.
	onAudio atomic.Pointer[func(audio []byte)]

	mu sync.Mutex
}

func (c *captureClient) initLocked() error {
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * audio.DefaultChannels

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Capture.Format = format
	config.Capture.Channels = uint32(audio.DefaultChannels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = config.SampleRate / 50 // 20ms
	config.Periods = 3

	device, err := malgo.InitDevice(c.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			if onAudio := c.onAudio.Load(); onAudio != nil {
				// The device reuses pInput after the callback returns.
				(*onAudio)(append([]byte(nil), pInput[:n]...))
			}
		},
	})
	if err != nil {
		return classifyDeviceError("failed to initialize capture device", err)
	}
	c.device = device
	return nil
}

func (c *captureClient) Start(onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.audioContext == nil {
		return errors.New("audio context not initialized")
	}
	if c.device == nil {
		if err := c.initLocked(); err != nil {
			return err
		}
	}

	c.onAudio.Store(&onAudio)
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		c.onAudio.Store(nil)
		return classifyDeviceError("failed to start capture device", err)
	}
	return nil
}

func (c *captureClient) Stop() error {
	c.onAudio.Store(nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil || !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() {
	c.onAudio.Store(nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
}

// classifyDeviceError marks errors that mean the operating system refused
// access, so callers can tell them apart from other device failures.
func classifyDeviceError(message string, err error) error {
	if audio.IsPermissionError(err) {
		return fmt.Errorf("%s: %w: %w", message, audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
