package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-voicechat/core/audio"
)

var errDeviceNotInitialized = errors.New("device not initialized")

// playbackClient drains a queue of assistant speech into the default output
// device. The device callback plays silence while the queue is empty.
type playbackClient struct {
	device *malgo.Device
	queue  *audio.Queue

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatS16
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(audio.DefaultSampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(audio.DefaultChannels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = config.SampleRate / 10 // ~100ms of audio
	config.Periods = 4

	c.queue = audio.NewQueue(audio.GetDefaultEncodingInfo(), audio.DefaultQueueLimit)

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, _ uint32) { c.queue.Read(pOutput) },
	})
	if err != nil {
		return classifyDeviceError("failed to initialize playback device", err)
	}
	c.device = device
	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return errDeviceNotInitialized
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// SendAudio queues pcm16 audio for playback.
func (c *playbackClient) SendAudio(pcm []byte) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("playback: %w", errDeviceNotInitialized)
	}

	if dropped := c.queue.Push(pcm); dropped > 0 {
		logger.Debug("Dropped queued assistant audio", "bytes", dropped)
	}
	return nil
}

func (c *playbackClient) ClearBuffer() {
	if c.queue != nil {
		c.queue.Clear()
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return errDeviceNotInitialized
	}
	c.device.Uninit()
	c.device = nil
	return nil
}
