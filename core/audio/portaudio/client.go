package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voicechat/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voicechat/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)

// Client plays and captures audio through PortAudio's blocking API. Input
// and output use separate streams so capture reads never wait on playback
// writes.
type Client struct {
	framesPerBuffer int

	output *portaudio.Stream
	out    []int16

	input       *portaudio.Stream
	in          []int16
	stopCapture context.CancelFunc
	captureDone chan struct{}
	captureMu   sync.Mutex

	queue        *audio.Queue
	audioReady   chan struct{}
	closed       chan struct{}
	playbackDone chan struct{}
	closeOnce    sync.Once
}

var (
	_ audio.Output = (*Client)(nil)
	_ audio.Input  = (*Client)(nil)
)

func NewClient(framesPerBuffer int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	out := make([]int16, framesPerBuffer)
	output, err := portaudio.OpenDefaultStream(0, audio.DefaultChannels, audio.DefaultSampleRate, framesPerBuffer, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio output stream: %w", err)
	}
	if err := output.Start(); err != nil {
		_ = output.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio output stream: %w", err)
	}

	c := &Client{
		framesPerBuffer: framesPerBuffer,
		output:          output,
		out:             out,
		in:              make([]int16, framesPerBuffer),
		queue:           audio.NewQueue(audio.GetDefaultEncodingInfo(), audio.DefaultQueueLimit),
		audioReady:      make(chan struct{}, 1),
		closed:          make(chan struct{}),
		playbackDone:    make(chan struct{}),
	}
	go func() {
		defer close(c.playbackDone)
		runPlayback(c.queue, c.audioReady, c.closed, len(out)*2, c.writeOutput)
	}()

	return c, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.stopCapture != nil {
		select {
		case <-c.captureDone:
			// The previous capture loop gave up on a device error.
			if err := c.resetCaptureLocked(); err != nil {
				logger.Warn("Failed to reset PortAudio input stream", "error", err)
			}
		default:
			return nil
		}
	}

	if c.input == nil {
		input, err := portaudio.OpenDefaultStream(audio.DefaultChannels, 0, audio.DefaultSampleRate, c.framesPerBuffer, c.in)
		if err != nil {
			return classifyDeviceError("failed to open PortAudio input stream", err)
		}
		c.input = input
	}

	if err := c.input.Start(); err != nil {
		return classifyDeviceError("failed to start PortAudio input stream", err)
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.stopCapture = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		buffer := make([]byte, len(c.in)*2)
		for ctx.Err() == nil {
			if err := c.input.Read(); err != nil {
				if !recoverableReadError(err) {
					logger.Error("Stopped capturing from PortAudio stream", "error", err)
					return
				}
				logger.Debug("PortAudio input overflowed", "error", err)
				continue
			}
			for i, sample := range c.in {
				binary.LittleEndian.PutUint16(buffer[i*2:], uint16(sample))
			}
			onAudio(buffer)
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()

	if c.stopCapture == nil {
		return nil
	}

	return c.resetCaptureLocked()
}

func (c *Client) resetCaptureLocked() error {
	c.stopCapture()
	<-c.captureDone
	c.stopCapture = nil
	c.captureDone = nil

	if err := c.input.Stop(); err != nil {
		return fmt.Errorf("failed to stop PortAudio input stream: %w", err)
	}
	return nil
}

// recoverableReadError reports whether capture can keep reading after err.
func recoverableReadError(err error) bool {
	return errors.Is(err, portaudio.InputOverflowed)
}

func (c *Client) SendAudio(pcm []byte) error {
	if dropped := c.queue.Push(pcm); dropped > 0 {
		logger.Debug("Dropped queued assistant audio", "bytes", dropped)
	}

	select {
	case c.audioReady <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) ClearBuffer() {
	c.queue.Clear()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.StopCapture()
		close(c.closed)
		<-c.playbackDone

		c.captureMu.Lock()
		if c.input != nil {
			_ = c.input.Close()
		}
		c.captureMu.Unlock()

		_ = c.output.Stop()
		_ = c.output.Close()
		_ = portaudio.Terminate()
	})
}

func (c *Client) writeOutput(chunk []byte) error {
	for i := range c.out {
		c.out[i] = int16(binary.LittleEndian.Uint16(chunk[i*2:]))
	}
	return c.output.Write()
}

// runPlayback writes whole chunks from queue as they become available; a
// trailing partial chunk waits for more audio. It returns once closed is
// closed and no write is in progress.
func runPlayback(queue *audio.Queue, ready, closed <-chan struct{}, chunkSize int, write func(chunk []byte) error) {
	chunk := make([]byte, chunkSize)
	for {
		select {
		case <-closed:
			return
		case <-ready:
		}

		for queue.ReadFull(chunk) {
			select {
			case <-closed:
				return
			default:
			}
			if err := write(chunk); err != nil {
				logger.Warn("Failed to write to PortAudio stream", "error", err)
			}
		}
	}
}

func classifyDeviceError(message string, err error) error {
	if audio.IsPermissionError(err) {
		return fmt.Errorf("%s: %w: %w", message, audio.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", message, err)
}
