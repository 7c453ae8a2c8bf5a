package voicechat

import (
	"context"

	"github.com/koscakluka/ema-voicechat/core/audio"
	"github.com/koscakluka/ema-voicechat/core/events"
	"github.com/koscakluka/ema-voicechat/core/transcript"
)

// Transport is the realtime session collaborator. Implementations own the
// network connection and the audio devices.
type Transport interface {
	// Connect performs the handshake using an ephemeral credential.
	Connect(ctx context.Context, credential string) error
	Close() error
	SendEvent(event events.ClientEvent) error
	Interrupt() error
	// On subscribes to events by kind, or to all of them with
	// [events.Wildcard].
	On(name string, handler func(events.Event))
}

// TransportCapture is implemented by transports that can start and stop
// microphone capture on demand, which push-to-talk uses.
type TransportCapture interface {
	StartCapture(ctx context.Context) error
	StopCapture() error
}

// TransportFactory creates a fresh transport for each connect attempt,
// playing assistant audio to output.
type TransportFactory func(output audio.Output) (Transport, error)

// CredentialSource issues ephemeral session credentials.
type CredentialSource interface {
	Fetch(ctx context.Context) (string, error)
}

type ControllerOption func(*Controller)

func WithCredentialSource(source CredentialSource) ControllerOption {
	return func(c *Controller) { c.credentials = source }
}

func WithTransportFactory(factory TransportFactory) ControllerOption {
	return func(c *Controller) { c.newTransport = factory }
}

// WithAudioOutput sets the sink assistant audio is played to.
func WithAudioOutput(output audio.Output) ControllerOption {
	return func(c *Controller) { c.audioOutput = output }
}

type controllerCallbacks struct {
	onConnectionChange func(state events.ConnectionState)
	onRawEvent         func(event events.Event)
	onTranscript       func(entries []transcript.Entry)
	onError            func(message string)
}

// WithConnectionChangeCallback registers a callback for every normalized
// connection state change.
func WithConnectionChangeCallback(callback func(state events.ConnectionState)) ControllerOption {
	return func(c *Controller) { c.callbacks.onConnectionChange = callback }
}

// WithRawEventCallback registers a callback that receives every transport
// event unchanged, including kinds the controller does not understand.
//
// The callback runs inline on the transport's reader and should not block.
func WithRawEventCallback(callback func(event events.Event)) ControllerOption {
	return func(c *Controller) { c.callbacks.onRawEvent = callback }
}

// WithTranscriptCallback registers a callback that receives a snapshot of
// the transcript whenever it changes, including when it is cleared.
func WithTranscriptCallback(callback func(entries []transcript.Entry)) ControllerOption {
	return func(c *Controller) { c.callbacks.onTranscript = callback }
}

// WithErrorCallback registers a callback for the user-facing error message.
// An empty message means the error was cleared.
func WithErrorCallback(callback func(message string)) ControllerOption {
	return func(c *Controller) { c.callbacks.onError = callback }
}
