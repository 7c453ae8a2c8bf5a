package voicechat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-voicechat/core/audio"
	"github.com/koscakluka/ema-voicechat/core/events"
	"github.com/koscakluka/ema-voicechat/core/transcript"
)

// Controller owns at most one realtime session at a time and turns its event
// stream into connection state, a reconciled transcript and a user-facing
// error message.
type Controller struct {
	mu sync.Mutex

	state      events.ConnectionState
	transport  Transport
	connecting bool
	cancel     context.CancelFunc
	// generation is bumped by every connect attempt and every disconnect so
	// that work belonging to an abandoned session can tell it is stale.
	generation uint64
	entries    []transcript.Entry
	errMessage string

	credentials  CredentialSource
	newTransport TransportFactory
	audioOutput  audio.Output

	callbacks controllerCallbacks
	emitEvent eventEmitter
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		state: events.StateDisconnected,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.emitEvent = newCallbackEventEmitter(c.callbacks)

	return c
}

// Connect starts a new session. It is a no-op while a session exists or
// another connect is in flight.
//
// Failures are classified into [CredentialError], [PermissionError] or
// [HandshakeError], stored as the user-facing error message and returned.
// The controller is left disconnected.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.transport != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	if c.credentials == nil || c.newTransport == nil {
		c.mu.Unlock()
		return ErrNotConfigured
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.generation++
	generation := c.generation
	c.connecting = true
	c.cancel = cancel
	c.entries = nil
	c.errMessage = ""
	c.mu.Unlock()

	c.notifyError("")
	c.notifyTranscript(nil)

	ctx, span := tracer.Start(ctx, "connect session")
	defer span.End()
	connectAttempts.Add(ctx, 1)

	credential, err := c.credentials.Fetch(ctx)
	if err != nil {
		return c.failConnect(ctx, generation, nil, classifyConnectError(stageCredential, err))
	}

	transport, err := c.newTransport(c.audioOutput)
	if err != nil {
		err = fmt.Errorf("failed to create transport: %w", err)
		return c.failConnect(ctx, generation, nil, classifyConnectError(stageHandshake, err))
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		c.closeTransport(transport)
		return ErrConnectCancelled
	}
	c.transport = transport
	c.state = events.StateConnecting
	c.mu.Unlock()
	c.emitEvent(events.NewConnectionChanged(events.StateConnecting))

	newEventNormalizer(c.sessionEmitter(generation), c.emitEvent, c.streamDisconnected(generation)).register(transport)

	if err := transport.Connect(ctx, credential); err != nil {
		return c.failConnect(ctx, generation, transport, classifyConnectError(stageHandshake, err))
	}

	c.mu.Lock()
	if c.generation != generation || c.transport != transport {
		c.mu.Unlock()
		return ErrConnectCancelled
	}
	c.connecting = false
	c.cancel = nil
	c.state = events.StateConnected
	c.mu.Unlock()

	span.AddEvent("session connected")
	c.emitEvent(events.NewConnectionChanged(events.StateConnected))
	return nil
}

func (c *Controller) failConnect(ctx context.Context, generation uint64, transport Transport, err error) error {
	if transport != nil {
		c.closeTransport(transport)
	}

	c.mu.Lock()
	if c.generation != generation {
		// Disconnect already reset everything and reported it.
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrConnectCancelled, err)
	}
	message := userMessage(err)
	c.transport = nil
	c.connecting = false
	c.cancel = nil
	c.state = events.StateDisconnected
	c.errMessage = message
	c.mu.Unlock()

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, "connect failed")
	connectFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
	logger.Warn("Connect failed", "error", err)

	c.notifyError(message)
	c.emitEvent(events.NewConnectionChanged(events.StateDisconnected))
	return err
}

// Disconnect ends the current session, or cancels a connect in flight, and
// clears the transcript. Calling it while disconnected is harmless.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	c.generation++
	transport := c.transport
	cancel := c.cancel
	c.transport = nil
	c.cancel = nil
	c.connecting = false
	c.state = events.StateDisconnected
	c.entries = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if transport != nil {
		c.closeTransport(transport)
	}

	c.notifyTranscript(nil)
	c.emitEvent(events.NewConnectionChanged(events.StateDisconnected))
}

func (c *Controller) closeTransport(transport Transport) {
	if err := transport.Close(); err != nil {
		logger.Warn("Failed to close transport", "error", err)
	}
}

// sessionEmitter routes normalized events of one session, dropping them
// once the session is no longer current.
func (c *Controller) sessionEmitter(generation uint64) eventEmitter {
	return func(event events.Event) {
		c.mu.Lock()
		if c.generation != generation {
			c.mu.Unlock()
			return
		}

		var snapshot []transcript.Entry
		changed := false
		if raw, ok := event.(events.RawEvent); ok {
			if update, ok := transcript.UpdateFromEvent(raw.Event); ok {
				c.entries = transcript.Apply(c.entries, update)
				snapshot = c.transcriptLocked()
				changed = true
			}
		}
		c.mu.Unlock()

		c.emitEvent(event)
		if changed {
			c.notifyTranscript(snapshot)
		}
	}
}

// streamDisconnected releases the session when the transport reports that
// the connection dropped on its own.
func (c *Controller) streamDisconnected(generation uint64) func(err error) bool {
	return func(err error) bool {
		c.mu.Lock()
		if c.generation != generation {
			c.mu.Unlock()
			return false
		}
		c.generation++
		transport := c.transport
		cancel := c.cancel
		c.transport = nil
		c.cancel = nil
		c.connecting = false
		c.state = events.StateDisconnected
		c.mu.Unlock()

		if err != nil {
			logger.Info("Connection lost", "error", err)
		}
		if cancel != nil {
			cancel()
		}
		if transport != nil {
			c.closeTransport(transport)
		}
		return true
	}
}

func (c *Controller) State() events.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the current transcript.
func (c *Controller) Transcript() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

func (c *Controller) transcriptLocked() []transcript.Entry {
	if len(c.entries) == 0 {
		return nil
	}
	entries := make([]transcript.Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// ErrorMessage returns the message of the last failed connect, or an empty
// string.
func (c *Controller) ErrorMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMessage
}

func (c *Controller) notifyTranscript(entries []transcript.Entry) {
	if c.callbacks.onTranscript != nil {
		c.callbacks.onTranscript(entries)
	}
}

func (c *Controller) notifyError(message string) {
	if c.callbacks.onError != nil {
		c.callbacks.onError(message)
	}
}

func failureReason(err error) string {
	var permissionErr *PermissionError
	var credentialErr *CredentialError
	switch {
	case errors.As(err, &permissionErr):
		return "permission"
	case errors.As(err, &credentialErr):
		return "credential"
	default:
		return "handshake"
	}
}
