// Package openai implements a realtime session transport over the OpenAI
// Realtime WebSocket API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-voicechat/core/agent"
	"github.com/koscakluka/ema-voicechat/core/audio"
	"github.com/koscakluka/ema-voicechat/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultURL = "wss://api.openai.com/v1/realtime"

	closeTimeout = time.Second
)

var (
	ErrNotConnected     = errors.New("transport is not connected")
	ErrAlreadyConnected = errors.New("transport is already connected")
)

type Transport struct {
	url      string
	settings agent.Settings
	dialer   *websocket.Dialer

	output audio.Output
	input  audio.Input

	handlersMu sync.RWMutex
	handlers   map[string][]func(events.Event)

	// connMu serializes writes; gorilla/websocket allows one concurrent writer.
	connMu sync.Mutex
	conn   *websocket.Conn

	capturing atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}
}

type Option func(*Transport)

// WithURL overrides the realtime endpoint, mostly for tests.
func WithURL(rawURL string) Option {
	return func(t *Transport) { t.url = rawURL }
}

func WithAgent(settings agent.Settings) Option {
	return func(t *Transport) { t.settings = settings }
}

// WithAudioInput sets the microphone. Without one the session is text and
// playback only.
func WithAudioInput(input audio.Input) Option {
	return func(t *Transport) { t.input = input }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(t *Transport) {
		if dialer != nil {
			t.dialer = dialer
		}
	}
}

// New creates a transport that plays assistant audio to output. output may
// be nil, in which case audio is dropped.
func New(output audio.Output, opts ...Option) *Transport {
	t := &Transport{
		url:      DefaultURL,
		settings: agent.Default(),
		dialer:   websocket.DefaultDialer,
		output:   output,
		handlers: map[string][]func(events.Event){},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// On registers handler for events whose kind equals name, or for every event
// when name is [events.Wildcard]. Handlers run on the reader goroutine.
func (t *Transport) On(name string, handler func(events.Event)) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[name] = append(t.handlers[name], handler)
}

// Connect opens the socket with credential and waits for session.created.
// Afterwards the agent settings are sent and, unless the agent uses
// push-to-talk, microphone capture starts.
func (t *Transport) Connect(ctx context.Context, credential string) (err error) {
	ctx, span := tracer.Start(ctx, "connect realtime transport")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	t.connMu.Lock()
	if t.conn != nil {
		t.connMu.Unlock()
		return ErrAlreadyConnected
	}
	t.connMu.Unlock()

	endpoint, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	query := endpoint.Query()
	query.Set("model", t.settings.Model)
	endpoint.RawQuery = query.Encode()
	span.SetAttributes(attribute.String("realtime.model", t.settings.Model))

	conn, resp, err := t.dialer.DialContext(ctx, endpoint.String(), http.Header{
		"Authorization": {"Bearer " + credential},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to open realtime socket: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("failed to open realtime socket: %w", err)
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	handshake := make(chan error, 1)
	t.readDone = make(chan struct{})
	go t.readMessages(conn, handshake)

	select {
	case <-ctx.Done():
		t.abort()
		return fmt.Errorf("realtime handshake interrupted: %w", ctx.Err())
	case err := <-handshake:
		if err != nil {
			t.abort()
			return fmt.Errorf("realtime handshake failed: %w", err)
		}
	}

	if err := t.SendEvent(events.NewSessionUpdate(t.sessionConfig())); err != nil {
		t.abort()
		return fmt.Errorf("failed to configure session: %w", err)
	}

	if !t.settings.PushToTalk() {
		if err := t.StartCapture(ctx); err != nil {
			t.abort()
			return err
		}
	}

	t.emit(events.NewTransportConnectionChanged(events.StateConnected, nil))
	return nil
}

func (t *Transport) sessionConfig() events.SessionConfig {
	var session events.SessionConfig
	if err := copier.Copy(&session, &t.settings); err != nil {
		logger.Warn("Failed to copy agent settings onto session", "error", err)
	}

	encoding := audio.GetDefaultEncodingInfo()
	if t.output != nil {
		encoding = t.output.EncodingInfo()
	}
	session.OutputAudioFormat = encoding.WireFormat()
	if t.input != nil {
		session.InputAudioFormat = t.input.EncodingInfo().WireFormat()
	}
	if t.settings.TranscriptionModel != "" {
		session.InputAudioTranscription = &events.TranscriptionConfig{Model: t.settings.TranscriptionModel}
	}
	if !t.settings.PushToTalk() {
		session.TurnDetection = &events.TurnDetection{Type: "server_vad"}
	}
	return session
}

// SendEvent writes a client event, assigning an event id when missing.
func (t *Transport) SendEvent(event events.ClientEvent) error {
	if event.EventID == "" {
		event.EventID = "evt_" + uuid.NewString()
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return ErrNotConnected
	}
	if err := t.conn.WriteJSON(event); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event.Type, err)
	}
	return nil
}

// Interrupt drops queued assistant audio and cancels the in-progress
// response.
func (t *Transport) Interrupt() error {
	if t.output != nil {
		t.output.ClearBuffer()
	}
	return t.SendEvent(events.NewResponseCancel())
}

// StartCapture streams microphone audio into the input buffer.
func (t *Transport) StartCapture(ctx context.Context) error {
	if t.input == nil || !t.capturing.CompareAndSwap(false, true) {
		return nil
	}

	if err := t.input.StartCapture(ctx, t.appendAudio); err != nil {
		t.capturing.Store(false)
		return fmt.Errorf("failed to start microphone capture: %w", err)
	}
	return nil
}

func (t *Transport) StopCapture() error {
	if t.input == nil || !t.capturing.CompareAndSwap(true, false) {
		return nil
	}

	if err := t.input.StopCapture(); err != nil {
		return fmt.Errorf("failed to stop microphone capture: %w", err)
	}
	return nil
}

func (t *Transport) appendAudio(pcm []byte) {
	if err := t.SendEvent(events.NewInputAudioBufferAppend(pcm)); err != nil && !errors.Is(err, ErrNotConnected) {
		logger.Debug("Failed to send input audio", "error", err)
	}
}

// Close stops capture and closes the socket. It is safe to call more than
// once, including from a handler, and does not report a disconnection to
// handlers. Use [Transport.Done] to wait for the reader to exit.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closing.Store(true)

		if stopErr := t.StopCapture(); stopErr != nil {
			err = stopErr
		}

		t.connMu.Lock()
		conn := t.conn
		t.conn = nil
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout),
		)
		if closeErr := conn.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close realtime socket: %w", closeErr)
		}
	})
	return err
}

// Done is closed once the reader goroutine has exited. It is nil before
// Connect.
func (t *Transport) Done() <-chan struct{} {
	return t.readDone
}

func (t *Transport) abort() {
	if err := t.Close(); err != nil {
		logger.Debug("Failed to close transport after failed connect", "error", err)
	}
}

func (t *Transport) emit(event events.Event) {
	t.handlersMu.RLock()
	handlers := append([]func(events.Event){}, t.handlers[events.Wildcard]...)
	handlers = append(handlers, t.handlers[string(event.Kind())]...)
	t.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
