package voicechat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-voicechat/core/audio"
	"github.com/koscakluka/ema-voicechat/core/credentials"
	"github.com/koscakluka/ema-voicechat/core/events"
	"github.com/koscakluka/ema-voicechat/core/transcript"
)

type fakeCredentials struct {
	credential string
	err        error
	calls      atomic.Int32
}

func (f *fakeCredentials) Fetch(context.Context) (string, error) {
	f.calls.Add(1)
	return f.credential, f.err
}

type fakeTransport struct {
	mu sync.Mutex

	handlers    map[string][]func(events.Event)
	subscribed  []string
	credential  string
	sent        []events.ClientEvent
	closed      int
	interrupts  int
	captureOn   int
	captureOff  int
	connectErr  error
	connectGate chan struct{}
}

func (f *fakeTransport) Connect(ctx context.Context, credential string) error {
	f.mu.Lock()
	f.credential = credential
	gate := f.connectGate
	err := f.connectErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) SendEvent(event events.ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeTransport) Interrupt() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	return nil
}

func (f *fakeTransport) On(name string, handler func(events.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[string][]func(events.Event){}
	}
	f.handlers[name] = append(f.handlers[name], handler)
	f.subscribed = append(f.subscribed, name)
}

func (f *fakeTransport) StartCapture(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureOn++
	return nil
}

func (f *fakeTransport) StopCapture() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captureOff++
	return nil
}

func (f *fakeTransport) emit(event events.Event) {
	f.mu.Lock()
	handlers := append([]func(events.Event){}, f.handlers[events.Wildcard]...)
	handlers = append(handlers, f.handlers[string(event.Kind())]...)
	f.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (f *fakeTransport) sentTypes() []events.ClientEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]events.ClientEventType, 0, len(f.sent))
	for _, event := range f.sent {
		types = append(types, event.Type)
	}
	return types
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type stateRecorder struct {
	mu     sync.Mutex
	states []events.ConnectionState
	notify chan events.ConnectionState
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{notify: make(chan events.ConnectionState, 32)}
}

func (r *stateRecorder) record(state events.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
	r.notify <- state
}

func (r *stateRecorder) snapshot() []events.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.ConnectionState{}, r.states...)
}

func (r *stateRecorder) await(t *testing.T, want events.ConnectionState) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case state := <-r.notify:
			if state == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

type controllerHarness struct {
	controller   *Controller
	credentials  *fakeCredentials
	transports   []*fakeTransport
	constructed  atomic.Int32
	states       *stateRecorder
	transcripts  [][]transcript.Entry
	errors       []string
	transcriptMu sync.Mutex
}

func newControllerHarness(newFake func() *fakeTransport) *controllerHarness {
	h := &controllerHarness{
		credentials: &fakeCredentials{credential: "ek_test"},
		states:      newStateRecorder(),
	}
	if newFake == nil {
		newFake = func() *fakeTransport { return &fakeTransport{} }
	}

	h.controller = NewController(
		WithCredentialSource(h.credentials),
		WithTransportFactory(func(audio.Output) (Transport, error) {
			h.constructed.Add(1)
			fake := newFake()
			h.transcriptMu.Lock()
			h.transports = append(h.transports, fake)
			h.transcriptMu.Unlock()
			return fake, nil
		}),
		WithConnectionChangeCallback(h.states.record),
		WithTranscriptCallback(func(entries []transcript.Entry) {
			h.transcriptMu.Lock()
			defer h.transcriptMu.Unlock()
			h.transcripts = append(h.transcripts, entries)
		}),
		WithErrorCallback(func(message string) {
			h.transcriptMu.Lock()
			defer h.transcriptMu.Unlock()
			h.errors = append(h.errors, message)
		}),
	)
	return h
}

func (h *controllerHarness) transport(t *testing.T, index int) *fakeTransport {
	t.Helper()
	h.transcriptMu.Lock()
	defer h.transcriptMu.Unlock()
	if index >= len(h.transports) {
		t.Fatalf("expected at least %d transports, got %d", index+1, len(h.transports))
	}
	return h.transports[index]
}

func TestDisconnectWithoutSessionIsHarmless(t *testing.T) {
	h := newControllerHarness(nil)

	h.controller.Disconnect()
	h.controller.Disconnect()

	if got := h.controller.State(); got != events.StateDisconnected {
		t.Fatalf("expected disconnected state, got %q", got)
	}
	if got := h.controller.Transcript(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %+v", got)
	}
	for _, state := range h.states.snapshot() {
		if state != events.StateDisconnected {
			t.Fatalf("expected only disconnected notifications, got %v", h.states.snapshot())
		}
	}
	if got := h.constructed.Load(); got != 0 {
		t.Fatalf("expected no transport to be constructed, got %d", got)
	}
}

func TestConnectSucceeds(t *testing.T) {
	h := newControllerHarness(nil)

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}

	if got := h.controller.State(); got != events.StateConnected {
		t.Fatalf("expected connected state, got %q", got)
	}
	fake := h.transport(t, 0)
	if fake.credential != "ek_test" {
		t.Fatalf("expected transport to receive the fetched credential, got %q", fake.credential)
	}
	if got := h.states.snapshot(); len(got) != 2 || got[0] != events.StateConnecting || got[1] != events.StateConnected {
		t.Fatalf("expected connecting then connected, got %v", got)
	}
	if len(fake.subscribed) != 1 || fake.subscribed[0] != events.Wildcard {
		t.Fatalf("expected a single wildcard subscription, got %v", fake.subscribed)
	}
}

func TestConnectTwiceConstructsOneTransport(t *testing.T) {
	gate := make(chan struct{})
	h := newControllerHarness(func() *fakeTransport {
		return &fakeTransport{connectGate: gate}
	})

	firstDone := make(chan error, 1)
	go func() { firstDone <- h.controller.Connect(context.Background()) }()
	h.states.await(t, events.StateConnecting)

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("expected second connect to be a no-op, got %v", err)
	}

	close(gate)
	select {
	case err := <-firstDone:
		if err != nil {
			t.Fatalf("unexpected connect error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connect")
	}

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect on a live session to be a no-op, got %v", err)
	}

	if got := h.constructed.Load(); got != 1 {
		t.Fatalf("expected exactly one transport, got %d", got)
	}
	if got := h.credentials.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one credential fetch, got %d", got)
	}
}

func TestConnectReportsBackendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("db down"))
	}))
	defer server.Close()

	fetcher, err := credentials.NewFetcher(server.URL)
	if err != nil {
		t.Fatalf("unexpected fetcher error: %v", err)
	}

	constructed := 0
	states := newStateRecorder()
	c := NewController(
		WithCredentialSource(fetcher),
		WithTransportFactory(func(audio.Output) (Transport, error) {
			constructed++
			return &fakeTransport{}, nil
		}),
		WithConnectionChangeCallback(states.record),
	)

	err = c.Connect(context.Background())

	var credentialErr *CredentialError
	if !errors.As(err, &credentialErr) {
		t.Fatalf("expected credential error, got %v", err)
	}
	var fetchErr *credentials.Error
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped HTTP 500 error, got %v", err)
	}
	message := c.ErrorMessage()
	if message == "" || !strings.Contains(message, "db down") {
		t.Fatalf("expected error message derived from the failure, got %q", message)
	}
	if got := c.State(); got != events.StateDisconnected {
		t.Fatalf("expected disconnected state, got %q", got)
	}
	if constructed != 0 {
		t.Fatalf("expected no transport to be constructed, got %d", constructed)
	}
	if got := c.Transcript(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %+v", got)
	}
	for _, state := range states.snapshot() {
		if state == events.StateConnected {
			t.Fatalf("connected must never be reported, got %v", states.snapshot())
		}
	}
}

func TestConnectClassifiesFailures(t *testing.T) {
	testCases := []struct {
		name        string
		connectErr  error
		wantMessage string
		check       func(error) bool
	}{
		{
			name:        "permission denied",
			connectErr:  fmt.Errorf("failed to start capture: %w", audio.ErrPermissionDenied),
			wantMessage: permissionDeniedMessage,
			check: func(err error) bool {
				var target *PermissionError
				return errors.As(err, &target)
			},
		},
		{
			name:        "permission denied as text",
			connectErr:  errors.New("ma_device_init: Access denied"),
			wantMessage: permissionDeniedMessage,
			check: func(err error) bool {
				var target *PermissionError
				return errors.As(err, &target)
			},
		},
		{
			name:        "handshake",
			connectErr:  errors.New("realtime handshake failed"),
			wantMessage: "realtime handshake failed",
			check: func(err error) bool {
				var target *HandshakeError
				return errors.As(err, &target)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newControllerHarness(func() *fakeTransport {
				return &fakeTransport{connectErr: tc.connectErr}
			})

			err := h.controller.Connect(context.Background())
			if !tc.check(err) {
				t.Fatalf("unexpected error classification: %v", err)
			}
			if got := h.controller.ErrorMessage(); got != tc.wantMessage {
				t.Fatalf("expected message %q, got %q", tc.wantMessage, got)
			}
			if got := h.controller.State(); got != events.StateDisconnected {
				t.Fatalf("expected disconnected state, got %q", got)
			}
			if got := h.transport(t, 0).closeCount(); got != 1 {
				t.Fatalf("expected failed transport to be closed once, got %d", got)
			}
			states := h.states.snapshot()
			if last := states[len(states)-1]; last != events.StateDisconnected {
				t.Fatalf("expected disconnected to be reported last, got %v", states)
			}
		})
	}
}

func TestConnectClearsPreviousError(t *testing.T) {
	var attempts atomic.Int32
	h := newControllerHarness(func() *fakeTransport {
		if attempts.Add(1) == 1 {
			return &fakeTransport{connectErr: errors.New("first attempt fails")}
		}
		return &fakeTransport{}
	})

	if err := h.controller.Connect(context.Background()); err == nil {
		t.Fatalf("expected first connect to fail")
	}
	if h.controller.ErrorMessage() == "" {
		t.Fatalf("expected error message after failed connect")
	}

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	if got := h.controller.ErrorMessage(); got != "" {
		t.Fatalf("expected error message to be cleared, got %q", got)
	}
}

func TestDisconnectCancelsConnectInFlight(t *testing.T) {
	h := newControllerHarness(func() *fakeTransport {
		return &fakeTransport{connectGate: make(chan struct{})}
	})

	done := make(chan error, 1)
	go func() { done <- h.controller.Connect(context.Background()) }()
	h.states.await(t, events.StateConnecting)

	h.controller.Disconnect()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectCancelled) {
			t.Fatalf("expected cancelled connect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connect to return")
	}

	if got := h.controller.State(); got != events.StateDisconnected {
		t.Fatalf("expected disconnected state, got %q", got)
	}
	if got := h.controller.ErrorMessage(); got != "" {
		t.Fatalf("expected no error message for a cancelled connect, got %q", got)
	}
	if got := h.transport(t, 0).closeCount(); got == 0 {
		t.Fatalf("expected transport to be closed")
	}
}

func TestTranscriptFollowsEvents(t *testing.T) {
	h := newControllerHarness(nil)
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	fake := h.transport(t, 0)

	fake.emit(events.NewUserTranscriptionDelta("u1", "Hel"))
	fake.emit(events.NewUserTranscriptionDelta("u1", "lo"))
	fake.emit(events.NewAssistantTextDelta("a1", "Hi "))
	fake.emit(events.NewAssistantTextDelta("a1", "there"))
	fake.emit(events.SessionUpdated{Base: events.NewBase(events.KindSessionUpdated)})

	want := []transcript.Entry{
		{ID: "u1", Role: transcript.RoleUser, Text: "Hello"},
		{ID: "a1", Role: transcript.RoleAssistant, Text: "Hi there"},
	}
	assertEntries(t, h.controller.Transcript(), want)

	fake.emit(events.NewUserTranscriptionCompleted("u1", "Hello."))
	want[0].Text = "Hello."
	assertEntries(t, h.controller.Transcript(), want)

	h.controller.Disconnect()
	if got := h.controller.Transcript(); len(got) != 0 {
		t.Fatalf("expected transcript to be cleared on disconnect, got %+v", got)
	}

	h.transcriptMu.Lock()
	last := h.transcripts[len(h.transcripts)-1]
	h.transcriptMu.Unlock()
	if len(last) != 0 {
		t.Fatalf("expected cleared transcript to be reported, got %+v", last)
	}
}

func TestEventsAfterDisconnectAreIgnored(t *testing.T) {
	h := newControllerHarness(nil)
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	fake := h.transport(t, 0)
	h.controller.Disconnect()

	fake.emit(events.NewUserTranscriptionDelta("u1", "late"))

	if got := h.controller.Transcript(); len(got) != 0 {
		t.Fatalf("expected stale events to be ignored, got %+v", got)
	}
}

func TestRawEventCallbackReceivesEveryEvent(t *testing.T) {
	var mu sync.Mutex
	var received []events.Kind
	fake := &fakeTransport{}
	c := NewController(
		WithCredentialSource(&fakeCredentials{credential: "ek"}),
		WithTransportFactory(func(audio.Output) (Transport, error) { return fake, nil }),
		WithRawEventCallback(func(event events.Event) {
			mu.Lock()
			defer mu.Unlock()
			received = append(received, event.Kind())
		}),
	)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}

	fake.emit(events.NewUnrecognized("rate_limits.updated", []byte(`{"type":"rate_limits.updated"}`)))
	fake.emit(events.NewAssistantTextDelta("a1", "Hi"))

	mu.Lock()
	defer mu.Unlock()
	want := []events.Kind{"rate_limits.updated", events.KindAssistantTextDelta}
	if len(received) != len(want) {
		t.Fatalf("expected %d raw events, got %v", len(want), received)
	}
	for i := range want {
		if received[i] != want[i] {
			t.Fatalf("expected raw event %d to be %q, got %q", i, want[i], received[i])
		}
	}
}

func TestStreamDisconnectReleasesSession(t *testing.T) {
	h := newControllerHarness(nil)
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	fake := h.transport(t, 0)
	fake.emit(events.NewAssistantTextDelta("a1", "Hi"))

	fake.emit(events.NewTransportConnectionChanged(events.StateDisconnected, errors.New("connection reset")))

	if got := h.controller.State(); got != events.StateDisconnected {
		t.Fatalf("expected disconnected state, got %q", got)
	}
	if got := fake.closeCount(); got != 1 {
		t.Fatalf("expected dropped transport to be closed once, got %d", got)
	}
	states := h.states.snapshot()
	want := []events.ConnectionState{events.StateConnecting, events.StateConnected, events.StateDisconnected}
	if !slices.Equal(states, want) {
		t.Fatalf("expected disconnected to be reported once, got %v", states)
	}

	// A late close report from the same transport is not reported again.
	fake.emit(events.NewTransportConnectionChanged(events.StateDisconnected, nil))
	if got := h.states.snapshot(); len(got) != len(want) {
		t.Fatalf("expected no further notifications, got %v", got)
	}
	if got := h.controller.Transcript(); len(got) != 1 {
		t.Fatalf("expected transcript to survive a dropped connection, got %+v", got)
	}

	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected reconnect error: %v", err)
	}
	if got := h.constructed.Load(); got != 2 {
		t.Fatalf("expected a fresh transport on reconnect, got %d", got)
	}
}

func TestPushToTalkWithoutSessionIsNoop(t *testing.T) {
	h := newControllerHarness(nil)

	if err := h.controller.PushToTalkStart(context.Background()); err != nil {
		t.Fatalf("expected push-to-talk start to be a no-op, got %v", err)
	}
	if err := h.controller.PushToTalkStop(); err != nil {
		t.Fatalf("expected push-to-talk stop to be a no-op, got %v", err)
	}
	if err := h.controller.Interrupt(); err != nil {
		t.Fatalf("expected interrupt to be a no-op, got %v", err)
	}
	if err := h.controller.SendUserText("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPushToTalkDrivesInputBuffer(t *testing.T) {
	h := newControllerHarness(nil)
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	fake := h.transport(t, 0)

	if err := h.controller.PushToTalkStart(context.Background()); err != nil {
		t.Fatalf("unexpected push-to-talk start error: %v", err)
	}
	if err := h.controller.PushToTalkStop(); err != nil {
		t.Fatalf("unexpected push-to-talk stop error: %v", err)
	}

	want := []events.ClientEventType{
		events.ClientInputAudioBufferClear,
		events.ClientInputAudioBufferCommit,
		events.ClientResponseCreate,
	}
	assertClientEvents(t, fake.sentTypes(), want)
	if fake.captureOn != 1 || fake.captureOff != 1 {
		t.Fatalf("expected capture to start and stop once, got %d/%d", fake.captureOn, fake.captureOff)
	}
}

func TestSendUserTextAndInterrupt(t *testing.T) {
	h := newControllerHarness(nil)
	if err := h.controller.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected connect error: %v", err)
	}
	fake := h.transport(t, 0)

	if err := h.controller.SendUserText("what's the weather?"); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if err := h.controller.Interrupt(); err != nil {
		t.Fatalf("unexpected interrupt error: %v", err)
	}

	assertClientEvents(t, fake.sentTypes(), []events.ClientEventType{
		events.ClientConversationItemCreate,
		events.ClientResponseCreate,
	})
	if got := fake.sent[0].Item.Content[0].Text; got != "what's the weather?" {
		t.Fatalf("expected message text to be sent, got %q", got)
	}
	if fake.interrupts != 1 {
		t.Fatalf("expected one interrupt, got %d", fake.interrupts)
	}
}

func TestConnectWithoutCollaborators(t *testing.T) {
	c := NewController()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if got := c.State(); got != events.StateDisconnected {
		t.Fatalf("expected disconnected state, got %q", got)
	}
}

func assertEntries(t *testing.T, got, want []transcript.Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func assertClientEvents(t *testing.T, got, want []events.ClientEventType) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected client events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected client events %v, got %v", want, got)
		}
	}
}
