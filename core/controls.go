package voicechat

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-voicechat/core/events"
)

// Interrupt cuts off the assistant's current response. Without a session it
// does nothing.
func (c *Controller) Interrupt() error {
	transport := c.currentTransport(false)
	if transport == nil {
		return nil
	}
	return transport.Interrupt()
}

// PushToTalkStart discards any buffered input and opens the microphone. It
// does nothing unless the session is connected.
func (c *Controller) PushToTalkStart(ctx context.Context) error {
	transport := c.currentTransport(true)
	if transport == nil {
		return nil
	}

	if err := transport.SendEvent(events.NewInputAudioBufferClear()); err != nil {
		return fmt.Errorf("failed to clear input buffer: %w", err)
	}
	if capture, ok := transport.(TransportCapture); ok {
		if err := capture.StartCapture(ctx); err != nil {
			return fmt.Errorf("failed to start capture: %w", err)
		}
	}
	return nil
}

// PushToTalkStop closes the microphone, commits what was said and asks for a
// response. It does nothing unless the session is connected.
func (c *Controller) PushToTalkStop() error {
	transport := c.currentTransport(true)
	if transport == nil {
		return nil
	}

	if capture, ok := transport.(TransportCapture); ok {
		if err := capture.StopCapture(); err != nil {
			logger.Warn("Failed to stop capture", "error", err)
		}
	}
	if err := transport.SendEvent(events.NewInputAudioBufferCommit()); err != nil {
		return fmt.Errorf("failed to commit input buffer: %w", err)
	}
	if err := transport.SendEvent(events.NewResponseCreate()); err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

// SendUserText adds a typed user message to the conversation and asks for a
// response.
func (c *Controller) SendUserText(text string) error {
	transport := c.currentTransport(true)
	if transport == nil {
		return ErrNotConnected
	}

	if err := transport.SendEvent(events.NewUserTextMessage(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if err := transport.SendEvent(events.NewResponseCreate()); err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

func (c *Controller) currentTransport(requireConnected bool) Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if requireConnected && c.state != events.StateConnected {
		return nil
	}
	return c.transport
}
