// Package audio describes the local audio devices a realtime session plays to
// and captures from.
package audio

import (
	"context"
	"errors"
	"strings"
)

// ErrPermissionDenied is wrapped by devices when the operating system refuses
// access to the microphone.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Output plays assistant speech.
type Output interface {
	EncodingInfo() EncodingInfo
	SendAudio(audio []byte) error
	// ClearBuffer drops audio that was queued but not played yet.
	ClearBuffer()
}

// Input captures user speech.
type Input interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// IsPermissionError reports whether a device error message describes the
// operating system refusing access. Backends only expose these as text.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "permission denied") ||
		strings.Contains(message, "access denied") ||
		strings.Contains(message, "not permitted")
}
