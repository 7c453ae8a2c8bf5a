package voicechat

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-voicechat/core/audio"
)

var (
	ErrNotConnected     = errors.New("session is not connected")
	ErrNotConfigured    = errors.New("controller needs a credential source and a transport factory")
	ErrConnectCancelled = errors.New("connect cancelled by disconnect")
)

const (
	permissionDeniedMessage = "Permission to use microphone was denied. Please check your system audio settings."
	unknownErrorMessage     = "An unknown error occurred during connection."
)

// CredentialError reports that no session credential could be obtained from
// the backend.
type CredentialError struct{ Err error }

func (e *CredentialError) Error() string { return fmt.Sprintf("credential error: %v", e.Err) }
func (e *CredentialError) Unwrap() error { return e.Err }

// PermissionError reports that the microphone could not be opened because
// access was denied.
type PermissionError struct{ Err error }

func (e *PermissionError) Error() string { return fmt.Sprintf("permission error: %v", e.Err) }
func (e *PermissionError) Unwrap() error { return e.Err }

// HandshakeError reports that the realtime session could not be
// established.
type HandshakeError struct{ Err error }

func (e *HandshakeError) Error() string { return fmt.Sprintf("handshake error: %v", e.Err) }
func (e *HandshakeError) Unwrap() error { return e.Err }

type connectStage int

const (
	stageCredential connectStage = iota
	stageHandshake
)

// classifyConnectError wraps err in the taxonomy type for stage. A denied
// microphone wins over the stage it surfaced in.
func classifyConnectError(stage connectStage, err error) error {
	if audio.IsPermissionError(err) {
		return &PermissionError{Err: err}
	}
	if stage == stageCredential {
		return &CredentialError{Err: err}
	}
	return &HandshakeError{Err: err}
}

// userMessage turns a classified connect error into text for the user.
func userMessage(err error) string {
	var permissionErr *PermissionError
	var credentialErr *CredentialError
	var handshakeErr *HandshakeError

	switch {
	case errors.As(err, &permissionErr):
		return permissionDeniedMessage
	case errors.As(err, &credentialErr):
		return fmt.Sprintf("Failed to fetch session key. Is the backend running? (%v)", credentialErr.Err)
	case errors.As(err, &handshakeErr) && handshakeErr.Err != nil && handshakeErr.Err.Error() != "":
		return handshakeErr.Err.Error()
	case err != nil && !errors.As(err, &handshakeErr) && err.Error() != "":
		return err.Error()
	}
	return unknownErrorMessage
}
