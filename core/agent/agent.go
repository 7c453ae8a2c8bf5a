// Package agent holds the settings of the assistant a realtime session talks
// to.
package agent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultName               = "VoiceAssistant"
	DefaultModel              = "gpt-4o-realtime-preview-2024-12-17"
	DefaultVoice              = "shimmer"
	DefaultTranscriptionModel = "whisper-1"
	DefaultInstructions       = "You are a friendly and helpful voice assistant. Keep your responses concise and conversational."
	turnDetectionServerVAD    = "server_vad"
	turnDetectionPushToTalk   = "push_to_talk"
)

var ErrEmptyInstructions = errors.New("agent instructions must not be empty")

// Settings configure the assistant for a session. Field names match the
// session payload so they can be copied onto it directly.
type Settings struct {
	Name               string   `yaml:"name"`
	Model              string   `yaml:"model"`
	Voice              string   `yaml:"voice"`
	Instructions       string   `yaml:"instructions"`
	Modalities         []string `yaml:"modalities"`
	TranscriptionModel string   `yaml:"transcription_model"`
	// TurnMode is either "server_vad" or "push_to_talk".
	TurnMode string `yaml:"turn_detection"`
}

func Default() Settings {
	return Settings{
		Name:               DefaultName,
		Model:              DefaultModel,
		Voice:              DefaultVoice,
		Instructions:       DefaultInstructions,
		Modalities:         []string{"audio", "text"},
		TranscriptionModel: DefaultTranscriptionModel,
		TurnMode:           turnDetectionServerVAD,
	}
}

// PushToTalk reports whether server-side turn detection is disabled and
// turns are committed explicitly.
func (s Settings) PushToTalk() bool {
	return s.TurnMode == turnDetectionPushToTalk
}

func (s Settings) Validate() error {
	if strings.TrimSpace(s.Instructions) == "" {
		return ErrEmptyInstructions
	}
	switch s.TurnMode {
	case turnDetectionServerVAD, turnDetectionPushToTalk:
	default:
		return fmt.Errorf("unknown turn detection %q", s.TurnMode)
	}
	return nil
}

// Load reads settings from a YAML file. Fields missing from the file keep
// their [Default] values.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read agent settings: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Settings, error) {
	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("failed to parse agent settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid agent settings: %w", err)
	}
	return settings, nil
}
