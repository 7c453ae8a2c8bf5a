package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	voicechat "github.com/koscakluka/ema-voicechat/core"
	"github.com/koscakluka/ema-voicechat/core/agent"
	"github.com/koscakluka/ema-voicechat/core/audio"
	"github.com/koscakluka/ema-voicechat/core/audio/miniaudio"
	"github.com/koscakluka/ema-voicechat/core/audio/portaudio"
	"github.com/koscakluka/ema-voicechat/core/credentials"
	"github.com/koscakluka/ema-voicechat/core/events"
	"github.com/koscakluka/ema-voicechat/core/transcript"
	"github.com/koscakluka/ema-voicechat/core/transport/openai"
)

const baseURLEnv = "VOICECHAT_API_BASE_URL"

var (
	baseURL         string
	agentPath       string
	audioBackend    string
	framesPerBuffer int
	realtimeURL     string
)

var rootCmd = &cobra.Command{
	Use:   "voicechat",
	Short: "Talk to a realtime voice assistant from the terminal",
	Long: `Connects to a realtime voice assistant using a short-lived key issued by
the voicechat backend and shows the live transcript of the conversation.

Keys:
  c        connect
  d        disconnect
  space    start/stop talking (push-to-talk)
  i        interrupt the assistant
  q        quit`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "Backend base URL (defaults to $"+baseURLEnv+")")
	rootCmd.Flags().StringVar(&agentPath, "agent", "", "Path to a YAML file with agent settings")
	rootCmd.Flags().StringVar(&audioBackend, "audio", "miniaudio", "Audio backend: miniaudio, portaudio or none")
	rootCmd.Flags().IntVar(&framesPerBuffer, "frames-per-buffer", 1024, "Frames per buffer for the portaudio backend")
	rootCmd.Flags().StringVar(&realtimeURL, "realtime-url", openai.DefaultURL, "Realtime endpoint")
}

type audioDevice interface {
	audio.Output
	audio.Input
	Close()
}

func run(cmd *cobra.Command, _ []string) error {
	fetcher, err := credentials.NewFetcher(resolveBaseURL())
	if err != nil {
		if errors.Is(err, credentials.ErrMissingBaseURL) {
			return fmt.Errorf("%w: pass --base-url or set %s", err, baseURLEnv)
		}
		return err
	}

	settings := agent.Default()
	if agentPath != "" {
		if settings, err = agent.Load(agentPath); err != nil {
			return err
		}
	}

	device, err := openAudioDevice(audioBackend)
	if err != nil {
		return err
	}
	if device != nil {
		defer device.Close()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var program *tea.Program
	controller := voicechat.NewController(
		voicechat.WithCredentialSource(fetcher),
		voicechat.WithTransportFactory(newTransportFactory(settings, device)),
		voicechat.WithAudioOutput(audioOutput(device)),
		voicechat.WithConnectionChangeCallback(func(state events.ConnectionState) {
			program.Send(connectionMsg(state))
		}),
		voicechat.WithTranscriptCallback(func(entries []transcript.Entry) {
			program.Send(transcriptMsg(entries))
		}),
		voicechat.WithErrorCallback(func(message string) {
			program.Send(errorMsg(message))
		}),
	)

	program = tea.NewProgram(
		newModel(ctx, controller, settings),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	_, err = program.Run()
	controller.Disconnect()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func resolveBaseURL() string {
	if strings.TrimSpace(baseURL) != "" {
		return baseURL
	}
	if value, ok := os.LookupEnv(baseURLEnv); ok {
		return value
	}
	return ""
}

func openAudioDevice(backend string) (audioDevice, error) {
	switch backend {
	case "miniaudio":
		return miniaudio.NewClient()
	case "portaudio":
		return portaudio.NewClient(framesPerBuffer)
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}

// audioOutput keeps a nil device from becoming a non-nil interface.
func audioOutput(device audioDevice) audio.Output {
	if device == nil {
		return nil
	}
	return device
}

func newTransportFactory(settings agent.Settings, device audioDevice) voicechat.TransportFactory {
	return func(output audio.Output) (voicechat.Transport, error) {
		opts := []openai.Option{
			openai.WithAgent(settings),
			openai.WithURL(realtimeURL),
		}
		if device != nil {
			opts = append(opts, openai.WithAudioInput(device))
		}
		return openai.New(output, opts...), nil
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
