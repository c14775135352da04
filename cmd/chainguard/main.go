// Command chainguard is a voice-driven supply chain risk dashboard.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-live/core/audio/miniaudio"
	"github.com/koscakluka/ema-live/core/audio/portaudio"
	"github.com/koscakluka/ema-live/core/capture"
	"github.com/koscakluka/ema-live/core/playback"
	"github.com/koscakluka/ema-live/core/session"
	"github.com/koscakluka/ema-live/core/tools"
	"github.com/koscakluka/ema-live/core/transcript"
	"github.com/koscakluka/ema-live/core/transport"
	"github.com/koscakluka/ema-live/core/transport/bidi"
	"github.com/koscakluka/ema-live/core/transport/gemini"
	"github.com/koscakluka/ema-live/internal/config"
)

var (
	configFile string
	envFile    string
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "chainguard",
	Short: "Talk to ChainGuard, a supply chain risk analyst",
	Long: `ChainGuard is a terminal dashboard with a live voice assistant.

Press space to start or stop the conversation. The assistant can answer
questions about products at risk, world events and warehouse stock, and
can switch the dashboard to the warehouse map.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ema-live/config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flags.String("api-key", "", "Gemini API key")
	flags.String("model", transport.DefaultModel, "live model name")
	flags.String("voice", transport.DefaultVoice, "prebuilt voice for spoken replies")
	flags.String("transport", config.TransportSDK, "engine transport: sdk or websocket")
	flags.String("endpoint", "", "websocket endpoint override")
	flags.String("audio-backend", config.AudioBackendMiniaudio, "audio backend: miniaudio or portaudio")
	flags.Int("frame-size", capture.DefaultFrameSize, "samples per captured frame")

	for key, flag := range map[string]string{
		"api_key":       "api-key",
		"model":         "model",
		"voice":         "voice",
		"transport":     "transport",
		"endpoint":      "endpoint",
		"audio_backend": "audio-backend",
		"frame_size":    "frame-size",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type audioBackend interface {
	OpenCapture(ctx context.Context) (capture.Device, error)
	OpenPlayback(ctx context.Context) (playback.Output, error)
	Close() error
}

func run(cmd *cobra.Command, _ []string) (err error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if cfg.SystemInstruction == "" {
		if cfg.SystemInstruction, err = systemInstruction(); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	backend, err := openAudioBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close audio: %w", closeErr))
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	dispatcher := tools.NewDispatcher(
		tools.NewTool(navigateToMapViewTool,
			"Switches the dashboard to the map of warehouse locations and their stock levels.",
			func(_ context.Context, _ struct{}) (string, error) {
				send(navigateMsg{})
				return "Successfully navigated to map view.", nil
			}),
	)

	conversation := session.New(newConnector(cfg),
		session.WithConfig(cfg.TransportConfig()),
		session.WithTools(dispatcher),
		session.WithCaptureDevice(backend.OpenCapture),
		session.WithOutput(backend.OpenPlayback),
		session.WithFrameSize(cfg.FrameSize),
		session.WithStateChangedCallback(func(state session.State) { send(stateMsg(state)) }),
		session.WithTranscriptCallback(func(entries []transcript.Entry) { send(transcriptMsg(entries)) }),
		session.WithPartialInputCallback(func(text string) { send(partialInputMsg(text)) }),
		session.WithPartialOutputCallback(func(text string) { send(partialOutputMsg(text)) }),
		session.WithErrorCallback(func(err error) { send(errorMsg{err: err}) }),
	)
	defer func() {
		if closeErr := conversation.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	program = tea.NewProgram(newModel(ctx, conversation), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

func newConnector(cfg config.Config) transport.Connector {
	if cfg.Transport == config.TransportWebsocket {
		var opts []bidi.ConnectorOption
		if cfg.Endpoint != "" {
			opts = append(opts, bidi.WithEndpoint(cfg.Endpoint))
		}
		return bidi.NewConnector(cfg.APIKey, opts...)
	}
	return gemini.NewConnector(cfg.APIKey)
}

func openAudioBackend(cfg config.Config) (audioBackend, error) {
	if cfg.AudioBackend == config.AudioBackendPortaudio {
		return portaudio.NewClient(portaudio.DefaultBufferSize)
	}
	return miniaudio.NewClient()
}
