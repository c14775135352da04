// Package gemini connects sessions to Gemini Live through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/koscakluka/ema-live/core/transport"
)

// Connector opens Live sessions with an API key.
type Connector struct {
	apiKey     string
	httpClient *http.Client
}

type ConnectorOption func(*Connector)

// WithHTTPClient replaces the instrumented default client used for the
// handshake.
func WithHTTPClient(client *http.Client) ConnectorOption {
	return func(c *Connector) {
		c.httpClient = client
	}
}

func NewConnector(apiKey string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Open(ctx context.Context, config transport.Config) (transport.Conn, error) {
	ctx, span := tracer.Start(ctx, "open live session", trace.WithAttributes(
		attribute.String("model", config.Model),
		attribute.String("voice", config.Voice),
		attribute.Int("tools", len(config.Tools)),
	))
	defer span.End()

	if c.apiKey == "" {
		err := transport.NewOpenError(errors.New("API key not valid: no key configured"))
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing api key")
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create client")
		return nil, transport.NewOpenError(fmt.Errorf("failed to create genai client: %w", err))
	}

	session, err := client.Live.Connect(ctx, config.Model, liveConnectConfig(config))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to connect")
		return nil, transport.NewOpenError(fmt.Errorf("failed to connect live session: %w", err))
	}

	logger.Info("live session opened", "model", config.Model)
	return newConn(session), nil
}

func liveConnectConfig(config transport.Config) *genai.LiveConnectConfig {
	liveConfig := &genai.LiveConnectConfig{}
	for _, modality := range config.ResponseModalities {
		liveConfig.ResponseModalities = append(liveConfig.ResponseModalities, genai.Modality(modality))
	}
	if config.InputTranscription {
		liveConfig.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if config.OutputTranscription {
		liveConfig.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if config.Voice != "" {
		liveConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}
	if config.SystemInstruction != "" {
		liveConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: config.SystemInstruction}},
		}
	}
	if len(config.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(config.Tools))
		for _, tool := range config.Tools {
			declaration := &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
			}
			if tool.Parameters != nil {
				declaration.ParametersJsonSchema = tool.Parameters
			}
			declarations = append(declarations, declaration)
		}
		liveConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	return liveConfig
}
