// Package bidi speaks the Gemini Live BidiGenerateContent JSON protocol
// directly over a websocket.
package bidi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-live/core/transport"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultSetupTimeout = 10 * time.Second
	maxMessageSize      = 16 * 1024 * 1024
)

type Connector struct {
	apiKey       string
	endpoint     string
	dialer       *websocket.Dialer
	setupTimeout time.Duration
}

type ConnectorOption func(*Connector)

func WithEndpoint(endpoint string) ConnectorOption {
	return func(c *Connector) {
		c.endpoint = endpoint
	}
}

func WithDialer(dialer *websocket.Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dialer = dialer
	}
}

// WithSetupTimeout bounds the wait for the server's setupComplete reply.
func WithSetupTimeout(timeout time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.setupTimeout = timeout
	}
}

func NewConnector(apiKey string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		apiKey:       apiKey,
		endpoint:     DefaultEndpoint,
		dialer:       websocket.DefaultDialer,
		setupTimeout: defaultSetupTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Open(ctx context.Context, config transport.Config) (transport.Conn, error) {
	ctx, span := tracer.Start(ctx, "open bidi stream", trace.WithAttributes(
		attribute.String("model", config.Model),
		attribute.String("endpoint", c.endpoint),
	))
	defer span.End()

	fail := func(err error) (transport.Conn, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, transport.NewOpenError(err)
	}

	if c.apiKey == "" {
		return fail(errors.New("API key not valid: no key configured"))
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint, http.Header{"x-goog-api-key": {c.apiKey}})
	if err != nil {
		if resp != nil {
			return fail(fmt.Errorf("failed to open socket connection (status %d): %w", resp.StatusCode, err))
		}
		return fail(fmt.Errorf("failed to open socket connection: %w", err))
	}
	ws.SetReadLimit(maxMessageSize)

	if err := ws.WriteJSON(clientMessage{Setup: newSetup(config)}); err != nil {
		_ = ws.Close()
		return fail(fmt.Errorf("failed to send setup message: %w", err))
	}

	deadline := time.Now().Add(c.setupTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = ws.SetReadDeadline(deadline)

	var reply serverMessage
	if err := ws.ReadJSON(&reply); err != nil {
		_ = ws.Close()
		return fail(fmt.Errorf("failed to receive setup response: %w", err))
	}
	if reply.SetupComplete == nil {
		_ = ws.Close()
		return fail(errors.New("invalid setup response: setupComplete not received"))
	}
	_ = ws.SetReadDeadline(time.Time{})

	logger.Info("bidi stream opened", "model", config.Model)
	return newConn(ws), nil
}

func newSetup(config transport.Config) *setup {
	model := config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	s := &setup{Model: model, GenerationConfig: &generationConfig{}}
	for _, modality := range config.ResponseModalities {
		s.GenerationConfig.ResponseModalities = append(s.GenerationConfig.ResponseModalities, string(modality))
	}
	if config.Voice != "" {
		s.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: config.Voice}},
		}
	}
	if config.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if config.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	if config.SystemInstruction != "" {
		s.SystemInstruction = &content{Parts: []part{{Text: config.SystemInstruction}}}
	}
	if len(config.Tools) > 0 {
		declarations := make([]functionDeclaration, 0, len(config.Tools))
		for _, declaration := range config.Tools {
			declarations = append(declarations, functionDeclaration{
				Name:                 declaration.Name,
				Description:          declaration.Description,
				ParametersJSONSchema: declaration.Parameters,
			})
		}
		s.Tools = []tool{{FunctionDeclarations: declarations}}
	}
	return s
}
