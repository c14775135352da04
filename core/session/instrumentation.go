package session

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-live/core/session"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	framesSentCounter, _ = meter.Int64Counter("session.frames_sent",
		metric.WithDescription("Captured audio frames queued for the transport"))
	chunksScheduledCounter, _ = meter.Int64Counter("session.chunks_scheduled",
		metric.WithDescription("Reply audio chunks scheduled for playback"))
	malformedChunksCounter, _ = meter.Int64Counter("session.chunks_malformed",
		metric.WithDescription("Reply audio chunks dropped because they could not be decoded"))
	toolCallsCounter, _ = meter.Int64Counter("session.tool_calls",
		metric.WithDescription("Tool call requests received"))
)
