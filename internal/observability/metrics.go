package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FeedMetrics records feed-facing runtime counters through OpenTelemetry.
// A nil *FeedMetrics is valid and records nothing, so callers can wire
// metrics only where an exporter is configured.
type FeedMetrics struct {
	messages      metric.Int64Counter
	reconnects    metric.Int64Counter
	fallbackTicks metric.Int64Counter
	droppedSends  metric.Int64Counter
}

// NewFeedMetrics registers the observatory instruments on the global meter
// provider.
func NewFeedMetrics() (*FeedMetrics, error) {
	meter := otel.Meter("github.com/coachpo/observatory")

	messages, err := meter.Int64Counter("observatory.feed.messages",
		metric.WithDescription("Feed frames dispatched, by message type"))
	if err != nil {
		return nil, fmt.Errorf("create messages counter: %w", err)
	}
	reconnects, err := meter.Int64Counter("observatory.feed.reconnects",
		metric.WithDescription("Reconnect attempts scheduled after a close or error"))
	if err != nil {
		return nil, fmt.Errorf("create reconnects counter: %w", err)
	}
	fallbackTicks, err := meter.Int64Counter("observatory.fallback.ticks",
		metric.WithDescription("Synthetic generations produced while disconnected"))
	if err != nil {
		return nil, fmt.Errorf("create fallback ticks counter: %w", err)
	}
	droppedSends, err := meter.Int64Counter("observatory.feed.dropped_sends",
		metric.WithDescription("Outbound messages dropped because the feed was not open"))
	if err != nil {
		return nil, fmt.Errorf("create dropped sends counter: %w", err)
	}

	return &FeedMetrics{
		messages:      messages,
		reconnects:    reconnects,
		fallbackTicks: fallbackTicks,
		droppedSends:  droppedSends,
	}, nil
}

// RecordMessage counts one dispatched feed frame.
func (m *FeedMetrics) RecordMessage(ctx context.Context, messageType string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("message.type", messageType)))
}

// RecordReconnect counts one scheduled reconnect attempt.
func (m *FeedMetrics) RecordReconnect(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1)
}

// RecordFallbackTick counts one synthetic generation.
func (m *FeedMetrics) RecordFallbackTick(ctx context.Context) {
	if m == nil {
		return
	}
	m.fallbackTicks.Add(ctx, 1)
}

// RecordDroppedSend counts one message dropped while the feed was closed.
func (m *FeedMetrics) RecordDroppedSend(ctx context.Context) {
	if m == nil {
		return
	}
	m.droppedSends.Add(ctx, 1)
}
