package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fakeguard/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// newMessage wraps a payload in an envelope, carrying the caller's trace ID.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[domain.MetadataTraceID] = sc.TraceID().String()
	}

	return msg
}

// PublishEvent JSON-encodes event and publishes it on topic.
func PublishEvent(ctx context.Context, b domain.EventBus, tenantID, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

// DecodeEvent decodes a message payload published with PublishEvent.
func DecodeEvent[T any](msg *domain.Message) (T, error) {
	var event T
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return event, fmt.Errorf("failed to decode %s event: %w", msg.Topic, err)
	}
	return event, nil
}
