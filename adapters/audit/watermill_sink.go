package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
)

// WatermillSink publishes audit events to a message stream using Watermill,
// so downstream consumers own the durable append-only record.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillSink creates a sink publishing to the authgate audit topic.
func NewWatermillSink(publisher message.Publisher) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     "authgate.audit",
	}
}

var _ ports.AuditSink = (*WatermillSink)(nil)

// Record publishes one audit event.
func (s *WatermillSink) Record(ctx context.Context, event core.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
