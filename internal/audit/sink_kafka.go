package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Hodazia/kubecredentials/internal/platform/kafka/producer"
)

// Topic is the Kafka topic audit events are produced to.
const Topic = "credential.audit"

// KafkaSink delivers audit events to Kafka. Events are keyed by content hash
// so all activity for one credential identity lands on the same partition.
type KafkaSink struct {
	producer *producer.Producer
}

// NewKafkaSink creates a sink backed by the given producer.
func NewKafkaSink(p *producer.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

// Append publishes the event.
func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.producer.Produce(ctx, &producer.Message{
		Topic: Topic,
		Key:   []byte(event.ContentHash),
		Value: payload,
		Headers: map[string]string{
			"action": string(event.Action),
		},
	})
}

var _ Sink = (*KafkaSink)(nil)
