// Package kafka publishes events directly to Kafka.
package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"identrisk/internal/events"
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher produces one record per event, keyed by aggregate id so a record's
// events stay ordered within a partition.
type Publisher struct {
	producer Producer
	routes   events.Routes
}

func NewPublisher(producer Producer, routes events.Routes) *Publisher {
	return &Publisher{producer: producer, routes: routes}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	rec, err := Record(event, p.routes.Topic(event.Type))
	if err != nil {
		return err
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", event.Type, err)
	}
	return nil
}

// Record builds the Kafka record for an event.
func Record(event events.Event, topic string) (*kgo.Record, error) {
	value, err := event.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(event.AggregateID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
		Timestamp: event.OccurredAt,
	}, nil
}
