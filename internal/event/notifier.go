package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/mq"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/msgheader"
)

// Invalidator evicts cached state for a product.
type Invalidator interface {
	InvalidateProduct(ctx context.Context, productID string) error
}

// LocalNotifier invalidates the cache of this instance only.
type LocalNotifier struct {
	inv Invalidator
}

func NewLocalNotifier(inv Invalidator) *LocalNotifier {
	return &LocalNotifier{inv: inv}
}

func (n *LocalNotifier) NotifyProductChanged(ctx context.Context, ev ProductChanged) error {
	if err := n.inv.InvalidateProduct(ctx, ev.ProductID); err != nil {
		return fmt.Errorf("invalidate product %s: %w", ev.ProductID, err)
	}
	return nil
}

// KafkaNotifier publishes changes on topic, keyed by product id. Every
// instance consumes the topic through Service.
type KafkaNotifier struct {
	producer mq.Producer
	topic    string
}

func NewKafkaNotifier(producer mq.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) NotifyProductChanged(ctx context.Context, ev ProductChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal product changed event: %w", err)
	}

	if err := n.producer.Produce(ctx, mq.ProduceMsg{
		Topic:        n.topic,
		Headers:      msgheader.BuildHeaders(ctx),
		Payload:      payload,
		PartitionKey: &ev.ProductID,
	}); err != nil {
		return fmt.Errorf("produce product changed event: %w", err)
	}

	return nil
}
