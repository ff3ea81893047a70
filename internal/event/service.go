package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/mq"
)

// Service consumes product changes and invalidates the local cache.
type Service struct {
	logger     *slog.Logger
	mqConsumer mq.Consumer
	topic      string
	inv        Invalidator
}

// New creates a new event service.
func New(
	logger *slog.Logger,
	mqConsumer mq.Consumer,
	topic string,
	inv Invalidator,
) *Service {
	return &Service{
		logger:     logger.With(slog.String("service", "event")),
		mqConsumer: mqConsumer,
		topic:      topic,
		inv:        inv,
	}
}

type CleanupFunc func()

func (s *Service) Run(ctx context.Context) (CleanupFunc, error) {
	if err := s.mqConsumer.RegisterHandler(s.topic, s.handleMessage); err != nil {
		return nil, fmt.Errorf("register product changed event handler: %w", err)
	}

	mqCleanup, err := s.mqConsumer.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run mq consumer: %w", err)
	}

	cleanup := func() {
		mqCleanup()
	}

	return cleanup, nil
}

func (s *Service) handleMessage(ctx context.Context, _ string, payload []byte) error {
	var ev ProductChanged
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("unmarshal product changed event: %w", err)
	}

	if err := s.handleProductChanged(ctx, ev); err != nil {
		return fmt.Errorf("handle product changed event: %w", err)
	}

	return nil
}

func (s *Service) handleProductChanged(ctx context.Context, ev ProductChanged) error {
	s.logger.DebugContext(ctx, "handling product changed event",
		slog.String("product_id", ev.ProductID),
		slog.String("operation", string(ev.Operation)),
	)

	if ev.ProductID == "" {
		return errors.New("event without product id")
	}

	return s.inv.InvalidateProduct(ctx, ev.ProductID)
}
