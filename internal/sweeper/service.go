// Package sweeper purges expired product versions from stores without native
// expiry.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/event"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

type ChangeNotifier interface {
	NotifyProductChanged(ctx context.Context, ev event.ProductChanged) error
}

type Service struct {
	cfg      config.Sweeper
	logger   *slog.Logger
	store    storage.ExpirySweeper
	notifier ChangeNotifier
	now      func() time.Time

	stopChan chan struct{}
}

func NewService(
	cfg config.Sweeper,
	logger *slog.Logger,
	store storage.ExpirySweeper,
	notifier ChangeNotifier,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:      cfg,
		logger:   logger.With(slog.String("service", "sweeper")),
		store:    store,
		notifier: notifier,
		now:      now,
		stopChan: make(chan struct{}),
	}
}

type CleanupFunc func()

func (s *Service) Run(ctx context.Context) CleanupFunc {
	ctx, cancel := context.WithCancel(ctx)

	stoppedChan := make(chan struct{})
	go func() {
		defer close(stoppedChan)
		s.run(ctx)
	}()

	return func() {
		close(s.stopChan)
		select {
		case <-stoppedChan:
		case <-time.After(5 * time.Second):
			cancel()
		}
	}
}

func (s *Service) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-time.After(s.cfg.Interval):
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "error sweeping expired products", slog.Any("error", err))
				continue
			}
		}
	}
}

// Sweep deletes expired rows in batches until a short batch is returned and
// reports how many were removed. A zero batch size removes everything in one
// unbounded pass.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	nowSeconds := s.now().Unix()
	//nolint:gosec
	batchSize := int(s.cfg.BatchSize)

	total := 0
	for {
		keys, err := s.store.DeleteExpired(ctx, nowSeconds, batchSize)
		if err != nil {
			return total, fmt.Errorf("delete expired: %w", err)
		}
		total += len(keys)

		if len(keys) > 0 {
			s.logger.InfoContext(ctx, "swept expired products", slog.Int("count", len(keys)))
			s.notify(ctx, keys)
		}

		if batchSize <= 0 || len(keys) < batchSize {
			return total, nil
		}
	}
}

func (s *Service) notify(ctx context.Context, keys []model.Key) {
	if s.notifier == nil {
		return
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Go(func() {
			if err := s.notifier.NotifyProductChanged(ctx, event.ProductChanged{
				ProductID: key.ProductID,
				Version:   &key.Version,
				Operation: event.OperationExpired,
			}); err != nil {
				s.logger.WarnContext(ctx, "error notifying expired product",
					slog.String("product_id", key.ProductID),
					slog.Any("error", err),
				)
			}
		})
	}
	wg.Wait()
}
