// Package accel implements the acceleration handle: a Redis read-through cache
// that satisfies storage.Store over any backing store.
//
// Cached pages live in one hash per lookup shape:
//
//	<prefix>:id:<productID>   field <order>:<limit>
//	<prefix>:cat:<category>   field <limit>
//	<prefix>:scan             field <limit>
//
// The set <prefix>:cats lists the category hashes so that a change to any
// product can drop every listing it may appear in.
package accel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

// ErrUnavailable is returned when the acceleration endpoint cannot be reached
// or is not configured.
var ErrUnavailable = errors.New("acceleration cache unavailable")

var _ storage.Store = (*Store)(nil)

var lookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "acceleration_cache_lookups_total",
		Help: "Acceleration cache lookups by operation and result.",
	},
	[]string{"operation", "result"},
)

func init() {
	prometheus.MustRegister(lookups)
}

type Store struct {
	client  redis.UniversalClient
	backing storage.Store
	ttl     time.Duration
	prefix  string
	logger  *slog.Logger
}

// New connects to the configured endpoint and returns a cache over backing.
// Any failure is reported as ErrUnavailable.
func New(ctx context.Context, cfg config.Acceleration, backing storage.Store, logger *slog.Logger) (*Store, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("no endpoint: %w", ErrUnavailable)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Endpoint,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w: %w", cfg.Endpoint, ErrUnavailable, err)
	}

	return NewWithClient(client, cfg, backing, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, cfg config.Acceleration, backing storage.Store, logger *slog.Logger) *Store {
	return &Store{
		client:  client,
		backing: backing,
		ttl:     cfg.TTL,
		prefix:  cfg.KeyPrefix,
		logger: logger.With(
			slog.String("service", "acceleration"),
			slog.String("endpoint", cfg.Endpoint),
			slog.String("region", cfg.Region),
		),
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) QueryByID(ctx context.Context, params storage.QueryByIDParams) (storage.Page, error) {
	order := "asc"
	if params.Descending {
		order = "desc"
	}
	field := order + ":" + strconv.Itoa(params.Limit)

	return s.readThrough(ctx, "query_by_id", s.idKey(params.ID), field, func(ctx context.Context) (storage.Page, error) {
		return s.backing.QueryByID(ctx, params)
	})
}

func (s *Store) QueryByCategory(ctx context.Context, params storage.QueryByCategoryParams) (storage.Page, error) {
	key := s.categoryKey(params.Category)

	return s.readThrough(ctx, "query_by_category", key, strconv.Itoa(params.Limit), func(ctx context.Context) (storage.Page, error) {
		return s.backing.QueryByCategory(ctx, params)
	}, key)
}

func (s *Store) Scan(ctx context.Context, params storage.ScanParams) (storage.Page, error) {
	return s.readThrough(ctx, "scan", s.scanKey(), strconv.Itoa(params.Limit), func(ctx context.Context) (storage.Page, error) {
		return s.backing.Scan(ctx, params)
	})
}

func (s *Store) PutItem(ctx context.Context, product model.Product, opts storage.PutOptions) error {
	if err := s.backing.PutItem(ctx, product, opts); err != nil {
		return err
	}
	s.invalidateQuietly(ctx, product.ProductID)
	return nil
}

func (s *Store) UpdateItem(ctx context.Context, key model.Key, upd storage.Update) (model.Product, error) {
	product, err := s.backing.UpdateItem(ctx, key, upd)
	if err != nil {
		return model.Product{}, err
	}
	s.invalidateQuietly(ctx, key.ProductID)
	return product, nil
}

func (s *Store) DeleteItem(ctx context.Context, key model.Key) error {
	if err := s.backing.DeleteItem(ctx, key); err != nil {
		return err
	}
	s.invalidateQuietly(ctx, key.ProductID)
	return nil
}

func (s *Store) BatchDelete(ctx context.Context, keys []model.Key) error {
	if err := s.backing.BatchDelete(ctx, keys); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key.ProductID]; ok {
			continue
		}
		seen[key.ProductID] = struct{}{}
		s.invalidateQuietly(ctx, key.ProductID)
	}
	return nil
}

// InvalidateProduct drops the cached versions of productID along with every
// cached listing, since any listing may contain the product.
func (s *Store) InvalidateProduct(ctx context.Context, productID string) error {
	categories, err := s.client.SMembers(ctx, s.categoriesKey()).Result()
	if err != nil {
		return fmt.Errorf("list cached categories: %w", err)
	}

	keys := append([]string{s.idKey(productID), s.scanKey(), s.categoriesKey()}, categories...)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete cached pages: %w", err)
	}

	return nil
}

// readThrough serves field of the hash at key, loading and caching it on a
// miss. Cache errors fall back to load without failing the read. Any extra
// members are added to the category set alongside the cached page.
func (s *Store) readThrough(
	ctx context.Context,
	op, key, field string,
	load func(ctx context.Context) (storage.Page, error),
	categoryMembers ...string,
) (storage.Page, error) {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	switch {
	case err == nil:
		var page storage.Page
		if err := json.Unmarshal(data, &page); err == nil {
			lookups.WithLabelValues(op, "hit").Inc()
			return page, nil
		}
		s.logger.WarnContext(ctx, "discarding undecodable cache entry",
			slog.String("key", key), slog.Any("error", err))
	case errors.Is(err, redis.Nil):
	default:
		lookups.WithLabelValues(op, "error").Inc()
		s.logger.WarnContext(ctx, "cache read failed, reading backing store",
			slog.String("key", key), slog.Any("error", err))
		return load(ctx)
	}

	lookups.WithLabelValues(op, "miss").Inc()
	page, err := load(ctx)
	if err != nil {
		return storage.Page{}, err
	}

	if err := s.store(ctx, key, field, page, categoryMembers); err != nil {
		s.logger.WarnContext(ctx, "cache fill failed",
			slog.String("key", key), slog.Any("error", err))
	}

	return page, nil
}

func (s *Store) store(ctx context.Context, key, field string, page storage.Page, categoryMembers []string) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, data)
		pipe.Expire(ctx, key, s.ttl)
		if len(categoryMembers) > 0 {
			members := make([]any, len(categoryMembers))
			for i, m := range categoryMembers {
				members[i] = m
			}
			pipe.SAdd(ctx, s.categoriesKey(), members...)
			pipe.Expire(ctx, s.categoriesKey(), s.ttl)
		}
		return nil
	})
	return err
}

func (s *Store) invalidateQuietly(ctx context.Context, productID string) {
	if err := s.InvalidateProduct(ctx, productID); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed",
			slog.String("product_id", productID), slog.Any("error", err))
	}
}

func (s *Store) idKey(id string) string {
	return s.prefix + ":id:" + id
}

func (s *Store) categoryKey(category string) string {
	return s.prefix + ":cat:" + category
}

func (s *Store) scanKey() string {
	return s.prefix + ":scan"
}

func (s *Store) categoriesKey() string {
	return s.prefix + ":cats"
}
