package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/provision"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/db"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/dynamostore"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/memstore"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/pgstore"
)

// backingStore connects to the configured driver on first use. Handles built
// by Direct share one connection pool or client. A failed connect is retried
// on the next call.
type backingStore struct {
	cfg   config.Store
	pgCfg config.Postgres

	mu     sync.Mutex
	pool   *pgxpool.Pool
	dynamo *dynamodb.Client
	table  *memstore.Table
}

func newBackingStore(cfg config.Store, pgCfg config.Postgres) *backingStore {
	return &backingStore{cfg: cfg, pgCfg: pgCfg}
}

func (b *backingStore) Direct(ctx context.Context) (storage.Store, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.cfg.Driver {
	case config.StoreDriverPostgres:
		pool, err := b.pgPool(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.New(db.NewClient(pool), b.cfg), nil
	case config.StoreDriverDynamoDB:
		if b.dynamo == nil {
			client, err := dynamostore.NewClient(ctx, b.cfg)
			if err != nil {
				return nil, fmt.Errorf("create dynamodb client: %w", err)
			}
			b.dynamo = client
		}
		return dynamostore.New(b.dynamo, b.cfg), nil
	case config.StoreDriverMemory:
		if b.table == nil {
			b.table = memstore.NewTable()
		}
		return memstore.New(b.table), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", b.cfg.Driver)
	}
}

// pgPool must be called with mu held.
func (b *backingStore) pgPool(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := db.NewPgxPool(ctx, b.pgCfg, b.cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	b.pool = pool
	return pool, nil
}

// NeedsSweeper reports whether expired rows must be purged by the service.
// DynamoDB expires rows through its own TTL.
func (b *backingStore) NeedsSweeper() bool {
	return b.cfg.Driver != config.StoreDriverDynamoDB
}

// Health returns a health checker for the backing store, or nil when it has none.
func (b *backingStore) Health() db.HealthChecker {
	if b.cfg.Driver != config.StoreDriverPostgres {
		return nil
	}
	return pgHealth{b}
}

func (b *backingStore) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		b.pool.Close()
		b.pool = nil
	}
}

type pgHealth struct {
	b *backingStore
}

func (h pgHealth) IsHealthy(ctx context.Context) (bool, error) {
	h.b.mu.Lock()
	pool, err := h.b.pgPool(ctx)
	h.b.mu.Unlock()
	if err != nil {
		return false, err
	}
	return db.NewClient(pool).IsHealthy(ctx)
}

// expirySweeper resolves the write handle on every sweep so that the sweeper
// never forces a connection at startup.
type expirySweeper struct {
	p *provision.Provisioner
}

func (e expirySweeper) DeleteExpired(ctx context.Context, nowSeconds int64, limit int) ([]model.Key, error) {
	store, err := e.p.WriteHandle(ctx)
	if err != nil {
		return nil, err
	}
	sweeper, ok := store.(storage.ExpirySweeper)
	if !ok {
		return nil, fmt.Errorf("store %T cannot delete expired rows", store)
	}
	return sweeper.DeleteExpired(ctx, nowSeconds, limit)
}
