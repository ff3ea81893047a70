package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/event"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/memstore"
)

// countingStore records how often each store operation ran.
type countingStore struct {
	storage.Store

	mu    sync.Mutex
	calls map[string]int
}

func newCountingStore(table *memstore.Table) *countingStore {
	return &countingStore{Store: memstore.New(table), calls: map[string]int{}}
}

func (c *countingStore) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *countingStore) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingStore) PutItem(ctx context.Context, p model.Product, opts storage.PutOptions) error {
	c.count("put")
	return c.Store.PutItem(ctx, p, opts)
}

func (c *countingStore) UpdateItem(ctx context.Context, key model.Key, upd storage.Update) (model.Product, error) {
	c.count("update")
	return c.Store.UpdateItem(ctx, key, upd)
}

func (c *countingStore) DeleteItem(ctx context.Context, key model.Key) error {
	c.count("delete")
	return c.Store.DeleteItem(ctx, key)
}

func (c *countingStore) QueryByID(ctx context.Context, params storage.QueryByIDParams) (storage.Page, error) {
	c.count("query_by_id")
	return c.Store.QueryByID(ctx, params)
}

func (c *countingStore) QueryByCategory(ctx context.Context, params storage.QueryByCategoryParams) (storage.Page, error) {
	c.count("query_by_category")
	return c.Store.QueryByCategory(ctx, params)
}

func (c *countingStore) Scan(ctx context.Context, params storage.ScanParams) (storage.Page, error) {
	c.count("scan")
	return c.Store.Scan(ctx, params)
}

func (c *countingStore) BatchDelete(ctx context.Context, keys []model.Key) error {
	c.count("batch_delete")
	return c.Store.BatchDelete(ctx, keys)
}

// handles serves distinct write and read stores over one shared table so that
// tests can tell which handle an operation went through.
type handles struct {
	table       *memstore.Table
	write       *countingStore
	read        *countingStore
	accelerated bool
	writeErr    error
}

func newHandles() *handles {
	table := memstore.NewTable()
	return &handles{
		table: table,
		write: newCountingStore(table),
		read:  newCountingStore(table),
	}
}

func (h *handles) WriteHandle(context.Context) (storage.Store, error) {
	if h.writeErr != nil {
		return nil, h.writeErr
	}
	return h.write, nil
}

func (h *handles) ReadHandle(context.Context) (storage.Store, error) {
	return h.read, nil
}

func (h *handles) AccelerationConfigured() bool {
	return h.accelerated
}

type recordingNotifier struct {
	events []event.ProductChanged
	err    error
}

func (r *recordingNotifier) NotifyProductChanged(_ context.Context, ev event.ProductChanged) error {
	r.events = append(r.events, ev)
	return r.err
}

// preoccupiedStore writes an existing row at the key of every conditional put
// just before the put reaches the real store, so the put always collides.
type preoccupiedStore struct {
	storage.Store
	existing model.Product
}

func (s *preoccupiedStore) PutItem(ctx context.Context, p model.Product, opts storage.PutOptions) error {
	if opts.IfNotExists {
		s.existing.ProductID, s.existing.Version = p.ProductID, p.Version
		if err := s.Store.PutItem(ctx, s.existing, storage.PutOptions{}); err != nil {
			return err
		}
	}
	return s.Store.PutItem(ctx, p, opts)
}

type preoccupiedHandles struct {
	store *preoccupiedStore
}

func newPreoccupiedHandles(existing model.Product) preoccupiedHandles {
	return preoccupiedHandles{store: &preoccupiedStore{
		Store:    memstore.New(memstore.NewTable()),
		existing: existing,
	}}
}

func (h preoccupiedHandles) WriteHandle(context.Context) (storage.Store, error) {
	return h.store, nil
}

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}
