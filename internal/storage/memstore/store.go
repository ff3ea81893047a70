// Package memstore is an in-process Store used for local development and tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.ExpirySweeper = (*Store)(nil)
)

// Table holds the rows. Several Store handles may share one Table, the way
// several clients share one remote table.
type Table struct {
	mu   sync.RWMutex
	rows map[model.Key]model.Product
}

func NewTable() *Table {
	return &Table{rows: make(map[model.Key]model.Product)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Store is a handle over a Table.
type Store struct {
	table *Table
}

func New(table *Table) *Store {
	return &Store{table: table}
}

func (s *Store) PutItem(_ context.Context, product model.Product, opts storage.PutOptions) error {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	key := product.Key()
	if _, exists := s.table.rows[key]; exists && opts.IfNotExists {
		return storage.ErrConditionFailed
	}
	s.table.rows[key] = product
	return nil
}

func (s *Store) UpdateItem(_ context.Context, key model.Key, upd storage.Update) (model.Product, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	row, exists := s.table.rows[key]
	if !exists {
		row = model.Product{ProductID: key.ProductID, Version: key.Version}
	}
	row = upd.Apply(row)
	s.table.rows[key] = row
	return row, nil
}

func (s *Store) DeleteItem(_ context.Context, key model.Key) error {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	delete(s.table.rows, key)
	return nil
}

func (s *Store) QueryByID(_ context.Context, params storage.QueryByIDParams) (storage.Page, error) {
	rows := s.filter(func(p model.Product) bool { return p.ProductID == params.ID })
	slices.SortFunc(rows, func(a, b model.Product) int {
		if params.Descending {
			return cmp.Compare(b.Version, a.Version)
		}
		return cmp.Compare(a.Version, b.Version)
	})
	return paginate(rows, params.Limit), nil
}

func (s *Store) QueryByCategory(_ context.Context, params storage.QueryByCategoryParams) (storage.Page, error) {
	rows := s.filter(func(p model.Product) bool { return p.Category == params.Category })
	slices.SortFunc(rows, compareKeys)
	return paginate(rows, params.Limit), nil
}

func (s *Store) Scan(_ context.Context, params storage.ScanParams) (storage.Page, error) {
	rows := s.filter(func(model.Product) bool { return true })
	slices.SortFunc(rows, compareKeys)
	return paginate(rows, params.Limit), nil
}

func (s *Store) BatchDelete(_ context.Context, keys []model.Key) error {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	for _, key := range keys {
		delete(s.table.rows, key)
	}
	return nil
}

func (s *Store) DeleteExpired(_ context.Context, nowSeconds int64, limit int) ([]model.Key, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	var keys []model.Key
	for key, row := range s.table.rows {
		if limit > 0 && len(keys) >= limit {
			break
		}
		if row.Expired(nowSeconds) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		delete(s.table.rows, key)
	}
	return keys, nil
}

func (s *Store) filter(match func(model.Product) bool) []model.Product {
	s.table.mu.RLock()
	defer s.table.mu.RUnlock()

	var rows []model.Product
	for _, row := range s.table.rows {
		if match(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

func compareKeys(a, b model.Product) int {
	if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
		return c
	}
	return cmp.Compare(a.Version, b.Version)
}

func paginate(rows []model.Product, limit int) storage.Page {
	if limit <= 0 || len(rows) <= limit {
		return storage.Page{Items: rows}
	}
	return storage.Page{Items: rows[:limit], HasMore: true}
}
