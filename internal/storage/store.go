package storage

import (
	"context"
	"errors"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
)

// ErrConditionFailed is returned by PutItem when the write condition does not hold.
var ErrConditionFailed = errors.New("storage: condition check failed")

// Store is the capability set required of a backing store, and of anything
// substituted for one such as the acceleration cache.
type Store interface {
	// PutItem writes a full row. With IfNotExists it fails with
	// ErrConditionFailed when a row with the same key already exists.
	PutItem(ctx context.Context, product model.Product, opts PutOptions) error
	// UpdateItem writes only the attributes set in upd, creating the row when
	// absent, and returns the full row after the write.
	UpdateItem(ctx context.Context, key model.Key, upd Update) (model.Product, error)
	// DeleteItem removes a single row. Deleting a missing row is not an error.
	DeleteItem(ctx context.Context, key model.Key) error
	// QueryByID returns the rows of one product ordered by version.
	QueryByID(ctx context.Context, params QueryByIDParams) (Page, error)
	// QueryByCategory returns rows through the category index.
	QueryByCategory(ctx context.Context, params QueryByCategoryParams) (Page, error)
	// Scan returns rows in no particular order.
	Scan(ctx context.Context, params ScanParams) (Page, error)
	// BatchDelete removes every listed row. It is not atomic across rows.
	BatchDelete(ctx context.Context, keys []model.Key) error
}

// ExpirySweeper is implemented by stores that cannot purge expired rows on their own.
type ExpirySweeper interface {
	// DeleteExpired deletes up to limit rows whose ExpiresAt is at or before
	// nowSeconds and returns their keys.
	DeleteExpired(ctx context.Context, nowSeconds int64, limit int) ([]model.Key, error)
}

type PutOptions struct {
	IfNotExists bool
}

// Update lists the attributes of a partial write. Nil fields are left untouched.
type Update struct {
	Name        *string
	Category    *string
	Price       *float64
	Description *string
	Stock       *int
	UpdatedAt   int64
}

// QueryByIDParams selects the rows of one product. A zero Limit is unbounded.
type QueryByIDParams struct {
	ID         string
	Descending bool
	Limit      int
}

type QueryByCategoryParams struct {
	Category string
	Limit    int
}

type ScanParams struct {
	Limit int
}

// Page is a bounded result set. HasMore is true when rows beyond the limit exist.
type Page struct {
	Items   []model.Product
	HasMore bool
}

// Apply returns p with the attributes of u written over it.
func (u Update) Apply(p model.Product) model.Product {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Category != nil {
		p.Category = *u.Category
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	p.UpdatedAt = u.UpdatedAt
	return p
}
