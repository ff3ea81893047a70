// Package pgstore implements the backing store on a Postgres table keyed by
// (product_id, version).
package pgstore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/db"
)

var (
	_ storage.Store         = (*Store)(nil)
	_ storage.ExpirySweeper = (*Store)(nil)
)

const columns = "product_id, version, name, category, price, description, stock, created_at, updated_at, expires_at"

type Store struct {
	db             db.DB
	table          string
	requestTimeout time.Duration
	maxRetries     int
}

// New returns a store over the table named by cfg.Table.
func New(db db.DB, cfg config.Store) *Store {
	return &Store{
		db:             db,
		table:          pgx.Identifier{cfg.Table}.Sanitize(),
		requestTimeout: cfg.RequestTimeout,
		maxRetries:     cfg.MaxRetries,
	}
}

func (s *Store) PutItem(ctx context.Context, product model.Product, opts storage.PutOptions) error {
	price, err := toNumeric(product.Price)
	if err != nil {
		return err
	}
	stock, err := toInt4(product.Stock)
	if err != nil {
		return err
	}

	onConflict := "DO NOTHING"
	if !opts.IfNotExists {
		onConflict = `DO UPDATE SET
			name        = EXCLUDED.name,
			category    = EXCLUDED.category,
			price       = EXCLUDED.price,
			description = EXCLUDED.description,
			stock       = EXCLUDED.stock,
			created_at  = EXCLUDED.created_at,
			updated_at  = EXCLUDED.updated_at,
			expires_at  = EXCLUDED.expires_at`
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (@product_id, @version, @name, @category, @price, @description, @stock, @created_at, @updated_at, @expires_at)
		ON CONFLICT (product_id, version) %s`, s.table, columns, onConflict)

	var tag pgconn.CommandTag
	if err := s.do(ctx, func(ctx context.Context) error {
		var err error
		tag, err = s.db.Exec(ctx, query, pgx.NamedArgs{
			"product_id":  product.ProductID,
			"version":     product.Version,
			"name":        product.Name,
			"category":    product.Category,
			"price":       price,
			"description": product.Description,
			"stock":       stock,
			"created_at":  product.CreatedAt,
			"updated_at":  product.UpdatedAt,
			"expires_at":  product.ExpiresAt,
		})
		return err
	}); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	if opts.IfNotExists && tag.RowsAffected() == 0 {
		return storage.ErrConditionFailed
	}

	return nil
}

func (s *Store) UpdateItem(ctx context.Context, key model.Key, upd storage.Update) (model.Product, error) {
	cols := []string{"product_id", "version", "updated_at"}
	sets := []string{"updated_at = EXCLUDED.updated_at"}
	args := pgx.NamedArgs{
		"product_id": key.ProductID,
		"version":    key.Version,
		"updated_at": upd.UpdatedAt,
	}
	set := func(col string, v any) {
		cols = append(cols, col)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		args[col] = v
	}

	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Category != nil {
		set("category", *upd.Category)
	}
	if upd.Price != nil {
		price, err := toNumeric(*upd.Price)
		if err != nil {
			return model.Product{}, err
		}
		set("price", price)
	}
	if upd.Description != nil {
		set("description", *upd.Description)
	}
	if upd.Stock != nil {
		stock, err := toInt4(*upd.Stock)
		if err != nil {
			return model.Product{}, err
		}
		set("stock", stock)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (@%s)
		ON CONFLICT (product_id, version) DO UPDATE SET %s
		RETURNING %s`,
		s.table, strings.Join(cols, ", "), strings.Join(cols, ", @"), strings.Join(sets, ", "), columns)

	var product model.Product
	if err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, args)
		if err != nil {
			return err
		}
		row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[productRow])
		if err != nil {
			return err
		}
		product, err = row.toModel()
		return err
	}); err != nil {
		return model.Product{}, fmt.Errorf("upsert product attributes: %w", err)
	}

	return product, nil
}

func (s *Store) DeleteItem(ctx context.Context, key model.Key) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE product_id = $1 AND version = $2`, s.table)

	if err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, query, key.ProductID, key.Version)
		return err
	}); err != nil {
		return fmt.Errorf("delete product version: %w", err)
	}

	return nil
}

func (s *Store) QueryByID(ctx context.Context, params storage.QueryByIDParams) (storage.Page, error) {
	order := "ASC"
	if params.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE product_id = $1 ORDER BY version %s%s`,
		columns, s.table, order, limitClause(params.Limit))

	page, err := s.queryPage(ctx, params.Limit, query, params.ID)
	if err != nil {
		return storage.Page{}, fmt.Errorf("query product versions: %w", err)
	}
	return page, nil
}

func (s *Store) QueryByCategory(ctx context.Context, params storage.QueryByCategoryParams) (storage.Page, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE category = $1 ORDER BY product_id, version%s`,
		columns, s.table, limitClause(params.Limit))

	page, err := s.queryPage(ctx, params.Limit, query, params.Category)
	if err != nil {
		return storage.Page{}, fmt.Errorf("query products by category: %w", err)
	}
	return page, nil
}

func (s *Store) Scan(ctx context.Context, params storage.ScanParams) (storage.Page, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY product_id, version%s`,
		columns, s.table, limitClause(params.Limit))

	page, err := s.queryPage(ctx, params.Limit, query)
	if err != nil {
		return storage.Page{}, fmt.Errorf("scan products: %w", err)
	}
	return page, nil
}

func (s *Store) BatchDelete(ctx context.Context, keys []model.Key) error {
	if len(keys) == 0 {
		return nil
	}

	ids := make([]string, 0, len(keys))
	versions := make([]int64, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.ProductID)
		versions = append(versions, key.Version)
	}

	query := fmt.Sprintf(`
		DELETE FROM %s AS p
		USING (
			SELECT UNNEST(@ids::text[])     AS product_id,
			       UNNEST(@versions::bigint[]) AS version
		) AS k
		WHERE p.product_id = k.product_id AND p.version = k.version`, s.table)

	if err := s.do(ctx, func(ctx context.Context) error {
		_, err := s.db.Exec(ctx, query, pgx.NamedArgs{
			"ids":      ids,
			"versions": versions,
		})
		return err
	}); err != nil {
		return fmt.Errorf("batch delete product versions: %w", err)
	}

	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, nowSeconds int64, limit int) ([]model.Key, error) {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE (product_id, version) IN (
			SELECT product_id, version FROM %[1]s
			WHERE expires_at IS NOT NULL AND expires_at <= $1
			LIMIT $2
		)
		RETURNING product_id, version`, s.table)

	// LIMIT NULL is no limit.
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	var keys []model.Key
	if err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, nowSeconds, limitArg)
		if err != nil {
			return err
		}
		keys, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Key, error) {
			var key model.Key
			err := row.Scan(&key.ProductID, &key.Version)
			return key, err
		})
		return err
	}); err != nil {
		return nil, fmt.Errorf("delete expired products: %w", err)
	}

	return keys, nil
}

// queryPage fetches one row beyond limit to learn whether more rows exist.
func (s *Store) queryPage(ctx context.Context, limit int, query string, args ...any) (storage.Page, error) {
	var page storage.Page
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		productRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[productRow])
		if err != nil {
			return err
		}

		if limit > 0 && len(productRows) > limit {
			productRows = productRows[:limit]
			page.HasMore = true
		}

		page.Items = make([]model.Product, 0, len(productRows))
		for _, row := range productRows {
			product, err := row.toModel()
			if err != nil {
				return err
			}
			page.Items = append(page.Items, product)
		}
		return nil
	})
	return page, err
}

// do runs fn under the request timeout, retrying errors pgx reports as safe to retry.
func (s *Store) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()

		err := fn(ctx)
		if err != nil && !pgconn.SafeToRetry(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, storage.RetryOptions(s.maxRetries)...)
	return err
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit+1)
}

type productRow struct {
	ProductID   string         `db:"product_id"`
	Version     int64          `db:"version"`
	Name        string         `db:"name"`
	Category    string         `db:"category"`
	Price       pgtype.Numeric `db:"price"`
	Description string         `db:"description"`
	Stock       int32          `db:"stock"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
	ExpiresAt   *int64         `db:"expires_at"`
}

func (r productRow) toModel() (model.Product, error) {
	price, err := r.Price.Float64Value()
	if err != nil {
		return model.Product{}, fmt.Errorf("convert price to float64: %w", err)
	}

	return model.Product{
		ProductID:   r.ProductID,
		Version:     r.Version,
		Name:        r.Name,
		Category:    r.Category,
		Price:       price.Float64,
		Description: r.Description,
		Stock:       int(r.Stock),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ExpiresAt:   r.ExpiresAt,
	}, nil
}

func toNumeric(v float64) (pgtype.Numeric, error) {
	var price pgtype.Numeric
	if err := price.Scan(strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
		return price, fmt.Errorf("scan price: %w", err)
	}
	return price, nil
}

func toInt4(v int) (int32, error) {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, fmt.Errorf("stock quantity out of range: %d", v)
	}
	return int32(v), nil
}
