package pgstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/db"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/pgstore"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

func newStore(t *testing.T) *pgstore.Store {
	t.Helper()

	if os.Getenv("POSTGRES_HOST") == "" {
		t.Skip("POSTGRES_HOST not set, skipping postgres store tests")
	}

	table := fmt.Sprintf("products_test_%d", time.Now().UnixNano())
	t.Setenv("TABLE_NAME", table)

	type Config struct {
		Postgres config.Postgres
		Store    config.Store
	}
	cfg, err := config.New[Config]()
	require.NoError(t, err)

	ctx := context.Background()
	pool, err := db.NewPgxPool(ctx, cfg.Postgres, cfg.Store)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table))
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS goose_db_version`)
		pool.Close()
	})

	require.NoError(t, migrate(ctx, pool))

	return pgstore.New(db.NewClient(pool), cfg.Store)
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, _ = pool.Exec(ctx, `DROP TABLE IF EXISTS goose_db_version`)
	return db.Migrate(ctx, pool)
}

func TestStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	for _, v := range []int64{100, 200, 150} {
		require.NoError(t, s.PutItem(ctx, model.Product{
			ProductID: id, Version: v, Name: "Widget", Category: "tools", Price: 9.99, CreatedAt: v, UpdatedAt: v,
		}, storage.PutOptions{IfNotExists: true}))
	}

	t.Run("Should fail the condition on a reused key", func(t *testing.T) {
		err := s.PutItem(ctx, model.Product{ProductID: id, Version: 100, Name: "Other"}, storage.PutOptions{IfNotExists: true})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)
	})

	t.Run("Should return the latest version first", func(t *testing.T) {
		page, err := s.QueryByID(ctx, storage.QueryByIDParams{ID: id, Descending: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(200), page.Items[0].Version)
		assert.Equal(t, "Widget", page.Items[0].Name)
		assert.True(t, page.HasMore)
	})

	t.Run("Should update only supplied attributes", func(t *testing.T) {
		row, err := s.UpdateItem(ctx, model.Key{ProductID: id, Version: 150}, storage.Update{
			Price:     ptr.New(19.99),
			UpdatedAt: 999,
		})
		require.NoError(t, err)
		assert.Equal(t, "Widget", row.Name)
		assert.Equal(t, "tools", row.Category)
		assert.InDelta(t, 19.99, row.Price, 0.001)
		assert.Equal(t, int64(999), row.UpdatedAt)
	})

	t.Run("Should list through the category index", func(t *testing.T) {
		page, err := s.QueryByCategory(ctx, storage.QueryByCategoryParams{Category: "tools", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
		assert.True(t, page.HasMore)
	})

	t.Run("Should batch delete every version", func(t *testing.T) {
		require.NoError(t, s.BatchDelete(ctx, []model.Key{
			{ProductID: id, Version: 100}, {ProductID: id, Version: 150}, {ProductID: id, Version: 200},
		}))

		page, err := s.QueryByID(ctx, storage.QueryByIDParams{ID: id})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
	})

	t.Run("Should delete expired rows", func(t *testing.T) {
		require.NoError(t, s.PutItem(ctx, model.Product{ProductID: id, Version: 1, ExpiresAt: ptr.New(int64(10))}, storage.PutOptions{}))

		keys, err := s.DeleteExpired(ctx, 10, 100)
		require.NoError(t, err)
		assert.Equal(t, []model.Key{{ProductID: id, Version: 1}}, keys)
	})
}
