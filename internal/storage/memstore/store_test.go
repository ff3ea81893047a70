package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/memstore"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

func TestStore(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *memstore.Store {
		t.Helper()
		s := memstore.New(memstore.NewTable())
		for _, p := range []model.Product{
			{ProductID: "a", Version: 100, Name: "A", Category: "tools"},
			{ProductID: "a", Version: 200, Name: "A2", Category: "tools"},
			{ProductID: "a", Version: 150, Name: "A1", Category: "tools"},
			{ProductID: "b", Version: 100, Name: "B", Category: "garden"},
		} {
			require.NoError(t, s.PutItem(ctx, p, storage.PutOptions{}))
		}
		return s
	}

	t.Run("Should refuse to overwrite with IfNotExists", func(t *testing.T) {
		s := seed(t)

		err := s.PutItem(ctx, model.Product{ProductID: "a", Version: 100, Name: "other"}, storage.PutOptions{IfNotExists: true})
		assert.ErrorIs(t, err, storage.ErrConditionFailed)

		page, err := s.QueryByID(ctx, storage.QueryByIDParams{ID: "a"})
		require.NoError(t, err)
		assert.Equal(t, "A", page.Items[0].Name)
	})

	t.Run("Should order versions descending", func(t *testing.T) {
		s := seed(t)

		page, err := s.QueryByID(ctx, storage.QueryByIDParams{ID: "a", Descending: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, int64(200), page.Items[0].Version)
		assert.True(t, page.HasMore)
	})

	t.Run("Should update only supplied attributes", func(t *testing.T) {
		s := seed(t)

		row, err := s.UpdateItem(ctx, model.Key{ProductID: "b", Version: 100}, storage.Update{
			Price:     ptr.New(19.99),
			UpdatedAt: 300,
		})
		require.NoError(t, err)
		assert.Equal(t, "B", row.Name)
		assert.Equal(t, "garden", row.Category)
		assert.Equal(t, 19.99, row.Price)
		assert.Equal(t, int64(300), row.UpdatedAt)
	})

	t.Run("Should create the row when updating a missing key", func(t *testing.T) {
		s := seed(t)

		row, err := s.UpdateItem(ctx, model.Key{ProductID: "c", Version: 5}, storage.Update{Name: ptr.New("C"), UpdatedAt: 5})
		require.NoError(t, err)
		assert.Equal(t, model.Product{ProductID: "c", Version: 5, Name: "C", UpdatedAt: 5}, row)
	})

	t.Run("Should query category and scan with limits", func(t *testing.T) {
		s := seed(t)

		page, err := s.QueryByCategory(ctx, storage.QueryByCategoryParams{Category: "tools", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
		assert.True(t, page.HasMore)

		page, err = s.Scan(ctx, storage.ScanParams{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page.Items, 4)
		assert.False(t, page.HasMore)
	})

	t.Run("Should batch delete and sweep expired rows", func(t *testing.T) {
		s := seed(t)

		require.NoError(t, s.BatchDelete(ctx, []model.Key{{ProductID: "a", Version: 100}, {ProductID: "a", Version: 150}}))
		require.NoError(t, s.PutItem(ctx, model.Product{ProductID: "d", Version: 1, ExpiresAt: ptr.New(int64(10))}, storage.PutOptions{}))

		keys, err := s.DeleteExpired(ctx, 10, 100)
		require.NoError(t, err)
		assert.Equal(t, []model.Key{{ProductID: "d", Version: 1}}, keys)

		page, err := s.Scan(ctx, storage.ScanParams{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
	})
}
