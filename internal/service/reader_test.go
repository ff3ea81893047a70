package service_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/log"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/service"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

func TestReaderGetLatest(t *testing.T) {
	ctx := context.Background()

	h := newHandles()
	for _, v := range []int64{100, 200, 150} {
		require.NoError(t, h.write.Store.PutItem(ctx, model.Product{ProductID: "p1", Version: v}, storage.PutOptions{}))
	}
	r := service.NewReader(h, log.NewDiscardLogger())

	t.Run("Should return the highest version", func(t *testing.T) {
		res, err := r.GetLatest(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(200), res.Product.Version)
		assert.False(t, res.Accelerated)
		assert.GreaterOrEqual(t, res.Latency.Nanoseconds(), int64(0))
	})

	t.Run("Should report the acceleration flag from configuration", func(t *testing.T) {
		h.accelerated = true
		defer func() { h.accelerated = false }()

		res, err := r.GetLatest(ctx, "p1")
		require.NoError(t, err)
		assert.True(t, res.Accelerated)
	})

	t.Run("Should report a missing product", func(t *testing.T) {
		_, err := r.GetLatest(ctx, "nope")
		assert.ErrorIs(t, err, apperr.NotFoundErr)
	})

	t.Run("Should require an id", func(t *testing.T) {
		_, err := r.GetLatest(ctx, "")
		assert.ErrorIs(t, err, apperr.ValidationErr)
	})

	t.Run("Should only use the read handle", func(t *testing.T) {
		writesBefore := h.write.total()
		_, _ = r.GetLatest(ctx, "p1")
		_, _ = r.List(ctx, service.ListParams{})
		assert.Equal(t, writesBefore, h.write.total())
		assert.Positive(t, h.read.total())
	})
}

func TestReaderList(t *testing.T) {
	ctx := context.Background()

	h := newHandles()
	for i := range 25 {
		category := "tools"
		if i%5 == 0 {
			category = "garden"
		}
		require.NoError(t, h.write.Store.PutItem(ctx, model.Product{
			ProductID: fmt.Sprintf("p%02d", i),
			Version:   1,
			Category:  category,
		}, storage.PutOptions{}))
	}
	r := service.NewReader(h, log.NewDiscardLogger())

	t.Run("Should bound the listing by limit", func(t *testing.T) {
		res, err := r.List(ctx, service.ListParams{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, res.Items, 10)
		assert.Equal(t, 10, res.Count)
		assert.True(t, res.HasMore)
	})

	t.Run("Should default the limit to 20", func(t *testing.T) {
		res, err := r.List(ctx, service.ListParams{Limit: -3})
		require.NoError(t, err)
		assert.Equal(t, service.DefaultListLimit, res.Count)
		assert.True(t, res.HasMore)
	})

	t.Run("Should filter by category through the index", func(t *testing.T) {
		res, err := r.List(ctx, service.ListParams{Category: "garden"})
		require.NoError(t, err)
		assert.Equal(t, 5, res.Count)
		assert.False(t, res.HasMore)
		for _, p := range res.Items {
			assert.Equal(t, "garden", p.Category)
		}
		assert.Equal(t, 1, h.read.calls["query_by_category"])
	})

	t.Run("Should return an empty list for an unknown category", func(t *testing.T) {
		res, err := r.List(ctx, service.ListParams{Category: "none"})
		require.NoError(t, err)
		assert.NotNil(t, res.Items)
		assert.Zero(t, res.Count)
	})
}
