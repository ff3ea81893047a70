package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

// DefaultListLimit is used when a listing is requested without a positive limit.
const DefaultListLimit = 20

var readLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "catalog_read_duration_seconds",
		Help:    "Duration of catalog reads by operation and acceleration.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"operation", "accelerated"},
)

func init() {
	prometheus.MustRegister(readLatency)
}

// ReadHandler hands out the read handle, which may be accelerated.
type ReadHandler interface {
	ReadHandle(ctx context.Context) (storage.Store, error)
	AccelerationConfigured() bool
}

type GetResult struct {
	Product     model.Product
	Accelerated bool
	Latency     time.Duration
}

type ListParams struct {
	Category string
	Limit    int
}

type ListResult struct {
	Items       []model.Product
	Count       int
	HasMore     bool
	Accelerated bool
	Latency     time.Duration
}

// Reader implements the read operations. Only the read handle is used.
type Reader struct {
	handles ReadHandler
	logger  *slog.Logger
}

func NewReader(handles ReadHandler, logger *slog.Logger) *Reader {
	return &Reader{
		handles: handles,
		logger:  logger.With(slog.String("service", "reader")),
	}
}

// GetLatest returns the row with the highest version of id.
func (r *Reader) GetLatest(ctx context.Context, id string) (GetResult, error) {
	if id == "" {
		return GetResult{}, apperr.ProductIDRequiredErr
	}

	store, err := r.readHandle(ctx)
	if err != nil {
		return GetResult{}, err
	}

	accelerated := r.handles.AccelerationConfigured()
	start := time.Now()
	page, err := store.QueryByID(ctx, storage.QueryByIDParams{ID: id, Descending: true, Limit: 1})
	latency := r.observe("get", accelerated, start)
	if err != nil {
		return GetResult{}, storeError("get product", err)
	}

	if len(page.Items) == 0 {
		return GetResult{}, apperr.NotFoundErr
	}

	r.logger.DebugContext(ctx, "product read",
		slog.String("product_id", id),
		slog.Bool("accelerated", accelerated),
		slog.Duration("latency", latency),
	)

	return GetResult{
		Product:     page.Items[0],
		Accelerated: accelerated,
		Latency:     latency,
	}, nil
}

// List returns up to params.Limit products of a category, or of the whole
// table when no category is given.
func (r *Reader) List(ctx context.Context, params ListParams) (ListResult, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	store, err := r.readHandle(ctx)
	if err != nil {
		return ListResult{}, err
	}

	accelerated := r.handles.AccelerationConfigured()
	start := time.Now()
	var page storage.Page
	if params.Category != "" {
		page, err = store.QueryByCategory(ctx, storage.QueryByCategoryParams{Category: params.Category, Limit: limit})
	} else {
		page, err = store.Scan(ctx, storage.ScanParams{Limit: limit})
	}
	latency := r.observe("list", accelerated, start)
	if err != nil {
		return ListResult{}, storeError("list products", err)
	}

	items := page.Items
	if items == nil {
		items = []model.Product{}
	}

	return ListResult{
		Items:       items,
		Count:       len(items),
		HasMore:     page.HasMore,
		Accelerated: accelerated,
		Latency:     latency,
	}, nil
}

func (r *Reader) readHandle(ctx context.Context) (storage.Store, error) {
	store, err := r.handles.ReadHandle(ctx)
	if err != nil {
		return nil, storeError("connect to store", err)
	}
	return store, nil
}

func (r *Reader) observe(op string, accelerated bool, start time.Time) time.Duration {
	latency := time.Since(start)
	readLatency.WithLabelValues(op, strconv.FormatBool(accelerated)).Observe(latency.Seconds())
	return latency
}
