// Package dispatch maps an operation kind to exactly one of the read or write
// paths. Reads may be accelerated; writes never are.
package dispatch

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/log"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/service"
)

var tracer = otel.Tracer("internal/dispatch")

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
	KindGet    Kind = "get"
	KindList   Kind = "list"
)

// Class is the path an operation runs on.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

var classes = map[Kind]Class{
	KindCreate: ClassWrite,
	KindUpdate: ClassWrite,
	KindDelete: ClassWrite,
	KindGet:    ClassRead,
	KindList:   ClassRead,
}

// Classify returns the path of kind, or false for an unknown kind.
func Classify(kind Kind) (Class, bool) {
	c, ok := classes[kind]
	return c, ok
}

const (
	cacheNoteAccelerated = "This read went through the acceleration cache. Subsequent reads of the same item should be faster (cache hit)."
	cacheNoteDirect      = "Acceleration is not configured. Reading directly from the backing store."
)

type Request struct {
	Kind Kind
	ID   string
	// Version selects a single row to delete.
	Version  *int64
	Fields   service.ProductFields
	Category string
	Limit    int
}

type Metadata struct {
	Accelerated    bool   `json:"accelerated"`
	Operation      Class  `json:"operation"`
	LatencyMs      *int64 `json:"latencyMs,omitempty"`
	HasMoreResults *bool  `json:"hasMoreResults,omitempty"`
	CacheNote      string `json:"cacheNote,omitempty"`
}

type Result struct {
	Message  string
	Product  *model.Product
	Products []model.Product
	Count    *int
	Metadata Metadata
}

type ProductWriter interface {
	Create(ctx context.Context, fields service.ProductFields) (model.Product, error)
	Update(ctx context.Context, id string, fields service.ProductFields) (model.Product, error)
	Delete(ctx context.Context, id string, version *int64) error
}

type ProductReader interface {
	GetLatest(ctx context.Context, id string) (service.GetResult, error)
	List(ctx context.Context, params service.ListParams) (service.ListResult, error)
}

type Dispatcher struct {
	table  string
	writer ProductWriter
	reader ProductReader
}

// New returns a dispatcher. An empty table fails every request with a
// configuration error before any store is touched.
func New(table string, writer ProductWriter, reader ProductReader) *Dispatcher {
	return &Dispatcher{
		table:  table,
		writer: writer,
		reader: reader,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher.Dispatch",
		trace.WithAttributes(attribute.String("catalog.operation", string(req.Kind))),
	)
	defer span.End()

	ctx = log.WithAttrs(ctx, slog.String("operation", string(req.Kind)))
	if req.ID != "" {
		ctx = log.WithAttrs(ctx, slog.String("product_id", req.ID))
	}

	res, err := d.dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("catalog.class", string(res.Metadata.Operation)),
		attribute.Bool("catalog.accelerated", res.Metadata.Accelerated),
	)
	return res, nil
}

// CheckConfigured fails with a configuration error while no table is set.
// Callers that parse input run it first so the error reaches every request.
func (d *Dispatcher) CheckConfigured() error {
	if d.table == "" {
		return apperr.ConfigurationErr
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (Result, error) {
	if err := d.CheckConfigured(); err != nil {
		return Result{}, err
	}

	class, ok := Classify(req.Kind)
	if !ok {
		return Result{}, apperr.RouteNotFoundErr
	}

	if req.Kind != KindCreate && req.Kind != KindList && req.ID == "" {
		return Result{}, apperr.ProductIDRequiredErr
	}

	if class == ClassWrite {
		return d.write(ctx, req)
	}
	return d.read(ctx, req)
}

func (d *Dispatcher) write(ctx context.Context, req Request) (Result, error) {
	meta := Metadata{Operation: ClassWrite}

	switch req.Kind {
	case KindCreate:
		p, err := d.writer.Create(ctx, req.Fields)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: "Product created successfully", Product: &p, Metadata: meta}, nil
	case KindUpdate:
		p, err := d.writer.Update(ctx, req.ID, req.Fields)
		if err != nil {
			return Result{}, err
		}
		return Result{Message: "Product updated successfully", Product: &p, Metadata: meta}, nil
	default:
		if err := d.writer.Delete(ctx, req.ID, req.Version); err != nil {
			return Result{}, err
		}
		return Result{Message: "Product deleted successfully", Metadata: meta}, nil
	}
}

func (d *Dispatcher) read(ctx context.Context, req Request) (Result, error) {
	if req.Kind == KindGet {
		res, err := d.reader.GetLatest(ctx, req.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Product:  &res.Product,
			Metadata: readMetadata(res.Accelerated, res.Latency.Milliseconds(), nil),
		}, nil
	}

	res, err := d.reader.List(ctx, service.ListParams{Category: req.Category, Limit: req.Limit})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Products: res.Items,
		Count:    &res.Count,
		Metadata: readMetadata(res.Accelerated, res.Latency.Milliseconds(), &res.HasMore),
	}, nil
}

func readMetadata(accelerated bool, latencyMs int64, hasMore *bool) Metadata {
	note := cacheNoteDirect
	if accelerated {
		note = cacheNoteAccelerated
	}
	return Metadata{
		Accelerated:    accelerated,
		Operation:      ClassRead,
		LatencyMs:      &latencyMs,
		HasMoreResults: hasMore,
		CacheNote:      note,
	}
}
