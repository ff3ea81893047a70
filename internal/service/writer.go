package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/apperr"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/event"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/model"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/validator"
)

// Clock returns the current time.
type Clock func() time.Time

// WriteHandler hands out the direct store handle. The writer never sees the
// read handle.
type WriteHandler interface {
	WriteHandle(ctx context.Context) (storage.Store, error)
}

// ChangeNotifier is told about every successful write.
type ChangeNotifier interface {
	NotifyProductChanged(ctx context.Context, ev event.ProductChanged) error
}

// Writer implements create, update and delete against the backing store.
type Writer struct {
	handles   WriteHandler
	notifier  ChangeNotifier
	validator validator.Validator
	now       Clock
	logger    *slog.Logger
}

func NewWriter(
	handles WriteHandler,
	notifier ChangeNotifier,
	validator validator.Validator,
	now Clock,
	logger *slog.Logger,
) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{
		handles:   handles,
		notifier:  notifier,
		validator: validator,
		now:       now,
		logger:    logger.With(slog.String("service", "writer")),
	}
}

// Create stores a new product at Version = now in milliseconds. It never
// overwrites an existing (ProductID, Version) row.
func (w *Writer) Create(ctx context.Context, fields ProductFields) (model.Product, error) {
	in := fields.createInput()
	if err := w.validator.Validate(in); err != nil {
		return model.Product{}, validationError(err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return model.Product{}, fmt.Errorf("generate uuid v4: %w", err)
	}

	now := w.now()
	ts := now.UnixMilli()
	product := model.Product{
		ProductID:   id.String(),
		Version:     ts,
		Name:        in.Name,
		Category:    in.Category,
		Price:       *in.Price,
		Description: ptr.Deref(fields.Description),
		Stock:       int(ptr.Deref(in.Stock)),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if fields.TTL {
		expiresAt := now.Add(model.DefaultTTL).Unix()
		product.ExpiresAt = &expiresAt
	}

	store, err := w.writeHandle(ctx)
	if err != nil {
		return model.Product{}, err
	}

	if err := store.PutItem(ctx, product, storage.PutOptions{IfNotExists: true}); err != nil {
		if errors.Is(err, storage.ErrConditionFailed) {
			return model.Product{}, apperr.ConflictErr.WrapParent(err)
		}
		return model.Product{}, storeError("create product", err)
	}

	w.notify(ctx, event.ProductChanged{
		ProductID: product.ProductID,
		Version:   &product.Version,
		Operation: event.OperationCreated,
	})

	return product, nil
}

// Update writes the supplied attributes to (id, version), or to (id, now)
// when no version is given, creating the row if it does not exist.
func (w *Writer) Update(ctx context.Context, id string, fields ProductFields) (model.Product, error) {
	if id == "" {
		return model.Product{}, apperr.ProductIDRequiredErr
	}

	in := fields.updateInput()
	if err := w.validator.Validate(in); err != nil {
		return model.Product{}, validationError(err)
	}

	ts := w.now().UnixMilli()
	key := model.Key{ProductID: id, Version: ts}
	if fields.Version != nil && *fields.Version != 0 {
		key.Version = int64(*fields.Version)
	}

	upd := storage.Update{
		Name:        fields.Name,
		Category:    fields.Category,
		Description: fields.Description,
		Price:       in.Price,
		UpdatedAt:   ts,
	}
	if in.Stock != nil {
		stock := int(*in.Stock)
		upd.Stock = &stock
	}

	store, err := w.writeHandle(ctx)
	if err != nil {
		return model.Product{}, err
	}

	product, err := store.UpdateItem(ctx, key, upd)
	if err != nil {
		return model.Product{}, storeError("update product", err)
	}

	w.notify(ctx, event.ProductChanged{
		ProductID: id,
		Version:   &key.Version,
		Operation: event.OperationUpdated,
	})

	return product, nil
}

// Delete removes one version, or every version when version is nil. Versions
// written after the enumeration step survive a full delete.
func (w *Writer) Delete(ctx context.Context, id string, version *int64) error {
	if id == "" {
		return apperr.ProductIDRequiredErr
	}

	store, err := w.writeHandle(ctx)
	if err != nil {
		return err
	}

	if version != nil {
		if err := store.DeleteItem(ctx, model.Key{ProductID: id, Version: *version}); err != nil {
			return storeError("delete product version", err)
		}
		w.notify(ctx, event.ProductChanged{ProductID: id, Version: version, Operation: event.OperationDeleted})
		return nil
	}

	page, err := store.QueryByID(ctx, storage.QueryByIDParams{ID: id})
	if err != nil {
		return storeError("list product versions", err)
	}
	if len(page.Items) == 0 {
		return nil
	}

	keys := make([]model.Key, 0, len(page.Items))
	for _, p := range page.Items {
		keys = append(keys, p.Key())
	}

	if err := store.BatchDelete(ctx, keys); err != nil {
		return storeError("delete product versions", err)
	}

	w.notify(ctx, event.ProductChanged{ProductID: id, Operation: event.OperationDeleted})
	return nil
}

func (w *Writer) writeHandle(ctx context.Context) (storage.Store, error) {
	store, err := w.handles.WriteHandle(ctx)
	if err != nil {
		return nil, storeError("connect to store", err)
	}
	return store, nil
}

func (w *Writer) notify(ctx context.Context, ev event.ProductChanged) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.NotifyProductChanged(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "notify product changed",
			slog.String("product_id", ev.ProductID),
			slog.String("operation", string(ev.Operation)),
			slog.Any("error", err),
		)
	}
}

func validationError(err error) error {
	if missing := validator.MissingFields(err); len(missing) > 0 {
		return apperr.ValidationErr.
			WithMsg("Missing required fields: " + strings.Join(missing, ", ")).
			WrapParent(err)
	}
	return apperr.ValidationErr.WrapParent(err)
}

func storeError(op string, err error) error {
	return apperr.StoreErr.
		WithMsg(fmt.Sprintf("failed to %s: %v", op, err)).
		WrapParent(err)
}
