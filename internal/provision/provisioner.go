// Package provision owns the store handles used by the request paths: a direct
// handle for writes and a possibly accelerated handle for reads.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
)

// DirectFactory builds a handle to the backing store.
type DirectFactory func(ctx context.Context) (storage.Store, error)

// AcceleratedFactory builds an acceleration handle in front of direct.
type AcceleratedFactory func(ctx context.Context, direct storage.Store) (storage.Store, error)

// Invalidator is implemented by read handles that cache results.
type Invalidator interface {
	InvalidateProduct(ctx context.Context, productID string) error
}

type Provisioner struct {
	newDirect      DirectFactory
	newAccelerated AcceleratedFactory
	configured     bool
	logger         *slog.Logger

	mu    sync.Mutex
	write storage.Store
	read  storage.Store
}

// New returns a provisioner. newAccelerated may be nil when acceleration is
// not configured.
func New(newDirect DirectFactory, newAccelerated AcceleratedFactory, accelerationConfigured bool, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		newDirect:      newDirect,
		newAccelerated: newAccelerated,
		configured:     accelerationConfigured,
		logger:         logger.With(slog.String("service", "provisioner")),
	}
}

// AccelerationConfigured reports whether an acceleration endpoint is
// configured, regardless of whether the cache could be reached.
func (p *Provisioner) AccelerationConfigured() bool {
	return p.configured
}

// WriteHandle returns the direct handle, building it on first use. A failed
// build is not remembered, so the next call tries again.
func (p *Provisioner) WriteHandle(ctx context.Context) (storage.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.write != nil {
		return p.write, nil
	}

	store, err := p.newDirect(ctx)
	if err != nil {
		return nil, fmt.Errorf("build direct store handle: %w", err)
	}
	p.write = store
	return store, nil
}

// ReadHandle returns the accelerated handle when it can be built, otherwise a
// direct handle. The outcome is resolved once.
func (p *Provisioner) ReadHandle(ctx context.Context) (storage.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.read != nil {
		return p.read, nil
	}

	direct, err := p.newDirect(ctx)
	if err != nil {
		return nil, fmt.Errorf("build direct store handle: %w", err)
	}

	if !p.configured || p.newAccelerated == nil {
		p.logger.WarnContext(ctx, "acceleration not configured, reads use the backing store")
		p.read = direct
		return direct, nil
	}

	accelerated, err := p.newAccelerated(ctx, direct)
	if err != nil {
		p.logger.WarnContext(ctx, "acceleration unavailable, reads use the backing store",
			slog.Any("error", err))
		p.read = direct
		return direct, nil
	}

	p.read = accelerated
	return accelerated, nil
}

// InvalidateProduct evicts cached entries for productID when the read handle
// is a cache. It does not build the read handle.
func (p *Provisioner) InvalidateProduct(ctx context.Context, productID string) error {
	p.mu.Lock()
	read := p.read
	p.mu.Unlock()

	inv, ok := read.(Invalidator)
	if !ok {
		return nil
	}
	return inv.InvalidateProduct(ctx, productID)
}

// Close releases the resources of every handle built so far.
func (p *Provisioner) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, h := range []storage.Store{p.read, p.write} {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	p.read, p.write = nil, nil

	return errors.Join(errs...)
}
