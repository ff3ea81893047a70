// Package event announces product changes so that cached reads can be
// invalidated on every instance.
package event

// Operation names the kind of write that changed a product.
type Operation string

const (
	OperationCreated Operation = "created"
	OperationUpdated Operation = "updated"
	OperationDeleted Operation = "deleted"
	OperationExpired Operation = "expired"
)

// ProductChanged is published after a successful write. A nil Version means
// every version of the product was affected.
type ProductChanged struct {
	ProductID string    `json:"product_id"`
	Version   *int64    `json:"version,omitempty"`
	Operation Operation `json:"operation"`
}
