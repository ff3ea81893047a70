package model

import "time"

// DefaultTTL is how long a product created with the ttl flag lives before the
// backing store purges it.
const DefaultTTL = 30 * 24 * time.Hour

// Product is one version row of a catalog entity. The pair
// (ProductID, Version) is unique; the row with the highest Version is the
// current state of the entity.
type Product struct {
	ProductID   string  `json:"ProductID" dynamodbav:"ProductID"`
	Version     int64   `json:"Version" dynamodbav:"Version"`
	Name        string  `json:"Name,omitempty" dynamodbav:"Name,omitempty"`
	Category    string  `json:"Category,omitempty" dynamodbav:"Category,omitempty"`
	Price       float64 `json:"Price" dynamodbav:"Price"`
	Description string  `json:"Description" dynamodbav:"Description"`
	Stock       int     `json:"Stock" dynamodbav:"Stock"`
	CreatedAt   int64   `json:"CreatedAt,omitempty" dynamodbav:"CreatedAt,omitempty"`
	UpdatedAt   int64   `json:"UpdatedAt" dynamodbav:"UpdatedAt"`
	// ExpiresAt is in epoch seconds.
	ExpiresAt *int64 `json:"ExpiresAt,omitempty" dynamodbav:"ExpiresAt,omitempty"`
}

// Key returns the composite key of the row.
func (p Product) Key() Key {
	return Key{ProductID: p.ProductID, Version: p.Version}
}

// Expired reports whether the row has an expiry at or before nowSeconds.
func (p Product) Expired(nowSeconds int64) bool {
	return p.ExpiresAt != nil && *p.ExpiresAt <= nowSeconds
}

// Key identifies a single version row.
type Key struct {
	ProductID string `json:"ProductID" dynamodbav:"ProductID"`
	Version   int64  `json:"Version" dynamodbav:"Version"`
}
