package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

// Number is a JSON number that also accepts a numeric string such as "19.99".
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*n = Number(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// ProductFields is the client supplied payload of create and update. Absent
// attributes are nil.
type ProductFields struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Price       *Number `json:"price"`
	Description *string `json:"description"`
	Stock       *Number `json:"stock"`
	// TTL asks create to set an expiry.
	TTL bool `json:"ttl"`
	// Version selects the row written by update.
	Version *Number `json:"version"`
}

// createInput is validated on create; a missing price is told apart from zero.
type createInput struct {
	Name     string   `json:"name" validate:"required"`
	Category string   `json:"category" validate:"required"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	Stock    *float64 `json:"stock" validate:"omitempty,gte=0,lte=2147483647,whole"`
}

func (f ProductFields) createInput() createInput {
	return createInput{
		Name:     ptr.Deref(f.Name),
		Category: ptr.Deref(f.Category),
		Price:    f.Price.float64Ptr(),
		Stock:    f.Stock.float64Ptr(),
	}
}

// updateInput checks the numeric attributes an update may carry.
type updateInput struct {
	Price *float64 `json:"price" validate:"omitempty,gte=0"`
	Stock *float64 `json:"stock" validate:"omitempty,gte=0,lte=2147483647,whole"`
}

func (f ProductFields) updateInput() updateInput {
	return updateInput{
		Price: f.Price.float64Ptr(),
		Stock: f.Stock.float64Ptr(),
	}
}

func (n *Number) float64Ptr() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}
