package domain

import (
	"fmt"
	"time"
)

// DefaultWeight is the weight given to records that do not set one
const DefaultWeight = 1000

// ContextRecord is a named, weighted bundle of configuration data applied to
// every target that belongs to at least one of its groups
type ContextRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Weight      int        `json:"weight"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	Data        Value      `json:"data"`
	Groups      []GroupRef `json:"groups,omitempty"`
	Source      string     `json:"source,omitempty"` // "api" or "sync:<file>"
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewContextRecord creates an active record with the given data
func NewContextRecord(name string, weight int, data Value) *ContextRecord {
	now := time.Now().UTC()
	return &ContextRecord{
		Name:      name,
		Weight:    weight,
		IsActive:  true,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppliesToAll reports whether the record has no group assignments
func (r *ContextRecord) AppliesToAll() bool {
	return len(r.Groups) == 0
}

// AssignedTo reports whether ref is one of the record's groups
func (r *ContextRecord) AssignedTo(ref GroupRef) bool {
	for _, g := range r.Groups {
		if g == ref {
			return true
		}
	}
	return false
}

// Validate checks the name and that the top level of Data is a mapping
func (r *ContextRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("context name required: %w", ErrValidation)
	}
	if !r.Data.IsMapping() {
		return fmt.Errorf("context %q: data is %s: %w", r.Name, r.Data.Kind(), ErrInvalidContextData)
	}
	for _, g := range r.Groups {
		if !g.Kind.Valid() {
			return fmt.Errorf("context %q: unknown group kind %q: %w", r.Name, g.Kind, ErrValidation)
		}
		if g.Slug == "" {
			return fmt.Errorf("context %q: empty %s slug: %w", r.Name, g.Kind, ErrValidation)
		}
	}
	return nil
}
