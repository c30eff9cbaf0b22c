package domain

import (
	"fmt"
	"time"
)

// TargetKind is the kind of object a context is rendered for
type TargetKind string

const (
	TargetDevice         TargetKind = "device"
	TargetVirtualMachine TargetKind = "virtual_machine"
)

// Target is a device or virtual machine with its group memberships and
// optional object-level context
type Target struct {
	ID           string     `json:"id"`
	Kind         TargetKind `json:"kind"`
	Name         string     `json:"name"`
	Memberships  []GroupRef `json:"memberships,omitempty"`
	LocalContext *Value     `json:"local_context,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewTarget creates a target with no memberships
func NewTarget(id string, kind TargetKind, name string) *Target {
	now := time.Now().UTC()
	return &Target{
		ID:        id,
		Kind:      kind,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasMembership reports whether the target belongs to ref
func (t *Target) HasMembership(ref GroupRef) bool {
	for _, m := range t.Memberships {
		if m == ref {
			return true
		}
	}
	return false
}

// AddMembership adds ref unless already present
func (t *Target) AddMembership(ref GroupRef) {
	if !t.HasMembership(ref) {
		t.Memberships = append(t.Memberships, ref)
	}
}

// Validate checks required fields and that any local context is a mapping
func (t *Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("target ID required: %w", ErrValidation)
	}
	if t.Name == "" {
		return fmt.Errorf("target name required: %w", ErrValidation)
	}
	switch t.Kind {
	case TargetDevice, TargetVirtualMachine:
	default:
		return fmt.Errorf("target kind %q must be device or virtual_machine: %w", t.Kind, ErrValidation)
	}
	for _, m := range t.Memberships {
		if !m.Kind.Valid() || m.Slug == "" {
			return fmt.Errorf("invalid membership %s: %w", m, ErrValidation)
		}
	}
	if t.LocalContext != nil && !t.LocalContext.IsNull() && !t.LocalContext.IsMapping() {
		return fmt.Errorf("local context is %s: %w", t.LocalContext.Kind(), ErrInvalidContextData)
	}
	return nil
}
