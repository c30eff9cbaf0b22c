package domain

import (
	"errors"
	"testing"
)

func TestParseGroupKind(t *testing.T) {
	tests := []struct {
		input string
		want  GroupKind
		ok    bool
	}{
		{"role", GroupRole, true},
		{"roles", GroupRole, true},
		{"device-types", GroupDeviceType, true},
		{"Tenant_Groups", GroupTenantGroup, true},
		{"dynamic_groups", GroupDynamicGroup, true},
		{"regions", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseGroupKind(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseGroupKind(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseGroupRef(t *testing.T) {
	t.Run("valid reference", func(t *testing.T) {
		ref, err := ParseGroupRef("platform:junos")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ref.Kind != GroupPlatform || ref.Slug != "junos" {
			t.Errorf("unexpected ref %v", ref)
		}
		if ref.String() != "platform:junos" {
			t.Errorf("expected round trip, got %s", ref.String())
		}
	})

	t.Run("missing slug", func(t *testing.T) {
		if _, err := ParseGroupRef("role:"); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		if _, err := ParseGroupRef("region:emea"); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestContextRecordValidate(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		r := NewContextRecord("ntp", DefaultWeight, NewMapping())
		r.Groups = []GroupRef{{Kind: GroupLocation, Slug: "ams1"}}
		if err := r.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		r := NewContextRecord("", DefaultWeight, NewMapping())
		if err := r.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("non-mapping data", func(t *testing.T) {
		r := NewContextRecord("bad", DefaultWeight, SequenceValue(IntValue(1)))
		if err := r.Validate(); !errors.Is(err, ErrInvalidContextData) {
			t.Errorf("expected invalid context data, got %v", err)
		}
	})

	t.Run("unknown group kind", func(t *testing.T) {
		r := NewContextRecord("x", DefaultWeight, NewMapping())
		r.Groups = []GroupRef{{Kind: "region", Slug: "emea"}}
		if err := r.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestContextRecordAppliesToAll(t *testing.T) {
	r := NewContextRecord("global", 100, NewMapping())
	if !r.AppliesToAll() {
		t.Error("expected record without groups to apply to all")
	}
	r.Groups = append(r.Groups, GroupRef{Kind: GroupTenant, Slug: "acme"})
	if r.AppliesToAll() {
		t.Error("expected record with groups not to apply to all")
	}
	if !r.AssignedTo(GroupRef{Kind: GroupTenant, Slug: "acme"}) {
		t.Error("expected record to be assigned to tenant:acme")
	}
}

func TestTargetValidate(t *testing.T) {
	t.Run("valid device", func(t *testing.T) {
		target := NewTarget("dev-1", TargetDevice, "leaf01")
		target.AddMembership(GroupRef{Kind: GroupRole, Slug: "leaf"})
		target.AddMembership(GroupRef{Kind: GroupRole, Slug: "leaf"})
		if err := target.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if len(target.Memberships) != 1 {
			t.Errorf("expected duplicate membership to be ignored, got %d", len(target.Memberships))
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		target := NewTarget("x", "switch", "x")
		if err := target.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("local context must be a mapping", func(t *testing.T) {
		target := NewTarget("vm-1", TargetVirtualMachine, "web01")
		lc := StringValue("oops")
		target.LocalContext = &lc
		if err := target.Validate(); !errors.Is(err, ErrInvalidContextData) {
			t.Errorf("expected invalid context data, got %v", err)
		}
	})
}

func TestGroupSet(t *testing.T) {
	set := NewGroupSet(GroupRef{Kind: GroupTag, Slug: "edge"})
	if !set.Contains(GroupRef{Kind: GroupTag, Slug: "edge"}) {
		t.Error("expected set to contain tag:edge")
	}
	if set.Contains(GroupRef{Kind: GroupTag, Slug: "core"}) {
		t.Error("expected set not to contain tag:core")
	}
	set.Add(GroupRef{Kind: GroupTag, Slug: "core"})
	if !set.Contains(GroupRef{Kind: GroupTag, Slug: "core"}) {
		t.Error("expected set to contain tag:core after Add")
	}
}
