package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GroupKind identifies the kind of inventory grouping a context can be assigned to
type GroupKind string

const (
	GroupLocation              GroupKind = "location"
	GroupRole                  GroupKind = "role"
	GroupDeviceType            GroupKind = "device_type"
	GroupDeviceRedundancyGroup GroupKind = "device_redundancy_group"
	GroupPlatform              GroupKind = "platform"
	GroupClusterGroup          GroupKind = "cluster_group"
	GroupCluster               GroupKind = "cluster"
	GroupTenantGroup           GroupKind = "tenant_group"
	GroupTenant                GroupKind = "tenant"
	GroupTag                   GroupKind = "tag"
	GroupDynamicGroup          GroupKind = "dynamic_group"
)

// GroupKinds lists every supported kind in display order
var GroupKinds = []GroupKind{
	GroupLocation,
	GroupRole,
	GroupDeviceType,
	GroupDeviceRedundancyGroup,
	GroupPlatform,
	GroupClusterGroup,
	GroupCluster,
	GroupTenantGroup,
	GroupTenant,
	GroupTag,
	GroupDynamicGroup,
}

// Valid reports whether k is a known group kind
func (k GroupKind) Valid() bool {
	for _, known := range GroupKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Plural returns the collection name used in context documents ("roles", "tenants")
func (k GroupKind) Plural() string {
	return string(k) + "s"
}

// ParseGroupKind accepts singular or plural names, with dashes or underscores
func ParseGroupKind(s string) (GroupKind, bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	if k := GroupKind(name); k.Valid() {
		return k, true
	}
	if k := GroupKind(strings.TrimSuffix(name, "s")); k.Valid() {
		return k, true
	}
	return "", false
}

// GroupRef identifies one group by kind and slug
type GroupRef struct {
	Kind GroupKind `json:"kind" yaml:"kind"`
	Slug string    `json:"slug" yaml:"slug"`
}

// String returns the "kind:slug" form
func (g GroupRef) String() string {
	return string(g.Kind) + ":" + g.Slug
}

// ParseGroupRef parses the "kind:slug" form
func ParseGroupRef(s string) (GroupRef, error) {
	kindPart, slug, ok := strings.Cut(s, ":")
	if !ok || slug == "" {
		return GroupRef{}, fmt.Errorf("group reference %q must be kind:slug: %w", s, ErrValidation)
	}
	kind, ok := ParseGroupKind(kindPart)
	if !ok {
		return GroupRef{}, fmt.Errorf("unknown group kind %q: %w", kindPart, ErrValidation)
	}
	return GroupRef{Kind: kind, Slug: slug}, nil
}

// SortGroupRefs orders refs by kind then slug
func SortGroupRefs(refs []GroupRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].Slug < refs[j].Slug
	})
}

// Group is a registered inventory grouping (a site, a role, a tenant...)
type Group struct {
	Kind      GroupKind `json:"kind"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the reference that identifies g
func (g *Group) Ref() GroupRef {
	return GroupRef{Kind: g.Kind, Slug: g.Slug}
}

// Validate checks required fields
func (g *Group) Validate() error {
	if !g.Kind.Valid() {
		return fmt.Errorf("unknown group kind %q: %w", g.Kind, ErrValidation)
	}
	if g.Slug == "" {
		return fmt.Errorf("group slug required: %w", ErrValidation)
	}
	return nil
}

// GroupSet is the set of groups that exist. References outside it are unresolvable.
type GroupSet map[GroupRef]struct{}

// NewGroupSet builds a set from refs
func NewGroupSet(refs ...GroupRef) GroupSet {
	set := make(GroupSet, len(refs))
	for _, ref := range refs {
		set[ref] = struct{}{}
	}
	return set
}

// Add inserts ref
func (s GroupSet) Add(ref GroupRef) {
	s[ref] = struct{}{}
}

// Contains reports whether ref exists
func (s GroupSet) Contains(ref GroupRef) bool {
	_, ok := s[ref]
	return ok
}
