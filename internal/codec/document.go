package codec

import (
	"fmt"
	"sort"

	"configctx/internal/domain"
)

const metadataKey = "_metadata"

// recordFromValue builds a record from a decoded document. The name may be
// empty; callers that know the source file name fill it in before validating.
func recordFromValue(doc domain.Value) (*domain.ContextRecord, error) {
	if !doc.IsMapping() {
		return nil, fmt.Errorf("%w: document is %s, not a mapping", domain.ErrValidation, doc.Kind())
	}

	meta := doc
	data, hasData := doc.Get("data")
	if m, ok := doc.Get(metadataKey); ok {
		if !m.IsMapping() {
			return nil, fmt.Errorf("%w: %s must be a mapping", domain.ErrValidation, metadataKey)
		}
		meta = m
		data = doc.Clone()
		data.Delete(metadataKey)
		hasData = true
	}

	rec := domain.NewContextRecord("", domain.DefaultWeight, domain.NewMapping())

	name, err := optionalString(meta, "name")
	if err != nil {
		return nil, err
	}
	rec.Name = name

	if rec.Description, err = optionalString(meta, "description"); err != nil {
		return nil, err
	}

	if w, ok := meta.Get("weight"); ok && !w.IsNull() {
		weight, ok := w.Int()
		if !ok {
			return nil, fmt.Errorf("%w: weight must be an integer, got %s", domain.ErrValidation, w.Kind())
		}
		rec.Weight = int(weight)
	}

	if a, ok := meta.Get("is_active"); ok && !a.IsNull() {
		active, ok := a.Bool()
		if !ok {
			return nil, fmt.Errorf("%w: is_active must be a boolean, got %s", domain.ErrValidation, a.Kind())
		}
		rec.IsActive = active
	}

	if g, ok := meta.Get("groups"); ok && !g.IsNull() {
		refs, err := parseGroups(g)
		if err != nil {
			return nil, err
		}
		rec.Groups = refs
	}

	if hasData && !data.IsNull() {
		if !data.IsMapping() {
			return nil, fmt.Errorf("%w: data is %s, not a mapping", domain.ErrInvalidContextData, data.Kind())
		}
		rec.Data = data
	}

	return rec, nil
}

// parseGroups accepts {roles: [leaf], tenants: [acme]}, ["role:leaf", ...]
// or the API form [{kind: role, slug: leaf}, ...]
func parseGroups(g domain.Value) ([]domain.GroupRef, error) {
	var refs []domain.GroupRef

	switch {
	case g.IsMapping():
		for _, key := range g.Keys() {
			kind, ok := domain.ParseGroupKind(key)
			if !ok {
				return nil, fmt.Errorf("%w: unknown group kind %q", domain.ErrValidation, key)
			}
			slugs, _ := g.Get(key)
			items := []domain.Value{slugs}
			if slugs.IsSequence() {
				items = slugs.Items()
			}
			for _, item := range items {
				slug, ok := item.Str()
				if !ok || slug == "" {
					return nil, fmt.Errorf("%w: groups.%s must hold slugs", domain.ErrValidation, key)
				}
				refs = append(refs, domain.GroupRef{Kind: kind, Slug: slug})
			}
		}
	case g.IsSequence():
		for _, item := range g.Items() {
			ref, err := parseGroupItem(item)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
	default:
		return nil, fmt.Errorf("%w: groups must be a mapping or a list", domain.ErrValidation)
	}

	domain.SortGroupRefs(refs)
	return dedupRefs(refs), nil
}

func parseGroupItem(item domain.Value) (domain.GroupRef, error) {
	if s, ok := item.Str(); ok {
		return domain.ParseGroupRef(s)
	}
	if !item.IsMapping() {
		return domain.GroupRef{}, fmt.Errorf("%w: group reference must be a string or {kind, slug}", domain.ErrValidation)
	}
	kindName, err := optionalString(item, "kind")
	if err != nil {
		return domain.GroupRef{}, err
	}
	slug, err := optionalString(item, "slug")
	if err != nil {
		return domain.GroupRef{}, err
	}
	kind, ok := domain.ParseGroupKind(kindName)
	if !ok || slug == "" {
		return domain.GroupRef{}, fmt.Errorf("%w: invalid group reference %s", domain.ErrValidation, item)
	}
	return domain.GroupRef{Kind: kind, Slug: slug}, nil
}

func dedupRefs(refs []domain.GroupRef) []domain.GroupRef {
	out := refs[:0]
	for i, ref := range refs {
		if i > 0 && ref == refs[i-1] {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func optionalString(m domain.Value, key string) (string, error) {
	v, ok := m.Get(key)
	if !ok || v.IsNull() {
		return "", nil
	}
	s, ok := v.Str()
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %s", domain.ErrValidation, key, v.Kind())
	}
	return s, nil
}

// DocumentValue renders a record in the plain document shape, the inverse of ParseDocument
func DocumentValue(rec *domain.ContextRecord) domain.Value {
	doc := domain.NewMapping()
	doc.Set("name", domain.StringValue(rec.Name))
	doc.Set("weight", domain.IntValue(int64(rec.Weight)))
	if rec.Description != "" {
		doc.Set("description", domain.StringValue(rec.Description))
	}
	doc.Set("is_active", domain.BoolValue(rec.IsActive))

	if len(rec.Groups) > 0 {
		byKind := make(map[domain.GroupKind][]string)
		for _, ref := range rec.Groups {
			byKind[ref.Kind] = append(byKind[ref.Kind], ref.Slug)
		}
		groups := domain.NewMapping()
		for kind, slugs := range byKind {
			sort.Strings(slugs)
			items := make([]domain.Value, len(slugs))
			for i, s := range slugs {
				items[i] = domain.StringValue(s)
			}
			groups.Set(kind.Plural(), domain.SequenceValue(items...))
		}
		doc.Set("groups", groups)
	}

	doc.Set("data", rec.Data.Clone())
	return doc
}
