package resolver

import (
	"fmt"
	"strings"

	"configctx/internal/domain"

	"go.uber.org/zap"
)

// merger folds one source mapping into an accumulated result. The result
// owns every value it holds: values taken from a source are cloned first,
// so nested mappings in the result can be updated in place.
type merger struct {
	policy MergePolicy
	log    *zap.SugaredLogger
	issues []Issue
}

// merge deep-merges src into dst. Both must be mappings.
func (m *merger) merge(dst, src domain.Value, source string) {
	m.mergeMapping(dst, src, source, nil)
}

func (m *merger) mergeMapping(dst, src domain.Value, source string, path []string) {
	for _, key := range src.Keys() {
		incoming, _ := src.Get(key)
		keyPath := appendPath(path, key)

		existing, ok := dst.Get(key)
		if !ok {
			dst.Set(key, incoming.Clone())
			continue
		}

		switch {
		case existing.IsMapping() && incoming.IsMapping():
			m.mergeMapping(existing, incoming, source, keyPath)
		case existing.IsSequence() && incoming.IsSequence():
			dst.Set(key, m.mergeSequence(existing, incoming, keyPath))
		default:
			if conflicts(existing, incoming) {
				m.conflict(source, keyPath, existing, incoming)
			}
			dst.Set(key, incoming.Clone())
		}
	}
}

func (m *merger) mergeSequence(existing, incoming domain.Value, path []string) domain.Value {
	if m.policy.ListStrategyFor(path) != ListUnion {
		return incoming.Clone()
	}

	items := make([]domain.Value, 0, existing.Len()+incoming.Len())
	items = append(items, existing.Items()...)
	for _, item := range incoming.Items() {
		if !containsValue(items, item) {
			items = append(items, item.Clone())
		}
	}
	return domain.SequenceValue(items...)
}

func (m *merger) conflict(source string, path []string, existing, incoming domain.Value) {
	issue := Issue{
		Kind:    IssueTypeConflict,
		Record:  source,
		Path:    strings.Join(path, "."),
		Message: fmt.Sprintf("%s replaced by %s", existing.Kind(), incoming.Kind()),
	}
	m.issues = append(m.issues, issue)
	m.log.Warnw("Config context type conflict",
		"record", source,
		"path", issue.Path,
		"existing", existing.Kind().String(),
		"incoming", incoming.Kind().String(),
	)
}

// conflicts reports whether replacing existing with incoming changes the
// shape of the tree. Null on either side is an intentional reset, not a conflict.
func conflicts(existing, incoming domain.Value) bool {
	if existing.IsNull() || incoming.IsNull() {
		return false
	}
	if existing.IsScalar() && incoming.IsScalar() {
		return false
	}
	return existing.Kind() != incoming.Kind()
}

func containsValue(items []domain.Value, v domain.Value) bool {
	for _, item := range items {
		if item.Equal(v) {
			return true
		}
	}
	return false
}

func appendPath(path []string, key string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}
