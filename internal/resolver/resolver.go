// Package resolver computes the configuration context of a device or
// virtual machine from a snapshot of context records.
//
// Records are selected when active and either unassigned or assigned to at
// least one group the target belongs to. Selected records are merged in
// ascending weight order (ties broken by name), so higher weights override
// lower ones, and the target's local context is merged last. Mappings are
// merged recursively, scalars are overwritten, and sequences follow the
// configured MergePolicy.
//
// Resolution never fails. Malformed records, type conflicts and references
// to groups that do not exist are reported as issues next to the result.
package resolver

import (
	"fmt"
	"sort"

	"configctx/internal/domain"

	"go.uber.org/zap"
)

// LocalContextSource is the record name reported for issues raised by a target's local context
const LocalContextSource = "local_context"

// Snapshot is the read-only input of one resolution
type Snapshot struct {
	// Records are the candidate context records, in any order
	Records []domain.ContextRecord
	// Groups are the groups that exist. A nil set treats every reference with a known kind as resolvable.
	Groups domain.GroupSet
}

// Resolution is the merged context and what went into it
type Resolution struct {
	Data    domain.Value `json:"data"`
	Applied []string     `json:"applied"`
	Issues  []Issue      `json:"issues,omitempty"`
}

// Resolver merges context records. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	policy MergePolicy
	log    *zap.SugaredLogger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithPolicy sets the merge policy
func WithPolicy(p MergePolicy) Option {
	return func(r *Resolver) {
		r.policy = p
	}
}

// WithLogger sets the logger used for issues. Defaults to zap.S().
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

// New creates a resolver
func New(opts ...Option) *Resolver {
	r := &Resolver{policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = zap.S()
	}
	return r
}

// Policy returns the merge policy in use
func (r *Resolver) Policy() MergePolicy {
	return r.policy
}

// Resolve merges every applicable record of snap, then the target's local context.
// A nil target has no memberships and no local context.
func (r *Resolver) Resolve(target *domain.Target, snap Snapshot) *Resolution {
	selected, issues := r.Select(target, snap)

	m := &merger{policy: r.policy, log: r.log, issues: issues}
	result := domain.NewMapping()
	applied := make([]string, 0, len(selected))

	for i := range selected {
		rec := &selected[i]
		if !rec.Data.IsMapping() {
			m.issues = append(m.issues, Issue{
				Kind:    IssueInvalidContextData,
				Record:  rec.Name,
				Message: fmt.Sprintf("data is %s, not a mapping", rec.Data.Kind()),
			})
			r.log.Warnw("Skipping config context with invalid data",
				"record", rec.Name,
				"kind", rec.Data.Kind().String(),
			)
			continue
		}
		m.merge(result, rec.Data, rec.Name)
		applied = append(applied, rec.Name)
	}

	if target != nil && target.LocalContext != nil && !target.LocalContext.IsNull() {
		local := *target.LocalContext
		if local.IsMapping() {
			m.merge(result, local, LocalContextSource)
		} else {
			m.issues = append(m.issues, Issue{
				Kind:    IssueInvalidContextData,
				Record:  LocalContextSource,
				Message: fmt.Sprintf("local context of %s is %s, not a mapping", target.Name, local.Kind()),
			})
			r.log.Warnw("Ignoring invalid local context", "target", target.Name, "kind", local.Kind().String())
		}
	}

	return &Resolution{
		Data:    result,
		Applied: applied,
		Issues:  m.issues,
	}
}

// Select returns the active records that apply to target, sorted by weight then name
func (r *Resolver) Select(target *domain.Target, snap Snapshot) ([]domain.ContextRecord, []Issue) {
	var (
		selected []domain.ContextRecord
		issues   []Issue
	)

	for _, rec := range snap.Records {
		if !rec.IsActive {
			continue
		}
		if rec.AppliesToAll() {
			selected = append(selected, rec)
			continue
		}

		matched := false
		for _, ref := range rec.Groups {
			if !resolvable(ref, snap.Groups) {
				issues = append(issues, Issue{
					Kind:    IssueUnresolvableGroupReference,
					Record:  rec.Name,
					Message: fmt.Sprintf("group %s does not exist", ref),
				})
				r.log.Debugw("Unresolvable group reference", "record", rec.Name, "group", ref.String())
				continue
			}
			if target != nil && target.HasMembership(ref) {
				matched = true
			}
		}
		if matched {
			selected = append(selected, rec)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := &selected[i], &selected[j]
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	return selected, issues
}

func resolvable(ref domain.GroupRef, groups domain.GroupSet) bool {
	if !ref.Kind.Valid() || ref.Slug == "" {
		return false
	}
	if groups == nil {
		return true
	}
	return groups.Contains(ref)
}
