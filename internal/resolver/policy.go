package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// ListStrategy decides how two sequences under the same key are combined
type ListStrategy string

const (
	// ListOverwrite replaces the lower-weight sequence with the higher-weight one
	ListOverwrite ListStrategy = "overwrite"
	// ListUnion keeps the lower-weight elements and appends higher-weight elements not already present
	ListUnion ListStrategy = "union"
)

// ParseListStrategy accepts the strategy names used in config files.
// "replace" is an alias for overwrite and "merge" for union.
func ParseListStrategy(s string) (ListStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite", "replace":
		return ListOverwrite, nil
	case "union", "merge":
		return ListUnion, nil
	}
	return "", fmt.Errorf("unknown list strategy %q, must be 'overwrite' or 'union'", s)
}

// MergePolicy configures sequence handling, globally and per key path.
// Mappings always deep-merge and scalars always overwrite.
type MergePolicy struct {
	// Lists is the default sequence strategy
	Lists ListStrategy `json:"lists" yaml:"lists"`
	// Overrides maps a dotted key path ("ntp.servers") to a strategy for that
	// path and everything below it. The longest matching path wins.
	Overrides map[string]ListStrategy `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// DefaultPolicy overwrites sequences everywhere
func DefaultPolicy() MergePolicy {
	return MergePolicy{Lists: ListOverwrite}
}

// Validate checks every strategy name
func (p MergePolicy) Validate() error {
	if p.Lists != "" && p.Lists != ListOverwrite && p.Lists != ListUnion {
		return fmt.Errorf("unknown list strategy %q", p.Lists)
	}
	for path, s := range p.Overrides {
		if path == "" {
			return fmt.Errorf("override with empty key path")
		}
		if s != ListOverwrite && s != ListUnion {
			return fmt.Errorf("override %q: unknown list strategy %q", path, s)
		}
	}
	return nil
}

// ListStrategyFor returns the strategy that applies at path
func (p MergePolicy) ListStrategyFor(path []string) ListStrategy {
	strategy := p.Lists
	if strategy == "" {
		strategy = ListOverwrite
	}
	if len(p.Overrides) == 0 {
		return strategy
	}

	joined := strings.Join(path, ".")
	best := -1
	for prefix, s := range p.Overrides {
		if joined != prefix && !strings.HasPrefix(joined, prefix+".") {
			continue
		}
		if len(prefix) > best {
			best = len(prefix)
			strategy = s
		}
	}
	return strategy
}

// Fingerprint returns a canonical description of the policy for cache keys
func (p MergePolicy) Fingerprint() string {
	var b strings.Builder
	b.WriteString("lists=")
	b.WriteString(string(p.ListStrategyFor(nil)))

	paths := make([]string, 0, len(p.Overrides))
	for path := range p.Overrides {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Fprintf(&b, ";%s=%s", path, p.Overrides[path])
	}
	return b.String()
}
