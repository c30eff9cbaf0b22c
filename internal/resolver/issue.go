package resolver

import "fmt"

// IssueKind classifies a problem found while resolving. None of them abort a resolution.
type IssueKind string

const (
	// IssueInvalidContextData means a record's data is not a mapping; the record is skipped
	IssueInvalidContextData IssueKind = "InvalidContextData"
	// IssueTypeConflict means two values of incompatible kinds met at one key; the higher weight won
	IssueTypeConflict IssueKind = "TypeConflict"
	// IssueUnresolvableGroupReference means a record names a group that does not exist; the reference never matches
	IssueUnresolvableGroupReference IssueKind = "UnresolvableGroupReference"
)

// Issue is one problem reported alongside a resolution
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Record  string    `json:"record"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message"`
}

// Error implements error so issues can be logged or wrapped directly
func (i Issue) Error() string {
	if i.Path != "" {
		return fmt.Sprintf("%s: %s at %s: %s", i.Kind, i.Record, i.Path, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Kind, i.Record, i.Message)
}
