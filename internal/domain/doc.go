// Package domain defines the core types of the configuration context system.
//
// # Values
//
// Value is a tagged variant holding a JSON-compatible tree: null, bool,
// int, float, string, an ordered sequence, or a mapping with unique keys.
// Context payloads are normalized into Value at authoring time, whether they
// arrive as JSON or YAML, and every merge operation dispatches on its kind.
//
// # Context Records
//
// ContextRecord is a named, weighted bundle of data assigned to zero or more
// groups (locations, roles, platforms, tenants, tags and so on). A record
// without groups applies to every target. Weight orders records during a
// merge: higher weights override lower ones.
//
// # Targets
//
// Target is a device or virtual machine. It carries its group memberships and
// an optional local context that takes final precedence over every record.
//
// # Groups
//
// Group and GroupSet describe which groups actually exist. A reference to a
// group outside the set is unresolvable and never matches.
//
// # Design Principles
//
// - No database or transport dependencies
// - Values are copied, never shared, when merged
// - Sentinel errors (ErrNotFound, ErrValidation, ErrInvalidContextData) are
// matched with errors.Is by the service and handler layers
package domain
