package repository

import (
	"context"

	"configctx/internal/domain"
)

// ContextStore is the read side a resolution needs
type ContextStore interface {
	// ListApplicableContexts returns the active records that are unassigned
	// or assigned to any of memberships, ordered by weight then name
	ListApplicableContexts(ctx context.Context, memberships []domain.GroupRef) ([]domain.ContextRecord, error)
	// GroupSet returns every group that exists
	GroupSet(ctx context.Context) (domain.GroupSet, error)
	GetTarget(ctx context.Context, id string) (*domain.Target, error)
}

// ContextFilter narrows ListContexts
type ContextFilter struct {
	// Group keeps records assigned to this group
	Group *domain.GroupRef
	// Source keeps records with this source; a trailing "*" matches a prefix
	Source string
	// ActiveOnly drops inactive records
	ActiveOnly bool
}

// SyncStats counts what ReplaceSourceContexts changed
type SyncStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Repository defines the interface for config context data access.
// Lookups of missing entities return an error wrapping domain.ErrNotFound.
type Repository interface {
	ContextStore

	// Config contexts
	CreateContext(ctx context.Context, rec *domain.ContextRecord) error
	UpdateContext(ctx context.Context, rec *domain.ContextRecord) error
	GetContext(ctx context.Context, id string) (*domain.ContextRecord, error)
	ListContexts(ctx context.Context, filter ContextFilter) ([]domain.ContextRecord, error)
	DeleteContext(ctx context.Context, id string) error

	// ReplaceSourceContexts makes the records whose source starts with
	// prefix exactly match records, matched by source. Existing records keep
	// their ID and creation time; identical ones are not rewritten. Runs in
	// one transaction.
	ReplaceSourceContexts(ctx context.Context, prefix string, records []domain.ContextRecord) (SyncStats, error)

	// Groups
	CreateGroup(ctx context.Context, g *domain.Group) error
	ListGroups(ctx context.Context, kind domain.GroupKind) ([]domain.Group, error)
	DeleteGroup(ctx context.Context, ref domain.GroupRef) error

	// Targets
	UpsertTarget(ctx context.Context, t *domain.Target) error
	ListTargets(ctx context.Context) ([]domain.Target, error)
	SetLocalContext(ctx context.Context, id string, local *domain.Value) error
	DeleteTarget(ctx context.Context, id string) error

	// Metadata
	GetMetadata(ctx context.Context, key string) (string, error)
	SetMetadata(ctx context.Context, key, value string) error

	Ping(ctx context.Context) error
	Close() error
}
