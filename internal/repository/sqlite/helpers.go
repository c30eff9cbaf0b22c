package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"configctx/internal/domain"

	"github.com/goccy/go-json"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToBool converts sql.NullInt64 to bool (0 = false, non-zero = true)
func nullToBool(ni sql.NullInt64) bool {
	return ni.Valid && ni.Int64 != 0
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// boolToInt stores booleans the way sqlite expects them
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is one of the layouts the driver parses back into time.Time
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalValue decodes a stored JSON value. NULL decodes to nil.
func unmarshalValue(ns sql.NullString) (*domain.Value, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var v domain.Value
	if err := json.Unmarshal([]byte(ns.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// marshalToNull marshals a value to nullable JSON. nil and null store NULL.
func marshalToNull(v *domain.Value) (sql.NullString, error) {
	if v == nil || v.IsNull() {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Error Mapping
// ============================================================================

// mapConstraintError turns driver constraint failures into domain errors
func mapConstraintError(err error, what string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%s: %w", what, domain.ErrConflict)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%s references a group that does not exist: %w", what, domain.ErrValidation)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to config_contexts:
// 1. Add field to contextRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update contextColumns constant - APPEND to end
// 4. Update toDomain() to map new field to domain.ContextRecord
// 5. Update insertContext()/updateContext() if column should be writable
// 6. Add the column in migrate()
// 7. Update relevant tests
//
// CRITICAL: Column order must match between:
// - contextColumns constant
// - scanArgs() return slice
// - All SELECT queries using contextColumns
//
// Same pattern applies to targets and groups.

// ============================================================================
// Context Row Scanner
// ============================================================================

// contextRow holds all columns from a config context query for scanning
type contextRow struct {
	ID          string
	Name        string
	Weight      int
	Description sql.NullString
	IsActive    sql.NullInt64
	DataJSON    string
	Source      sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match contextColumns order exactly:
// id, name, weight, description, is_active, data, source, created_at, updated_at
func (r *contextRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,          // 1
		&r.Name,        // 2
		&r.Weight,      // 3
		&r.Description, // 4
		&r.IsActive,    // 5
		&r.DataJSON,    // 6
		&r.Source,      // 7
		&r.CreatedAt,   // 8
		&r.UpdatedAt,   // 9
	}
}

// toDomain converts the scanned row to a domain.ContextRecord. Groups are loaded separately.
func (r *contextRow) toDomain() (*domain.ContextRecord, error) {
	rec := &domain.ContextRecord{
		ID:          r.ID,
		Name:        r.Name,
		Weight:      r.Weight,
		Description: nullToString(r.Description),
		IsActive:    nullToBool(r.IsActive),
		Source:      nullToString(r.Source),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	if err := json.Unmarshal([]byte(r.DataJSON), &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshal data: %w", err)
	}

	return rec, nil
}

// contextColumns returns the SELECT column list for config context queries
const contextColumns = `id, name, weight, description, is_active, data, source, created_at, updated_at`

// ============================================================================
// Target Row Scanner
// ============================================================================

// targetRow holds all columns from a target query for scanning
type targetRow struct {
	ID               string
	Kind             string
	Name             string
	LocalContextJSON sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match targetColumns order exactly:
// id, kind, name, local_context, created_at, updated_at
func (r *targetRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,               // 1
		&r.Kind,             // 2
		&r.Name,             // 3
		&r.LocalContextJSON, // 4
		&r.CreatedAt,        // 5
		&r.UpdatedAt,        // 6
	}
}

// toDomain converts the scanned row to a domain.Target. Memberships are loaded separately.
func (r *targetRow) toDomain() (*domain.Target, error) {
	t := &domain.Target{
		ID:        r.ID,
		Kind:      domain.TargetKind(r.Kind),
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	local, err := unmarshalValue(r.LocalContextJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal local context: %w", err)
	}
	t.LocalContext = local

	return t, nil
}

// targetColumns returns the SELECT column list for target queries
const targetColumns = `id, kind, name, local_context, created_at, updated_at`

// ============================================================================
// Group Row Scanner
// ============================================================================

// groupRow holds all columns from a group query for scanning
type groupRow struct {
	Kind      string
	Slug      string
	Name      sql.NullString
	CreatedAt time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match groupColumns order exactly: kind, slug, name, created_at
func (r *groupRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Kind,      // 1
		&r.Slug,      // 2
		&r.Name,      // 3
		&r.CreatedAt, // 4
	}
}

func (r *groupRow) toDomain() domain.Group {
	return domain.Group{
		Kind:      domain.GroupKind(r.Kind),
		Slug:      r.Slug,
		Name:      nullToString(r.Name),
		CreatedAt: r.CreatedAt,
	}
}

const groupColumns = `kind, slug, name, created_at`

// ============================================================================
// Query Helpers
// ============================================================================

// dbtx is satisfied by *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// stringArgs converts ids to query arguments
func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// refCondition builds "(kind = ? AND slug = ?) OR ..." for refs, qualified by alias
func refCondition(alias string, refs []domain.GroupRef) (string, []interface{}) {
	parts := make([]string, len(refs))
	args := make([]interface{}, 0, 2*len(refs))
	for i, ref := range refs {
		parts[i] = fmt.Sprintf("(%s.kind = ? AND %s.slug = ?)", alias, alias)
		args = append(args, string(ref.Kind), ref.Slug)
	}
	return strings.Join(parts, " OR "), args
}
