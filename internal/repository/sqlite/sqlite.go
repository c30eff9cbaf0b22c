package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"configctx/internal/domain"
	"configctx/internal/repository"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

var _ repository.Repository = (*Repository)(nil)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS config_contexts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		weight INTEGER NOT NULL DEFAULT 1000,
		description TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		data JSON NOT NULL,
		source TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS config_context_groups (
		context_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		slug TEXT NOT NULL,
		PRIMARY KEY (context_id, kind, slug),
		FOREIGN KEY (context_id) REFERENCES config_contexts(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS groups (
		kind TEXT NOT NULL,
		slug TEXT NOT NULL,
		name TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kind, slug)
	);

	CREATE TABLE IF NOT EXISTS targets (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		local_context JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS target_memberships (
		target_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		slug TEXT NOT NULL,
		PRIMARY KEY (target_id, kind, slug),
		FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE,
		FOREIGN KEY (kind, slug) REFERENCES groups(kind, slug) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_config_contexts_weight ON config_contexts(weight, name);
	CREATE INDEX IF NOT EXISTS idx_config_contexts_source ON config_contexts(source);
	CREATE INDEX IF NOT EXISTS idx_config_context_groups_ref ON config_context_groups(kind, slug);
	CREATE INDEX IF NOT EXISTS idx_target_memberships_ref ON target_memberships(kind, slug);
	`

	_, err := r.db.Exec(schema)
	return err
}

// DB exposes the handle for health checks
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// ============================================================================
// Config contexts
// ============================================================================

// CreateContext inserts a record and its group assignments
func (r *Repository) CreateContext(ctx context.Context, rec *domain.ContextRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertContext(ctx, tx, rec); err != nil {
		return err
	}
	if err := replaceAssignments(ctx, tx, rec.ID, rec.Groups); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateContext rewrites a record and its group assignments
func (r *Repository) UpdateContext(ctx context.Context, rec *domain.ContextRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateContext(ctx, tx, rec); err != nil {
		return err
	}
	if err := replaceAssignments(ctx, tx, rec.ID, rec.Groups); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetContext retrieves a single record by ID
func (r *Repository) GetContext(ctx context.Context, id string) (*domain.ContextRecord, error) {
	var row contextRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+contextColumns+` FROM config_contexts WHERE id = ?
	`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config context %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config context: %w", err)
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("config context %s: %w", id, err)
	}

	assignments, err := loadAssignments(ctx, r.db, []string{id})
	if err != nil {
		return nil, err
	}
	rec.Groups = assignments[id]

	return rec, nil
}

// ListContexts returns records matching filter, ordered by weight then name
func (r *Repository) ListContexts(ctx context.Context, filter repository.ContextFilter) ([]domain.ContextRecord, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.ActiveOnly {
		where = append(where, "c.is_active = 1")
	}
	if filter.Source != "" {
		if prefix, ok := strings.CutSuffix(filter.Source, "*"); ok {
			where = append(where, "substr(c.source, 1, ?) = ?")
			args = append(args, utf8.RuneCountInString(prefix), prefix)
		} else {
			where = append(where, "c.source = ?")
			args = append(args, filter.Source)
		}
	}
	if filter.Group != nil {
		where = append(where, `EXISTS (SELECT 1 FROM config_context_groups g
			WHERE g.context_id = c.id AND g.kind = ? AND g.slug = ?)`)
		args = append(args, string(filter.Group.Kind), filter.Group.Slug)
	}

	query := `SELECT ` + prefixed("c", contextColumns) + ` FROM config_contexts c`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY c.weight, c.name, c.id"

	return r.queryContexts(ctx, r.db, query, args...)
}

// ListApplicableContexts returns the active records that are unassigned or
// assigned to at least one of memberships
func (r *Repository) ListApplicableContexts(ctx context.Context, memberships []domain.GroupRef) ([]domain.ContextRecord, error) {
	cond := `NOT EXISTS (SELECT 1 FROM config_context_groups g WHERE g.context_id = c.id)`
	var args []interface{}

	if len(memberships) > 0 {
		refs, refArgs := refCondition("g", memberships)
		cond = `(` + cond + ` OR EXISTS (SELECT 1 FROM config_context_groups g
			WHERE g.context_id = c.id AND (` + refs + `)))`
		args = refArgs
	}

	query := `SELECT ` + prefixed("c", contextColumns) + ` FROM config_contexts c
		WHERE c.is_active = 1 AND ` + cond + `
		ORDER BY c.weight, c.name, c.id`

	return r.queryContexts(ctx, r.db, query, args...)
}

// DeleteContext removes a record; assignments cascade
func (r *Repository) DeleteContext(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM config_contexts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete config context: %w", err)
	}
	return requireAffected(res, "config context", id)
}

// ReplaceSourceContexts makes the records under prefix match records exactly
func (r *Repository) ReplaceSourceContexts(ctx context.Context, prefix string, records []domain.ContextRecord) (repository.SyncStats, error) {
	var stats repository.SyncStats

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := r.queryContexts(ctx, tx, `
		SELECT `+contextColumns+` FROM config_contexts
		WHERE substr(source, 1, ?) = ?
	`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return stats, err
	}

	bySource := make(map[string]*domain.ContextRecord, len(existing))
	for i := range existing {
		bySource[existing[i].Source] = &existing[i]
	}

	// Deletes go first so a renamed record can take over a freed name
	seen := make(map[string]bool, len(records))
	for i := range records {
		seen[records[i].Source] = true
	}
	for source, old := range bySource {
		if seen[source] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM config_contexts WHERE id = ?`, old.ID); err != nil {
			return stats, fmt.Errorf("failed to delete config context %s: %w", old.Name, err)
		}
		stats.Deleted++
	}

	for i := range records {
		rec := &records[i]
		if !strings.HasPrefix(rec.Source, prefix) {
			return stats, fmt.Errorf("config context %q: source %q outside %q: %w", rec.Name, rec.Source, prefix, domain.ErrValidation)
		}

		if old, ok := bySource[rec.Source]; ok {
			rec.ID = old.ID
			rec.CreatedAt = old.CreatedAt
			if sameContent(old, rec) {
				rec.UpdatedAt = old.UpdatedAt
				stats.Unchanged++
				continue
			}
			if err := updateContext(ctx, tx, rec); err != nil {
				return stats, err
			}
			stats.Updated++
		} else {
			if err := insertContext(ctx, tx, rec); err != nil {
				return stats, err
			}
			stats.Created++
		}

		if err := replaceAssignments(ctx, tx, rec.ID, rec.Groups); err != nil {
			return stats, err
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stats, nil
}

// sameContent reports whether b would store the same record as a
func sameContent(a, b *domain.ContextRecord) bool {
	if a.Name != b.Name || a.Weight != b.Weight || a.Description != b.Description || a.IsActive != b.IsActive {
		return false
	}
	if len(a.Groups) != len(b.Groups) || !a.Data.Equal(b.Data) {
		return false
	}
	domain.SortGroupRefs(b.Groups)
	for i := range a.Groups {
		if a.Groups[i] != b.Groups[i] {
			return false
		}
	}
	return true
}

func (r *Repository) queryContexts(ctx context.Context, q dbtx, query string, args ...interface{}) ([]domain.ContextRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query config contexts: %w", err)
	}

	var (
		records []domain.ContextRecord
		ids     []string
	)
	for rows.Next() {
		var row contextRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan config context: %w", err)
		}
		rec, err := row.toDomain()
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("config context %s: %w", row.ID, err)
		}
		records = append(records, *rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating config contexts: %w", err)
	}
	rows.Close()

	assignments, err := loadAssignments(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Groups = assignments[records[i].ID]
	}

	return records, nil
}

func insertContext(ctx context.Context, q dbtx, rec *domain.ContextRecord) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal config context data: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO config_contexts (`+contextColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Name, rec.Weight, stringToNull(rec.Description), boolToInt(rec.IsActive),
		string(data), stringToNull(rec.Source), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))

	return mapConstraintError(err, fmt.Sprintf("config context %q", rec.Name))
}

func updateContext(ctx context.Context, q dbtx, rec *domain.ContextRecord) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal config context data: %w", err)
	}
	rec.UpdatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		UPDATE config_contexts SET
			name = ?, weight = ?, description = ?, is_active = ?, data = ?, source = ?, updated_at = ?
		WHERE id = ?
	`, rec.Name, rec.Weight, stringToNull(rec.Description), boolToInt(rec.IsActive),
		string(data), stringToNull(rec.Source), formatTime(rec.UpdatedAt), rec.ID)
	if err != nil {
		return mapConstraintError(err, fmt.Sprintf("config context %q", rec.Name))
	}
	return requireAffected(res, "config context", rec.ID)
}

func replaceAssignments(ctx context.Context, q dbtx, contextID string, refs []domain.GroupRef) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM config_context_groups WHERE context_id = ?`, contextID); err != nil {
		return fmt.Errorf("failed to clear group assignments: %w", err)
	}
	for _, ref := range refs {
		_, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO config_context_groups (context_id, kind, slug) VALUES (?, ?, ?)
		`, contextID, string(ref.Kind), ref.Slug)
		if err != nil {
			return fmt.Errorf("failed to assign group %s: %w", ref, err)
		}
	}
	return nil
}

// loadAssignments returns the group references of each context id
func loadAssignments(ctx context.Context, q dbtx, ids []string) (map[string][]domain.GroupRef, error) {
	out := make(map[string][]domain.GroupRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT context_id, kind, slug FROM config_context_groups
		WHERE context_id IN (`+placeholders(len(ids))+`)
		ORDER BY context_id, kind, slug
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query group assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind, slug string
		if err := rows.Scan(&id, &kind, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan group assignment: %w", err)
		}
		out[id] = append(out[id], domain.GroupRef{Kind: domain.GroupKind(kind), Slug: slug})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group assignments: %w", err)
	}

	return out, nil
}

// ============================================================================
// Groups
// ============================================================================

// CreateGroup inserts a group
func (r *Repository) CreateGroup(ctx context.Context, g *domain.Group) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups (`+groupColumns+`) VALUES (?, ?, ?, ?)
	`, string(g.Kind), g.Slug, stringToNull(g.Name), formatTime(g.CreatedAt))
	return mapConstraintError(err, fmt.Sprintf("group %s", g.Ref()))
}

// ListGroups returns the groups of kind, or all groups when kind is empty
func (r *Repository) ListGroups(ctx context.Context, kind domain.GroupKind) ([]domain.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups`
	var args []interface{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind, slug`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		var row groupRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	return groups, nil
}

// GroupSet returns every existing group reference
func (r *Repository) GroupSet(ctx context.Context) (domain.GroupSet, error) {
	groups, err := r.ListGroups(ctx, "")
	if err != nil {
		return nil, err
	}
	set := domain.NewGroupSet()
	for i := range groups {
		set.Add(groups[i].Ref())
	}
	return set, nil
}

// DeleteGroup removes a group. Target memberships cascade; context
// assignments stay and become unresolvable.
func (r *Repository) DeleteGroup(ctx context.Context, ref domain.GroupRef) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE kind = ? AND slug = ?`, string(ref.Kind), ref.Slug)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return requireAffected(res, "group", ref.String())
}

// ============================================================================
// Targets
// ============================================================================

// UpsertTarget inserts or updates a target and replaces its memberships
func (r *Repository) UpsertTarget(ctx context.Context, t *domain.Target) error {
	local, err := marshalToNull(t.LocalContext)
	if err != nil {
		return fmt.Errorf("failed to marshal local context: %w", err)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO targets (`+targetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			local_context = excluded.local_context,
			updated_at = excluded.updated_at
	`, t.ID, string(t.Kind), t.Name, local, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM target_memberships WHERE target_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to clear memberships: %w", err)
	}
	for _, ref := range t.Memberships {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO target_memberships (target_id, kind, slug) VALUES (?, ?, ?)
		`, t.ID, string(ref.Kind), ref.Slug)
		if err != nil {
			return mapConstraintError(err, fmt.Sprintf("target %s membership %s", t.Name, ref))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetTarget retrieves a single target by ID
func (r *Repository) GetTarget(ctx context.Context, id string) (*domain.Target, error) {
	var row targetRow
	err := r.db.QueryRowContext(ctx, `
		SELECT `+targetColumns+` FROM targets WHERE id = ?
	`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("target %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query target: %w", err)
	}

	t, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", id, err)
	}

	memberships, err := r.loadMemberships(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	t.Memberships = memberships[id]

	return t, nil
}

// ListTargets returns all targets ordered by name
func (r *Repository) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}

	var (
		targets []domain.Target
		ids     []string
	)
	for rows.Next() {
		var row targetRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t, err := row.toDomain()
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("target %s: %w", row.ID, err)
		}
		targets = append(targets, *t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating targets: %w", err)
	}
	rows.Close()

	memberships, err := r.loadMemberships(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range targets {
		targets[i].Memberships = memberships[targets[i].ID]
	}

	return targets, nil
}

// SetLocalContext replaces a target's local context; nil clears it
func (r *Repository) SetLocalContext(ctx context.Context, id string, local *domain.Value) error {
	data, err := marshalToNull(local)
	if err != nil {
		return fmt.Errorf("failed to marshal local context: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE targets SET local_context = ?, updated_at = ? WHERE id = ?
	`, data, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set local context: %w", err)
	}
	return requireAffected(res, "target", id)
}

// DeleteTarget removes a target; memberships cascade
func (r *Repository) DeleteTarget(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return requireAffected(res, "target", id)
}

func (r *Repository) loadMemberships(ctx context.Context, ids []string) (map[string][]domain.GroupRef, error) {
	out := make(map[string][]domain.GroupRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT target_id, kind, slug FROM target_memberships
		WHERE target_id IN (`+placeholders(len(ids))+`)
	`, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind, slug string
		if err := rows.Scan(&id, &kind, &slug); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out[id] = append(out[id], domain.GroupRef{Kind: domain.GroupKind(kind), Slug: slug})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}

	for id := range out {
		domain.SortGroupRefs(out[id])
	}
	return out, nil
}

// ============================================================================
// Metadata
// ============================================================================

// GetMetadata returns a stored value, or ErrNotFound
func (r *Repository) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query metadata: %w", err)
	}
	return value, nil
}

// SetMetadata stores a value
func (r *Repository) SetMetadata(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}

// prefixed qualifies every column of a column list with alias
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
