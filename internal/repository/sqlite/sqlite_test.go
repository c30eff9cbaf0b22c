package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"configctx/internal/domain"
	"configctx/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertErrorIs fails the test unless err wraps target
func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected error wrapping %v, got %v", target, err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func mapping(t *testing.T, pairs ...interface{}) domain.Value {
	t.Helper()
	m := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i].(string)] = pairs[i+1]
	}
	v, err := domain.FromAny(m)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	return v
}

func newRecord(t *testing.T, id, name string, weight int, groups ...domain.GroupRef) *domain.ContextRecord {
	t.Helper()
	rec := domain.NewContextRecord(name, weight, mapping(t, name, weight))
	rec.ID = id
	rec.Groups = groups
	return rec
}

func names(records []domain.ContextRecord) []string {
	out := make([]string, len(records))
	for i := range records {
		out[i] = records[i].Name
	}
	return out
}

var (
	roleLeaf   = domain.GroupRef{Kind: domain.GroupRole, Slug: "leaf"}
	roleSpine  = domain.GroupRef{Kind: domain.GroupRole, Slug: "spine"}
	siteAms    = domain.GroupRef{Kind: domain.GroupLocation, Slug: "ams1"}
	tenantAcme = domain.GroupRef{Kind: domain.GroupTenant, Slug: "acme"}
)

func createGroups(t *testing.T, repo *Repository, refs ...domain.GroupRef) {
	t.Helper()
	for _, ref := range refs {
		assertNoError(t, repo.CreateGroup(context.Background(), &domain.Group{Kind: ref.Kind, Slug: ref.Slug}))
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid", sql.NullString{String: "hello", Valid: true}, "hello"},
		{"invalid", sql.NullString{String: "ignored", Valid: false}, ""},
		{"valid empty", sql.NullString{String: "", Valid: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestStringToNull(t *testing.T) {
	assertEqual(t, sql.NullString{}, stringToNull(""))
	assertEqual(t, sql.NullString{String: "x", Valid: true}, stringToNull("x"))
}

func TestNullToBool(t *testing.T) {
	assertEqual(t, false, nullToBool(sql.NullInt64{}))
	assertEqual(t, false, nullToBool(sql.NullInt64{Int64: 0, Valid: true}))
	assertEqual(t, true, nullToBool(sql.NullInt64{Int64: 1, Valid: true}))
}

func TestMarshalToNull(t *testing.T) {
	ns, err := marshalToNull(nil)
	assertNoError(t, err)
	assertEqual(t, false, ns.Valid)

	null := domain.NullValue()
	ns, err = marshalToNull(&null)
	assertNoError(t, err)
	assertEqual(t, false, ns.Valid)

	v := mapping(t, "b", 2, "a", 1)
	ns, err = marshalToNull(&v)
	assertNoError(t, err)
	assertEqual(t, sql.NullString{String: `{"a":1,"b":2}`, Valid: true}, ns)

	back, err := unmarshalValue(ns)
	assertNoError(t, err)
	if back == nil || !back.Equal(v) {
		t.Fatalf("round trip mismatch: %v", back)
	}

	empty, err := unmarshalValue(sql.NullString{})
	assertNoError(t, err)
	if empty != nil {
		t.Fatalf("expected nil for NULL column, got %v", empty)
	}
}

func TestPlaceholders(t *testing.T) {
	assertEqual(t, "", placeholders(0))
	assertEqual(t, "?", placeholders(1))
	assertEqual(t, "?, ?, ?", placeholders(3))
}

func TestRefCondition(t *testing.T) {
	cond, args := refCondition("g", []domain.GroupRef{roleLeaf, siteAms})
	assertEqual(t, "(g.kind = ? AND g.slug = ?) OR (g.kind = ? AND g.slug = ?)", cond)
	assertEqual(t, []interface{}{"role", "leaf", "location", "ams1"}, args)
}

func TestPrefixed(t *testing.T) {
	assertEqual(t, "c.id, c.name, c.weight", prefixed("c", "id, name,\n\tweight"))
}

func TestContextRowToDomain(t *testing.T) {
	now := time.Now().UTC()
	row := contextRow{
		ID:          "ctx-1",
		Name:        "ntp",
		Weight:      2000,
		Description: sql.NullString{String: "time", Valid: true},
		IsActive:    sql.NullInt64{Int64: 1, Valid: true},
		DataJSON:    `{"ntp":{"servers":["10.0.0.1"]}}`,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	rec, err := row.toDomain()
	assertNoError(t, err)
	assertEqual(t, "ntp", rec.Name)
	assertEqual(t, 2000, rec.Weight)
	assertEqual(t, "time", rec.Description)
	assertEqual(t, true, rec.IsActive)
	assertEqual(t, "", rec.Source)

	servers, ok := rec.Data.Lookup("ntp", "servers")
	if !ok || servers.Len() != 1 {
		t.Fatalf("expected ntp.servers with one entry, got %v", rec.Data)
	}

	row.DataJSON = `{not json`
	if _, err := row.toDomain(); err == nil {
		t.Fatal("expected error for corrupt data column")
	}
}

func TestTargetRowToDomain(t *testing.T) {
	row := targetRow{ID: "dev-1", Kind: "device", Name: "leaf01"}
	target, err := row.toDomain()
	assertNoError(t, err)
	assertEqual(t, domain.TargetDevice, target.Kind)
	if target.LocalContext != nil {
		t.Fatalf("expected no local context, got %v", target.LocalContext)
	}

	row.LocalContextJSON = sql.NullString{String: `{"k":1}`, Valid: true}
	target, err = row.toDomain()
	assertNoError(t, err)
	if target.LocalContext == nil || !target.LocalContext.IsMapping() {
		t.Fatalf("expected mapping local context, got %v", target.LocalContext)
	}
}

// ============================================================================
// Config Context Tests
// ============================================================================

func TestCreateAndGetContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord(t, "ctx-1", "ntp", 1500, roleSpine, roleLeaf)
	rec.Description = "NTP servers"
	rec.Source = "api"
	assertNoError(t, repo.CreateContext(ctx, rec))

	got, err := repo.GetContext(ctx, "ctx-1")
	assertNoError(t, err)
	assertEqual(t, "ntp", got.Name)
	assertEqual(t, 1500, got.Weight)
	assertEqual(t, "NTP servers", got.Description)
	assertEqual(t, "api", got.Source)
	assertEqual(t, true, got.IsActive)
	assertEqual(t, []domain.GroupRef{roleLeaf, roleSpine}, got.Groups)
	if !got.Data.Equal(rec.Data) {
		t.Fatalf("data mismatch: %v vs %v", got.Data, rec.Data)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("timestamps should be set")
	}
}

func TestGetContextNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetContext(context.Background(), "missing")
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateContextDuplicateName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateContext(ctx, newRecord(t, "a", "dup", 100)))
	err := repo.CreateContext(ctx, newRecord(t, "b", "dup", 200))
	assertErrorIs(t, err, domain.ErrConflict)
}

func TestCreateContextDanglingAssignment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ghost := domain.GroupRef{Kind: domain.GroupTag, Slug: "ghost"}
	assertNoError(t, repo.CreateContext(ctx, newRecord(t, "a", "ghosted", 100, ghost)))

	got, err := repo.GetContext(ctx, "a")
	assertNoError(t, err)
	assertEqual(t, []domain.GroupRef{ghost}, got.Groups)
}

func TestUpdateContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := newRecord(t, "ctx-1", "dns", 100, roleLeaf)
	assertNoError(t, repo.CreateContext(ctx, rec))

	rec.Weight = 900
	rec.IsActive = false
	rec.Groups = []domain.GroupRef{tenantAcme}
	rec.Data = mapping(t, "dns", []interface{}{"1.1.1.1"})
	assertNoError(t, repo.UpdateContext(ctx, rec))

	got, err := repo.GetContext(ctx, "ctx-1")
	assertNoError(t, err)
	assertEqual(t, 900, got.Weight)
	assertEqual(t, false, got.IsActive)
	assertEqual(t, []domain.GroupRef{tenantAcme}, got.Groups)
	if !got.Data.Equal(rec.Data) {
		t.Fatalf("data mismatch: %v", got.Data)
	}
}

func TestUpdateContextNotFound(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateContext(context.Background(), newRecord(t, "missing", "x", 1))
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateContext(ctx, newRecord(t, "ctx-1", "gone", 100, roleLeaf)))
	assertNoError(t, repo.DeleteContext(ctx, "ctx-1"))

	_, err := repo.GetContext(ctx, "ctx-1")
	assertErrorIs(t, err, domain.ErrNotFound)

	var n int
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM config_context_groups`).Scan(&n))
	assertEqual(t, 0, n)

	assertErrorIs(t, repo.DeleteContext(ctx, "ctx-1"), domain.ErrNotFound)
}

func TestListContexts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inactive := newRecord(t, "4", "inactive", 50)
	inactive.IsActive = false
	synced := newRecord(t, "5", "synced", 10)
	synced.Source = "sync:ntp.yaml"

	for _, rec := range []*domain.ContextRecord{
		newRecord(t, "1", "charlie", 300, roleLeaf),
		newRecord(t, "2", "alpha", 100),
		newRecord(t, "3", "bravo", 100, roleSpine),
		inactive,
		synced,
	} {
		assertNoError(t, repo.CreateContext(ctx, rec))
	}

	all, err := repo.ListContexts(ctx, repository.ContextFilter{})
	assertNoError(t, err)
	assertEqual(t, []string{"synced", "inactive", "alpha", "bravo", "charlie"}, names(all))

	active, err := repo.ListContexts(ctx, repository.ContextFilter{ActiveOnly: true})
	assertNoError(t, err)
	assertEqual(t, []string{"synced", "alpha", "bravo", "charlie"}, names(active))

	byGroup, err := repo.ListContexts(ctx, repository.ContextFilter{Group: &roleLeaf})
	assertNoError(t, err)
	assertEqual(t, []string{"charlie"}, names(byGroup))

	bySource, err := repo.ListContexts(ctx, repository.ContextFilter{Source: "sync:*"})
	assertNoError(t, err)
	assertEqual(t, []string{"synced"}, names(bySource))
}

func TestListApplicableContexts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	off := newRecord(t, "5", "off", 1)
	off.IsActive = false

	for _, rec := range []*domain.ContextRecord{
		newRecord(t, "1", "global", 100),
		newRecord(t, "2", "leaf", 300, roleLeaf),
		newRecord(t, "3", "spine", 200, roleSpine),
		newRecord(t, "4", "site-or-tenant", 200, siteAms, tenantAcme),
		off,
	} {
		assertNoError(t, repo.CreateContext(ctx, rec))
	}

	tests := []struct {
		name        string
		memberships []domain.GroupRef
		want        []string
	}{
		{"no memberships", nil, []string{"global"}},
		{"leaf", []domain.GroupRef{roleLeaf}, []string{"global", "leaf"}},
		{"leaf at site", []domain.GroupRef{roleLeaf, siteAms}, []string{"global", "site-or-tenant", "leaf"}},
		{"spine for tenant", []domain.GroupRef{roleSpine, tenantAcme}, []string{"global", "site-or-tenant", "spine"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListApplicableContexts(ctx, tt.memberships)
			assertNoError(t, err)
			assertEqual(t, tt.want, names(got))
		})
	}
}

func TestReplaceSourceContexts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	manual := newRecord(t, "manual", "manual", 100)
	assertNoError(t, repo.CreateContext(ctx, manual))

	first := []domain.ContextRecord{
		*newRecord(t, "new-a", "ntp", 100, roleLeaf),
		*newRecord(t, "new-b", "dns", 200),
	}
	first[0].Source = "sync:ntp.yaml"
	first[1].Source = "sync:dns.yaml"

	stats, err := repo.ReplaceSourceContexts(ctx, "sync:", first)
	assertNoError(t, err)
	assertEqual(t, repository.SyncStats{Created: 2}, stats)

	stats, err = repo.ReplaceSourceContexts(ctx, "sync:", first)
	assertNoError(t, err)
	assertEqual(t, repository.SyncStats{Unchanged: 2}, stats)

	second := []domain.ContextRecord{
		*newRecord(t, "other-id", "ntp", 150, roleSpine),
		*newRecord(t, "new-c", "syslog", 300),
	}
	second[0].Source = "sync:ntp.yaml"
	second[1].Source = "sync:syslog.yaml"

	stats, err = repo.ReplaceSourceContexts(ctx, "sync:", second)
	assertNoError(t, err)
	assertEqual(t, repository.SyncStats{Created: 1, Updated: 1, Deleted: 1}, stats)

	ntp, err := repo.GetContext(ctx, "new-a")
	assertNoError(t, err)
	assertEqual(t, 150, ntp.Weight)
	assertEqual(t, []domain.GroupRef{roleSpine}, ntp.Groups)

	_, err = repo.GetContext(ctx, "new-b")
	assertErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetContext(ctx, "manual")
	assertNoError(t, err)
}

func TestReplaceSourceContextsRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateContext(ctx, newRecord(t, "manual", "taken", 100)))

	records := []domain.ContextRecord{
		*newRecord(t, "a", "fine", 100),
		*newRecord(t, "b", "taken", 200),
	}
	records[0].Source = "sync:fine.yaml"
	records[1].Source = "sync:taken.yaml"

	_, err := repo.ReplaceSourceContexts(ctx, "sync:", records)
	assertErrorIs(t, err, domain.ErrConflict)

	_, err = repo.GetContext(ctx, "a")
	assertErrorIs(t, err, domain.ErrNotFound)
}

// ============================================================================
// Group Tests
// ============================================================================

func TestGroups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	createGroups(t, repo, roleLeaf, roleSpine, siteAms)

	err := repo.CreateGroup(ctx, &domain.Group{Kind: domain.GroupRole, Slug: "leaf"})
	assertErrorIs(t, err, domain.ErrConflict)

	roles, err := repo.ListGroups(ctx, domain.GroupRole)
	assertNoError(t, err)
	assertEqual(t, 2, len(roles))

	set, err := repo.GroupSet(ctx)
	assertNoError(t, err)
	assertEqual(t, true, set.Contains(siteAms))
	assertEqual(t, false, set.Contains(tenantAcme))

	assertNoError(t, repo.DeleteGroup(ctx, roleSpine))
	assertErrorIs(t, repo.DeleteGroup(ctx, roleSpine), domain.ErrNotFound)
}

// ============================================================================
// Target Tests
// ============================================================================

func TestUpsertAndGetTarget(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createGroups(t, repo, roleLeaf, siteAms)

	target := domain.NewTarget("dev-1", domain.TargetDevice, "leaf01")
	target.Memberships = []domain.GroupRef{siteAms, roleLeaf}
	local := mapping(t, "bgp", map[string]interface{}{"asn": 65001})
	target.LocalContext = &local
	assertNoError(t, repo.UpsertTarget(ctx, target))

	got, err := repo.GetTarget(ctx, "dev-1")
	assertNoError(t, err)
	assertEqual(t, "leaf01", got.Name)
	assertEqual(t, []domain.GroupRef{siteAms, roleLeaf}, got.Memberships)
	if got.LocalContext == nil || !got.LocalContext.Equal(local) {
		t.Fatalf("local context mismatch: %v", got.LocalContext)
	}

	target.Name = "leaf01-renamed"
	target.Memberships = []domain.GroupRef{roleLeaf}
	assertNoError(t, repo.UpsertTarget(ctx, target))

	got, err = repo.GetTarget(ctx, "dev-1")
	assertNoError(t, err)
	assertEqual(t, "leaf01-renamed", got.Name)
	assertEqual(t, []domain.GroupRef{roleLeaf}, got.Memberships)
}

func TestUpsertTargetUnknownGroup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	target := domain.NewTarget("dev-1", domain.TargetDevice, "leaf01")
	target.Memberships = []domain.GroupRef{roleLeaf}
	assertErrorIs(t, repo.UpsertTarget(ctx, target), domain.ErrValidation)

	_, err := repo.GetTarget(ctx, "dev-1")
	assertErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteGroupDropsMemberships(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createGroups(t, repo, roleLeaf, siteAms)

	target := domain.NewTarget("dev-1", domain.TargetDevice, "leaf01")
	target.Memberships = []domain.GroupRef{roleLeaf, siteAms}
	assertNoError(t, repo.UpsertTarget(ctx, target))

	assertNoError(t, repo.DeleteGroup(ctx, roleLeaf))

	got, err := repo.GetTarget(ctx, "dev-1")
	assertNoError(t, err)
	assertEqual(t, []domain.GroupRef{siteAms}, got.Memberships)
}

func TestSetLocalContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.UpsertTarget(ctx, domain.NewTarget("vm-1", domain.TargetVirtualMachine, "vm01")))

	local := mapping(t, "k", 1)
	assertNoError(t, repo.SetLocalContext(ctx, "vm-1", &local))

	got, err := repo.GetTarget(ctx, "vm-1")
	assertNoError(t, err)
	if got.LocalContext == nil || !got.LocalContext.Equal(local) {
		t.Fatalf("local context mismatch: %v", got.LocalContext)
	}

	assertNoError(t, repo.SetLocalContext(ctx, "vm-1", nil))
	got, err = repo.GetTarget(ctx, "vm-1")
	assertNoError(t, err)
	if got.LocalContext != nil {
		t.Fatalf("expected cleared local context, got %v", got.LocalContext)
	}

	assertErrorIs(t, repo.SetLocalContext(ctx, "missing", &local), domain.ErrNotFound)
}

func TestListAndDeleteTargets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createGroups(t, repo, roleLeaf)

	b := domain.NewTarget("2", domain.TargetDevice, "bravo")
	b.Memberships = []domain.GroupRef{roleLeaf}
	assertNoError(t, repo.UpsertTarget(ctx, b))
	assertNoError(t, repo.UpsertTarget(ctx, domain.NewTarget("1", domain.TargetDevice, "alpha")))

	targets, err := repo.ListTargets(ctx)
	assertNoError(t, err)
	assertEqual(t, 2, len(targets))
	assertEqual(t, "alpha", targets[0].Name)
	assertEqual(t, []domain.GroupRef{roleLeaf}, targets[1].Memberships)

	assertNoError(t, repo.DeleteTarget(ctx, "2"))
	assertErrorIs(t, repo.DeleteTarget(ctx, "2"), domain.ErrNotFound)

	var n int
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM target_memberships`).Scan(&n))
	assertEqual(t, 0, n)
}

// ============================================================================
// Metadata Tests
// ============================================================================

func TestMetadata(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetMetadata(ctx, "last_sync")
	assertErrorIs(t, err, domain.ErrNotFound)

	assertNoError(t, repo.SetMetadata(ctx, "last_sync", "one"))
	assertNoError(t, repo.SetMetadata(ctx, "last_sync", "two"))

	got, err := repo.GetMetadata(ctx, "last_sync")
	assertNoError(t, err)
	assertEqual(t, "two", got)

	assertNoError(t, repo.Ping(ctx))
}
