package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"configctx/internal/domain"
	"configctx/internal/repository"
	"configctx/internal/resolver"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SourceAPI marks records created through the API
const SourceAPI = "api"

// Rendered is the config context of one target
type Rendered struct {
	TargetID   string           `json:"target_id"`
	TargetName string           `json:"target_name"`
	Data       domain.Value     `json:"data"`
	Applied    []string         `json:"applied"`
	Issues     []resolver.Issue `json:"issues,omitempty"`
	// ETag identifies everything above; equal renders yield equal tags
	ETag string `json:"-"`
}

// ContextService provides business logic for config contexts, groups and targets
type ContextService struct {
	repo     repository.Repository
	resolver *resolver.Resolver
	eventBus *EventBus
	cache    *resolutionCache
	log      *zap.SugaredLogger
}

// NewContextService creates a context service. A cacheSize of zero or less
// disables the resolution cache.
func NewContextService(repo repository.Repository, res *resolver.Resolver, eventBus *EventBus, cacheSize int) (*ContextService, error) {
	cache, err := newResolutionCache(cacheSize)
	if err != nil {
		return nil, err
	}

	s := &ContextService{
		repo:     repo,
		resolver: res,
		eventBus: eventBus,
		cache:    cache,
		log:      zap.S().Named("contexts"),
	}

	// Any write may change some render; dropping everything is simplest
	eventBus.SubscribeFunc(func(Event) {
		s.cache.purge()
	})

	return s, nil
}

// ============================================================================
// Config contexts
// ============================================================================

// ListContexts returns records matching filter
func (s *ContextService) ListContexts(ctx context.Context, filter repository.ContextFilter) ([]domain.ContextRecord, error) {
	return s.repo.ListContexts(ctx, filter)
}

// GetContext retrieves a single record by ID
func (s *ContextService) GetContext(ctx context.Context, id string) (*domain.ContextRecord, error) {
	return s.repo.GetContext(ctx, id)
}

// CreateContext validates and stores a new record, assigning an ID when missing
func (s *ContextService) CreateContext(ctx context.Context, rec *domain.ContextRecord) error {
	normalizeRecord(rec)
	if err := rec.Validate(); err != nil {
		return err
	}
	if isSynced(rec.Source) {
		return fmt.Errorf("source %q is reserved for directory sync: %w", rec.Source, domain.ErrValidation)
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Source == "" {
		rec.Source = SourceAPI
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.repo.CreateContext(ctx, rec); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventContextCreated,
		Payload: map[string]string{"id": rec.ID, "name": rec.Name},
	})
	return nil
}

// UpdateContext replaces the record with id. Records owned by directory sync
// cannot be changed here; the next sync would undo it.
func (s *ContextService) UpdateContext(ctx context.Context, id string, rec *domain.ContextRecord) error {
	existing, err := s.repo.GetContext(ctx, id)
	if err != nil {
		return err
	}
	if isSynced(existing.Source) {
		return fmt.Errorf("config context %q is managed by %s: %w", existing.Name, existing.Source, domain.ErrConflict)
	}

	normalizeRecord(rec)
	if err := rec.Validate(); err != nil {
		return err
	}

	rec.ID = id
	rec.Source = existing.Source
	rec.CreatedAt = existing.CreatedAt

	if err := s.repo.UpdateContext(ctx, rec); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventContextUpdated,
		Payload: map[string]string{"id": rec.ID, "name": rec.Name},
	})
	return nil
}

// DeleteContext removes a record. Synced records are removed by deleting their file.
func (s *ContextService) DeleteContext(ctx context.Context, id string) error {
	existing, err := s.repo.GetContext(ctx, id)
	if err != nil {
		return err
	}
	if isSynced(existing.Source) {
		return fmt.Errorf("config context %q is managed by %s: %w", existing.Name, existing.Source, domain.ErrConflict)
	}

	if err := s.repo.DeleteContext(ctx, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventContextDeleted,
		Payload: map[string]string{"id": id, "name": existing.Name},
	})
	return nil
}

// ============================================================================
// Groups
// ============================================================================

// CreateGroup registers a group so targets can join it
func (s *ContextService) CreateGroup(ctx context.Context, g *domain.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	g.CreatedAt = time.Now().UTC()

	if err := s.repo.CreateGroup(ctx, g); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventGroupCreated,
		Payload: map[string]string{"group": g.Ref().String()},
	})
	return nil
}

// ListGroups returns groups of kind, or all groups when kind is empty
func (s *ContextService) ListGroups(ctx context.Context, kind domain.GroupKind) ([]domain.Group, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("unknown group kind %q: %w", kind, domain.ErrValidation)
	}
	return s.repo.ListGroups(ctx, kind)
}

// DeleteGroup removes a group. Records still assigned to it keep the
// reference, which then never matches.
func (s *ContextService) DeleteGroup(ctx context.Context, ref domain.GroupRef) error {
	if err := s.repo.DeleteGroup(ctx, ref); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventGroupDeleted,
		Payload: map[string]string{"group": ref.String()},
	})
	return nil
}

// ============================================================================
// Targets
// ============================================================================

// UpsertTarget creates or replaces a target
func (s *ContextService) UpsertTarget(ctx context.Context, t *domain.Target) error {
	if t.Kind == "" {
		t.Kind = domain.TargetDevice
	}
	if err := t.Validate(); err != nil {
		return err
	}

	if existing, err := s.repo.GetTarget(ctx, t.ID); err == nil {
		t.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertTarget(ctx, t); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventTargetUpdated,
		Payload: map[string]string{"id": t.ID, "name": t.Name},
	})
	return nil
}

// GetTarget retrieves a single target by ID
func (s *ContextService) GetTarget(ctx context.Context, id string) (*domain.Target, error) {
	return s.repo.GetTarget(ctx, id)
}

// ListTargets returns all targets
func (s *ContextService) ListTargets(ctx context.Context) ([]domain.Target, error) {
	return s.repo.ListTargets(ctx)
}

// DeleteTarget removes a target
func (s *ContextService) DeleteTarget(ctx context.Context, id string) error {
	if err := s.repo.DeleteTarget(ctx, id); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventTargetDeleted,
		Payload: map[string]string{"id": id},
	})
	return nil
}

// SetLocalContext replaces the local context of a target. nil or null clears it.
func (s *ContextService) SetLocalContext(ctx context.Context, id string, local *domain.Value) error {
	if local != nil && local.IsNull() {
		local = nil
	}
	if local != nil && !local.IsMapping() {
		return fmt.Errorf("local context is %s, not a mapping: %w", local.Kind(), domain.ErrInvalidContextData)
	}

	if err := s.repo.SetLocalContext(ctx, id, local); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventLocalContextUpdated,
		Payload: map[string]string{"id": id},
	})
	return nil
}

// ============================================================================
// Rendering
// ============================================================================

// RenderConfigContext resolves the config context of the target with id
func (s *ContextService) RenderConfigContext(ctx context.Context, id string) (*Rendered, error) {
	target, err := s.repo.GetTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, target)
}

// ExportConfigContexts renders every target into one mapping keyed by target name
func (s *ContextService) ExportConfigContexts(ctx context.Context) (domain.Value, error) {
	targets, err := s.repo.ListTargets(ctx)
	if err != nil {
		return domain.Value{}, err
	}

	bundle := domain.NewMapping()
	for i := range targets {
		rendered, err := s.render(ctx, &targets[i])
		if err != nil {
			return domain.Value{}, fmt.Errorf("render %s: %w", targets[i].Name, err)
		}
		if _, dup := bundle.Get(targets[i].Name); dup {
			s.log.Warnw("Duplicate target name in export, keeping the first", "name", targets[i].Name, "id", targets[i].ID)
			continue
		}
		bundle.Set(targets[i].Name, rendered.Data.Clone())
	}
	return bundle, nil
}

// CacheLen reports how many renders are cached
func (s *ContextService) CacheLen() int {
	return s.cache.len()
}

func (s *ContextService) render(ctx context.Context, target *domain.Target) (*Rendered, error) {
	records, err := s.repo.ListApplicableContexts(ctx, target.Memberships)
	if err != nil {
		return nil, fmt.Errorf("load config contexts: %w", err)
	}
	groups, err := s.repo.GroupSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	snap := resolver.Snapshot{Records: records, Groups: groups}

	key, err := fingerprint(target, snap, s.resolver.Policy())
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	start := time.Now()
	res := s.resolver.Resolve(target, snap)
	resolveDuration.Observe(time.Since(start).Seconds())
	resolutionsTotal.Inc()
	for _, issue := range res.Issues {
		resolutionIssuesTotal.WithLabelValues(string(issue.Kind)).Inc()
	}

	rendered := &Rendered{
		TargetID:   target.ID,
		TargetName: target.Name,
		Data:       res.Data,
		Applied:    res.Applied,
		Issues:     res.Issues,
	}
	data, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("encode rendered context: %w", err)
	}
	rendered.ETag = etag(data)
	s.cache.add(key, rendered)

	s.log.Debugw("Rendered config context",
		"target", target.Name,
		"applied", len(res.Applied),
		"issues", len(res.Issues),
	)
	return rendered, nil
}

// ============================================================================
// Helpers
// ============================================================================

// normalizeRecord fills defaults an API client may leave out
func normalizeRecord(rec *domain.ContextRecord) {
	rec.Name = strings.TrimSpace(rec.Name)
	if rec.Data.IsNull() {
		rec.Data = domain.NewMapping()
	}
	domain.SortGroupRefs(rec.Groups)
}

func isSynced(source string) bool {
	return strings.HasPrefix(source, SyncSourcePrefix)
}
