package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"configctx/internal/codec"
	"configctx/internal/domain"
	"configctx/internal/repository"
	"configctx/internal/service"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// maxBodySize caps request bodies
const maxBodySize = 8 << 20

// Syncer runs a directory sync on request
type Syncer interface {
	Sync(ctx context.Context) (*service.SyncResult, error)
	LastSync(ctx context.Context) (time.Time, error)
	Directory() string
}

// ContextHandler handles config context API requests
type ContextHandler struct {
	svc    *service.ContextService
	syncer Syncer
	log    *zap.SugaredLogger
}

// NewContextHandler creates a new context handler
func NewContextHandler(svc *service.ContextService) *ContextHandler {
	return &ContextHandler{svc: svc, log: zap.S().Named("http")}
}

// SetSyncer enables the sync endpoints
func (h *ContextHandler) SetSyncer(s Syncer) {
	h.syncer = s
}

// Register adds the API routes to mux
func (h *ContextHandler) Register(mux *http.ServeMux) {
	// Config context records
	mux.HandleFunc("GET /api/config-contexts", h.ListContexts)
	mux.HandleFunc("POST /api/config-contexts", h.CreateContext)
	mux.HandleFunc("GET /api/config-contexts/{id}", h.GetContext)
	mux.HandleFunc("PUT /api/config-contexts/{id}", h.UpdateContext)
	mux.HandleFunc("DELETE /api/config-contexts/{id}", h.DeleteContext)

	// Groups
	mux.HandleFunc("GET /api/groups", h.ListGroups)
	mux.HandleFunc("POST /api/groups", h.CreateGroup)
	mux.HandleFunc("DELETE /api/groups/{kind}/{slug}", h.DeleteGroup)

	// Targets
	mux.HandleFunc("GET /api/targets", h.ListTargets)
	mux.HandleFunc("GET /api/targets/{id}", h.GetTarget)
	mux.HandleFunc("PUT /api/targets/{id}", h.PutTarget)
	mux.HandleFunc("DELETE /api/targets/{id}", h.DeleteTarget)
	mux.HandleFunc("PUT /api/targets/{id}/local-context", h.SetLocalContext)
	mux.HandleFunc("DELETE /api/targets/{id}/local-context", h.ClearLocalContext)

	// Rendering
	mux.HandleFunc("GET /api/targets/{id}/config-context", h.GetConfigContext)
	mux.HandleFunc("GET /api/export", h.Export)

	// Directory sync
	mux.HandleFunc("GET /api/sync", h.SyncStatus)
	mux.HandleFunc("POST /api/sync", h.TriggerSync)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ============================================================================
// Config contexts
// ============================================================================

// ListContexts returns records, optionally filtered by group, source and activity
func (h *ContextHandler) ListContexts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ContextFilter{
		Source:     q.Get("source"),
		ActiveOnly: q.Get("active") == "true",
	}
	if g := q.Get("group"); g != "" {
		ref, err := domain.ParseGroupRef(g)
		if err != nil {
			h.writeError(w, "Invalid group", err)
			return
		}
		filter.Group = &ref
	}

	records, err := h.svc.ListContexts(r.Context(), filter)
	if err != nil {
		h.writeError(w, "Failed to list config contexts", err)
		return
	}
	if records == nil {
		records = []domain.ContextRecord{}
	}
	h.writeJSON(w, records, http.StatusOK)
}

// GetContext returns a single record
func (h *ContextHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetContext(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "Failed to get config context", err)
		return
	}
	h.writeJSON(w, rec, http.StatusOK)
}

// CreateContext creates a record from a JSON or YAML context document
func (h *ContextHandler) CreateContext(w http.ResponseWriter, r *http.Request) {
	rec, err := h.readDocument(r)
	if err != nil {
		h.writeError(w, "Invalid request body", err)
		return
	}

	if err := h.svc.CreateContext(r.Context(), rec); err != nil {
		h.writeError(w, "Failed to create config context", err)
		return
	}
	h.writeJSON(w, rec, http.StatusCreated)
}

// UpdateContext replaces a record with the document in the body
func (h *ContextHandler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	rec, err := h.readDocument(r)
	if err != nil {
		h.writeError(w, "Invalid request body", err)
		return
	}

	if err := h.svc.UpdateContext(r.Context(), r.PathValue("id"), rec); err != nil {
		h.writeError(w, "Failed to update config context", err)
		return
	}
	h.writeJSON(w, rec, http.StatusOK)
}

// DeleteContext deletes a record
func (h *ContextHandler) DeleteContext(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteContext(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, "Failed to delete config context", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Groups
// ============================================================================

// ListGroups returns groups, optionally of one kind
func (h *ContextHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	var kind domain.GroupKind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, ok := domain.ParseGroupKind(k)
		if !ok {
			h.writeError(w, "Invalid group kind", fmt.Errorf("unknown group kind %q: %w", k, domain.ErrValidation))
			return
		}
		kind = parsed
	}

	groups, err := h.svc.ListGroups(r.Context(), kind)
	if err != nil {
		h.writeError(w, "Failed to list groups", err)
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	h.writeJSON(w, groups, http.StatusOK)
}

// CreateGroup registers a group
func (h *ContextHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var g domain.Group
	if err := decodeJSON(r, &g); err != nil {
		h.writeError(w, "Invalid request body", err)
		return
	}
	if kind, ok := domain.ParseGroupKind(string(g.Kind)); ok {
		g.Kind = kind
	}

	if err := h.svc.CreateGroup(r.Context(), &g); err != nil {
		h.writeError(w, "Failed to create group", err)
		return
	}
	h.writeJSON(w, g, http.StatusCreated)
}

// DeleteGroup removes a group
func (h *ContextHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	ref, err := domain.ParseGroupRef(r.PathValue("kind") + ":" + r.PathValue("slug"))
	if err != nil {
		h.writeError(w, "Invalid group", err)
		return
	}

	if err := h.svc.DeleteGroup(r.Context(), ref); err != nil {
		h.writeError(w, "Failed to delete group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Targets
// ============================================================================

// ListTargets returns all targets
func (h *ContextHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.svc.ListTargets(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list targets", err)
		return
	}
	if targets == nil {
		targets = []domain.Target{}
	}
	h.writeJSON(w, targets, http.StatusOK)
}

// GetTarget returns a single target
func (h *ContextHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTarget(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "Failed to get target", err)
		return
	}
	h.writeJSON(w, t, http.StatusOK)
}

// PutTarget creates or replaces a target
func (h *ContextHandler) PutTarget(w http.ResponseWriter, r *http.Request) {
	var t domain.Target
	if err := decodeJSON(r, &t); err != nil {
		h.writeError(w, "Invalid request body", err)
		return
	}
	t.ID = r.PathValue("id") // Path wins over body
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := h.svc.UpsertTarget(r.Context(), &t); err != nil {
		h.writeError(w, "Failed to save target", err)
		return
	}
	h.writeJSON(w, t, http.StatusOK)
}

// DeleteTarget removes a target
func (h *ContextHandler) DeleteTarget(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTarget(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, "Failed to delete target", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetLocalContext replaces the target's local context with the JSON or YAML mapping in the body
func (h *ContextHandler) SetLocalContext(w http.ResponseWriter, r *http.Request) {
	c, err := requestCodec(r)
	if err != nil {
		h.writeError(w, "Unsupported content type", err)
		return
	}
	local, err := c.ParseData(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, "Invalid local context", err)
		return
	}

	if err := h.svc.SetLocalContext(r.Context(), r.PathValue("id"), &local); err != nil {
		h.writeError(w, "Failed to set local context", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLocalContext removes the target's local context
func (h *ContextHandler) ClearLocalContext(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SetLocalContext(r.Context(), r.PathValue("id"), nil); err != nil {
		h.writeError(w, "Failed to clear local context", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Rendering
// ============================================================================

// GetConfigContext renders the config context of a target. ?format=yaml
// selects YAML; ?detail=true wraps the data with the applied records and
// any issues. Responses carry an ETag and honour If-None-Match.
func (h *ContextHandler) GetConfigContext(w http.ResponseWriter, r *http.Request) {
	rendered, err := h.svc.RenderConfigContext(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, "Failed to render config context", err)
		return
	}

	detail, _ := strconv.ParseBool(r.URL.Query().Get("detail"))
	variant := "detail"
	var c codec.Codec
	if !detail {
		if c, err = responseCodec(r); err != nil {
			h.writeError(w, "Unsupported format", err)
			return
		}
		variant = c.Format()
	}

	tag := variantTag(rendered.ETag, variant)
	w.Header().Set("ETag", tag)
	w.Header().Set("Vary", "Accept")
	w.Header().Set("X-Config-Context-Issues", strconv.Itoa(len(rendered.Issues)))
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if detail {
		h.writeJSON(w, rendered, http.StatusOK)
		return
	}
	h.export(w, c, rendered.Data, "")
}

// Export renders every target into one document keyed by target name
func (h *ContextHandler) Export(w http.ResponseWriter, r *http.Request) {
	c, err := responseCodec(r)
	if err != nil {
		h.writeError(w, "Unsupported format", err)
		return
	}

	bundle, err := h.svc.ExportConfigContexts(r.Context())
	if err != nil {
		h.writeError(w, "Failed to export config contexts", err)
		return
	}
	h.export(w, c, bundle, "config-contexts."+c.Format())
}

// ============================================================================
// Sync
// ============================================================================

// SyncStatus reports the synced directory and when it was last synced
func (h *ContextHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeJSON(w, map[string]interface{}{"enabled": false}, http.StatusOK)
		return
	}

	status := map[string]interface{}{
		"enabled":   true,
		"directory": h.syncer.Directory(),
	}
	if last, err := h.syncer.LastSync(r.Context()); err == nil {
		status["last_sync"] = last
	} else if !errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, "Failed to read sync status", err)
		return
	}
	h.writeJSON(w, status, http.StatusOK)
}

// TriggerSync runs a directory sync and returns its result
func (h *ContextHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		h.writeJSON(w, ErrorResponse{
			Error:   "Sync not configured",
			Details: "No sync directory is configured",
		}, http.StatusServiceUnavailable)
		return
	}

	result, err := h.syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, "Sync failed", err)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

// ============================================================================
// Helpers
// ============================================================================

func (h *ContextHandler) readDocument(r *http.Request) (*domain.ContextRecord, error) {
	c, err := requestCodec(r)
	if err != nil {
		return nil, err
	}
	return c.ParseDocument(io.LimitReader(r.Body, maxBodySize))
}

func (h *ContextHandler) export(w http.ResponseWriter, c codec.Exporter, v domain.Value, filename string) {
	w.Header().Set("Content-Type", c.ContentType())
	if filename != "" {
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	}
	if err := c.Export(v, w); err != nil {
		// Headers are already out
		h.log.Errorw("Failed to write export", "format", c.Format(), "error", err)
	}
}

func (h *ContextHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Errorw("Failed to encode JSON", "error", err)
	}
}

func (h *ContextHandler) writeError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw(message, "error", err)
	}
	writeError(w, message, err.Error(), status)
}

func writeError(w http.ResponseWriter, message, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Details: details,
	}); err != nil {
		zap.S().Errorw("Failed to encode error response", "error", err)
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidContextData):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// requestCodec picks the body codec from Content-Type; JSON when unset
func requestCodec(r *http.Request) (codec.Codec, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return codec.NewJSONCodec(), nil
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	switch {
	case strings.Contains(mediaType, "yaml"):
		return codec.NewYAMLCodec(), nil
	case strings.Contains(mediaType, "json"), mediaType == "text/plain":
		return codec.NewJSONCodec(), nil
	}
	return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrValidation, mediaType)
}

// responseCodec picks the output codec from ?format=, then Accept
func responseCodec(r *http.Request) (codec.Codec, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		return codec.ForFormat(f)
	}
	if strings.Contains(r.Header.Get("Accept"), "yaml") {
		return codec.NewYAMLCodec(), nil
	}
	return codec.NewJSONCodec(), nil
}

// variantTag qualifies a rendered tag with the representation served, so JSON,
// YAML and detail responses never share a tag
func variantTag(tag, variant string) string {
	return strings.TrimSuffix(tag, `"`) + "-" + variant + `"`
}

// etagMatches implements the If-None-Match comparison for a single strong tag
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}
	return false
}
