package service

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"configctx/internal/codec"
	"configctx/internal/domain"
	"configctx/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncSourcePrefix marks records owned by directory sync; the file path follows it
const SyncSourcePrefix = "sync:"

// metadataLastSync stores the time of the last successful sync
const metadataLastSync = "last_sync"

// FileError is a document that could not be synced
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SyncResult summarizes one sync run
type SyncResult struct {
	Directory string               `json:"directory"`
	Files     int                  `json:"files"`
	Stats     repository.SyncStats `json:"stats"`
	Errors    []FileError          `json:"errors,omitempty"`
	Duration  time.Duration        `json:"duration"`
}

// SyncService loads config context documents from a directory, typically a
// checkout of a git repository, and mirrors them into the database.
type SyncService struct {
	repo     repository.Repository
	eventBus *EventBus
	dir      string
	mu       sync.Mutex
	log      *zap.SugaredLogger
}

// NewSyncService creates a sync service for dir
func NewSyncService(repo repository.Repository, eventBus *EventBus, dir string) *SyncService {
	return &SyncService{
		repo:     repo,
		eventBus: eventBus,
		dir:      dir,
		log:      zap.S().Named("sync"),
	}
}

// Directory returns the synced directory
func (s *SyncService) Directory() string {
	return s.dir
}

// Sync reads every document under the directory and replaces the synced
// records with them. A document that fails to parse, or that takes a name
// already used by an API record, keeps its previously synced record, so one
// bad edit does not drop configuration. Runs are serialized.
func (s *SyncService) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result, err := s.sync(ctx)
	if err != nil {
		syncRunsTotal.WithLabelValues("error").Inc()
		s.log.Errorw("Sync failed", "directory", s.dir, "error", err)
		s.eventBus.Publish(Event{
			Type:    EventSyncFailed,
			Payload: map[string]string{"directory": s.dir, "error": err.Error()},
		})
		return nil, err
	}
	result.Duration = time.Since(start)

	if len(result.Errors) > 0 {
		syncRunsTotal.WithLabelValues("partial").Inc()
	} else {
		syncRunsTotal.WithLabelValues("ok").Inc()
	}

	if err := s.repo.SetMetadata(ctx, metadataLastSync, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warnw("Failed to record sync time", "error", err)
	}

	s.log.Infow("Sync completed",
		"directory", s.dir,
		"files", result.Files,
		"created", result.Stats.Created,
		"updated", result.Stats.Updated,
		"deleted", result.Stats.Deleted,
		"unchanged", result.Stats.Unchanged,
		"errors", len(result.Errors),
	)
	s.eventBus.Publish(Event{Type: EventSyncCompleted, Payload: result})

	return result, nil
}

// LastSync returns when the last successful sync finished
func (s *SyncService) LastSync(ctx context.Context) (time.Time, error) {
	value, err := s.repo.GetMetadata(ctx, metadataLastSync)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, value)
}

func (s *SyncService) sync(ctx context.Context) (*SyncResult, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		return nil, fmt.Errorf("sync directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sync directory %s is not a directory", s.dir)
	}

	existing, err := s.repo.ListContexts(ctx, repository.ContextFilter{})
	if err != nil {
		return nil, err
	}
	bySource := make(map[string]domain.ContextRecord, len(existing))
	reserved := make(map[string]bool)
	for _, rec := range existing {
		if strings.HasPrefix(rec.Source, SyncSourcePrefix) {
			bySource[rec.Source] = rec
			continue
		}
		reserved[rec.Name] = true
	}

	docs, errs, err := LoadDirectory(s.dir)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Directory: s.dir, Files: len(docs) + len(errs)}
	records := make([]domain.ContextRecord, 0, len(docs)+len(errs))

	for _, fe := range errs {
		result.Errors = append(result.Errors, fe)
		s.log.Warnw("Skipping invalid config context document", "path", fe.Path, "error", fe.Error)
		if old, ok := bySource[SyncSourcePrefix+fe.Path]; ok {
			records = append(records, old)
		}
	}

	for _, rec := range docs {
		rec.ID = uuid.NewString()
		records = append(records, rec)
	}

	records, dupes := DedupNames(records)
	for _, fe := range dupes {
		result.Errors = append(result.Errors, fe)
		s.log.Warnw("Skipping duplicate config context name", "path", fe.Path, "error", fe.Error)
	}

	records, clashes := dropReserved(records, reserved, bySource)
	for _, fe := range clashes {
		result.Errors = append(result.Errors, fe)
		s.log.Warnw("Skipping config context named like an API record", "path", fe.Path, "error", fe.Error)
	}

	stats, err := s.repo.ReplaceSourceContexts(ctx, SyncSourcePrefix, records)
	if err != nil {
		return nil, err
	}
	result.Stats = stats
	syncedContexts.Set(float64(len(records)))

	return result, nil
}

// LoadDirectory parses every JSON and YAML document below dir. Hidden files
// and directories are skipped. Each record gets its file path, relative to
// dir, as source and, when the document has no name, the file name without
// extension as name. Documents that fail to parse are returned as FileErrors.
func LoadDirectory(dir string) ([]domain.ContextRecord, []FileError, error) {
	var (
		records []domain.ContextRecord
		errs    []FileError
	)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		c, ok := codec.ForPath(path)
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		rec, err := loadDocument(c, path, rel)
		if err != nil {
			errs = append(errs, FileError{Path: rel, Error: err.Error()})
			return nil
		}
		records = append(records, *rec)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	return records, errs, nil
}

func loadDocument(c codec.Importer, path, rel string) (*domain.ContextRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rec, err := c.ParseDocument(f)
	if err != nil {
		return nil, err
	}

	if rec.Name == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	}
	rec.Source = SyncSourcePrefix + rel
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DedupNames keeps the first record of each name in source order and reports the rest
func DedupNames(records []domain.ContextRecord) ([]domain.ContextRecord, []FileError) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Source < records[j].Source
	})

	seen := make(map[string]string, len(records))
	kept := records[:0]
	var dupes []FileError
	for _, rec := range records {
		if first, ok := seen[rec.Name]; ok {
			dupes = append(dupes, FileError{
				Path:  strings.TrimPrefix(rec.Source, SyncSourcePrefix),
				Error: fmt.Sprintf("name %q already used by %s", rec.Name, strings.TrimPrefix(first, SyncSourcePrefix)),
			})
			continue
		}
		seen[rec.Name] = rec.Source
		kept = append(kept, rec)
	}
	return kept, dupes
}

// dropReserved removes records whose name is held by a record outside sync.
// Such a document falls back to its previously synced record while that
// record's name is still free.
func dropReserved(records []domain.ContextRecord, reserved map[string]bool, previous map[string]domain.ContextRecord) ([]domain.ContextRecord, []FileError) {
	names := make(map[string]bool, len(records))
	for _, rec := range records {
		if !reserved[rec.Name] {
			names[rec.Name] = true
		}
	}

	kept := make([]domain.ContextRecord, 0, len(records))
	var clashes []FileError
	for _, rec := range records {
		if !reserved[rec.Name] {
			kept = append(kept, rec)
			continue
		}
		clashes = append(clashes, FileError{
			Path:  strings.TrimPrefix(rec.Source, SyncSourcePrefix),
			Error: fmt.Sprintf("name %q is used by a config context managed through the API", rec.Name),
		})
		if old, ok := previous[rec.Source]; ok && !reserved[old.Name] && !names[old.Name] {
			kept = append(kept, old)
			names[old.Name] = true
		}
	}
	return kept, clashes
}
