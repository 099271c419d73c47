package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"garak-board/internal/cache"
	"garak-board/internal/garak"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrFolderNotFound  = errors.New("folder not found")
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrInvalidReport   = errors.New("invalid report")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrForbidden       = errors.New("forbidden")
	ErrTooLarge        = errors.New("report exceeds size limit")
	ErrRateLimited     = errors.New("upload rate limit reached")
)

// ReportService orchestrates the garak engine against the storage backend:
// upload validation, cache-fronted metadata, attempt browsing, and score
// corrections with cache invalidation. A small worker pool pre-warms the
// metadata cache after uploads.
type ReportService struct {
	store Store
	cache *cache.Cache
	obs   *Observability

	maxUploadBytes int64
	uploadLimit    *ipRateLimiter

	warm chan string
	wg   sync.WaitGroup
	once sync.Once
}

func NewReportService(cfg ServerConfig, store Store, c *cache.Cache, obs *Observability) *ReportService {
	workers := cfg.Limits.WarmWorkers
	if workers <= 0 {
		workers = 2
	}
	service := &ReportService{
		store:          store,
		cache:          c,
		obs:            obs,
		maxUploadBytes: cfg.Limits.MaxUploadBytes,
		uploadLimit:    newIPRateLimiter(cfg.Limits.UploadRPM),
		warm:           make(chan string, workers*8),
	}
	for i := 0; i < workers; i++ {
		service.wg.Add(1)
		go func() {
			defer service.wg.Done()
			service.warmWorker()
		}()
	}
	return service
}

func (s *ReportService) Shutdown() {
	s.once.Do(func() {
		close(s.warm)
	})
	s.wg.Wait()
}

// MetadataCacheKey is the cache key fronting metadata computation for one
// stored report.
func MetadataCacheKey(reportID string) string {
	return "report:metadata:" + reportID
}

// Upload validates and stores a report. Validation failures surface as
// ErrInvalidReport with the validator's message attached.
func (s *ReportService) Upload(ctx context.Context, filename, folderID, content string, principal Principal, ipHash, uaHash string) (ReportRecord, error) {
	if !s.uploadLimit.Allow(ipHash) {
		s.obs.MarkUpload(ctx, "rate_limited")
		_ = s.store.AppendAudit(AuditEvent{
			ActorType: principal.Role,
			ActorSub:  principal.Subject,
			Action:    "report.upload",
			Result:    "rate_limited",
			IPHash:    ipHash,
			UAHash:    uaHash,
		})
		return ReportRecord{}, ErrRateLimited
	}
	if s.maxUploadBytes > 0 && int64(len(content)) > s.maxUploadBytes {
		s.obs.MarkUpload(ctx, "too_large")
		return ReportRecord{}, ErrTooLarge
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return ReportRecord{}, fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}
	if folderID != "" {
		if _, ok := s.store.GetFolder(folderID); !ok {
			return ReportRecord{}, ErrFolderNotFound
		}
	}

	result := garak.ValidateReport(content)
	if !result.IsValid {
		s.obs.MarkUpload(ctx, "invalid")
		_ = s.store.AppendAudit(AuditEvent{
			ActorType: principal.Role,
			ActorSub:  principal.Subject,
			Action:    "report.upload",
			Result:    "invalid",
			IPHash:    ipHash,
			UAHash:    uaHash,
			Detail:    result.Error,
		})
		return ReportRecord{}, fmt.Errorf("%w: %s", ErrInvalidReport, result.Error)
	}

	meta := ReportRecord{
		ID:         uuid.NewString(),
		Filename:   filename,
		FolderID:   folderID,
		CreatorSub: principal.Subject,
		SizeBytes:  int64(len(content)),
		CreatedAt:  nowRFC3339(),
	}
	if result.Metadata != nil {
		meta.RunID = result.Metadata.RunID
		meta.StartTime = result.Metadata.StartTime
		meta.GarakVersion = result.Metadata.GarakVersion
	}
	if err := s.store.CreateReport(meta, content); err != nil {
		return ReportRecord{}, fmt.Errorf("store report: %w", err)
	}
	_ = s.store.AppendAudit(AuditEvent{
		ReportID:  meta.ID,
		ActorType: principal.Role,
		ActorSub:  principal.Subject,
		Action:    "report.upload",
		Result:    "stored",
		IPHash:    ipHash,
		UAHash:    uaHash,
		Detail:    filename,
	})
	s.obs.MarkUpload(ctx, "stored")
	s.queueWarm(meta.ID)
	return meta, nil
}

// Metadata returns the statistics view of a report, computing and caching it
// on first access. Cached entries live until the report content is mutated.
func (s *ReportService) Metadata(ctx context.Context, reportID string) (*garak.ReportMetadata, error) {
	key := MetadataCacheKey(reportID)
	if value, ok := s.cache.Get(key); ok {
		s.obs.MarkCacheLookup(ctx, true)
		if meta, ok := value.(*garak.ReportMetadata); ok {
			return meta, nil
		}
	}
	s.obs.MarkCacheLookup(ctx, false)

	content, err := s.store.GetReportContent(reportID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	start := time.Now()
	meta := garak.ParseMetadata(content)
	s.obs.MarkParse(ctx, "metadata", time.Since(start).Milliseconds())

	s.cache.Set(key, meta, 0)
	return meta, nil
}

// Attempts returns one page of evaluated attempts; pages are computed per
// request and not cached.
func (s *ReportService) Attempts(ctx context.Context, reportID, category string, page, limit int, filter garak.Filter) (*garak.AttemptsPage, error) {
	content, err := s.store.GetReportContent(reportID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	start := time.Now()
	result := garak.ParseAttempts(content, category, page, limit, filter)
	s.obs.MarkParse(ctx, "attempts", time.Since(start).Milliseconds())
	return result, nil
}

// UpdateScore rewrites one detector score in the stored report and drops the
// cached metadata for it. Two concurrent updates to the same report are a
// read-modify-write race; the last writer wins.
func (s *ReportService) UpdateScore(ctx context.Context, reportID string, req ScoreUpdateRequest, principal Principal) error {
	if req.Score != 0 && req.Score != 1 {
		return fmt.Errorf("%w: score must be 0 or 1", ErrInvalidRequest)
	}
	if req.ResponseIndex < 0 {
		return fmt.Errorf("%w: response_index must not be negative", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.AttemptUUID) == "" || strings.TrimSpace(req.Detector) == "" {
		return fmt.Errorf("%w: uuid and detector are required", ErrInvalidRequest)
	}

	content, err := s.store.GetReportContent(reportID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrReportNotFound
		}
		return err
	}
	updated, found, err := garak.UpdateScore(content, req.AttemptUUID, req.ResponseIndex, req.Detector, req.Score)
	if err != nil {
		s.obs.MarkScoreUpdate(ctx, "rejected")
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if !found {
		s.obs.MarkScoreUpdate(ctx, "not_found")
		return ErrAttemptNotFound
	}
	if err := s.store.UpdateReportContent(reportID, updated); err != nil {
		return fmt.Errorf("persist updated report: %w", err)
	}
	s.cache.Delete(MetadataCacheKey(reportID))
	_ = s.store.AppendAudit(AuditEvent{
		ReportID:  reportID,
		ActorType: principal.Role,
		ActorSub:  principal.Subject,
		Action:    "report.score_update",
		Result:    "updated",
		Detail: fmt.Sprintf("uuid=%s detector=%s index=%d score=%g",
			req.AttemptUUID, req.Detector, req.ResponseIndex, req.Score),
	})
	s.obs.MarkScoreUpdate(ctx, "updated")
	s.queueWarm(reportID)
	return nil
}

// Delete removes a report. Only the uploader or an admin may delete.
func (s *ReportService) Delete(ctx context.Context, reportID string, principal Principal) error {
	meta, ok := s.store.GetReport(reportID)
	if !ok {
		return ErrReportNotFound
	}
	if principal.Role != "admin" && meta.CreatorSub != principal.Subject {
		return ErrForbidden
	}
	if err := s.store.DeleteReport(reportID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrReportNotFound
		}
		return err
	}
	s.cache.Delete(MetadataCacheKey(reportID))
	_ = s.store.AppendAudit(AuditEvent{
		ReportID:  reportID,
		ActorType: principal.Role,
		ActorSub:  principal.Subject,
		Action:    "report.delete",
		Result:    "deleted",
		Detail:    meta.Filename,
	})
	return nil
}

// Move places a report into a folder, or back to the root when folderID is
// empty.
func (s *ReportService) Move(ctx context.Context, reportID, folderID string, principal Principal) (ReportRecord, error) {
	if folderID != "" {
		if _, ok := s.store.GetFolder(folderID); !ok {
			return ReportRecord{}, ErrFolderNotFound
		}
	}
	meta, err := s.store.UpdateReport(reportID, func(m *ReportRecord) {
		m.FolderID = folderID
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReportRecord{}, ErrReportNotFound
		}
		return ReportRecord{}, err
	}
	_ = s.store.AppendAudit(AuditEvent{
		ReportID:  reportID,
		ActorType: principal.Role,
		ActorSub:  principal.Subject,
		Action:    "report.move",
		Result:    "moved",
		Detail:    folderID,
	})
	return meta, nil
}

// CreateFolder adds a named folder.
func (s *ReportService) CreateFolder(ctx context.Context, name string, principal Principal) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, fmt.Errorf("%w: folder name is required", ErrInvalidRequest)
	}
	folder := Folder{
		ID:         uuid.NewString(),
		Name:       name,
		CreatorSub: principal.Subject,
		CreatedAt:  nowRFC3339(),
	}
	if err := s.store.CreateFolder(folder); err != nil {
		return Folder{}, fmt.Errorf("store folder: %w", err)
	}
	return folder, nil
}

// RenameFolder changes a folder's display name.
func (s *ReportService) RenameFolder(ctx context.Context, folderID, name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, fmt.Errorf("%w: folder name is required", ErrInvalidRequest)
	}
	folder, err := s.store.UpdateFolder(folderID, func(f *Folder) {
		f.Name = name
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Folder{}, ErrFolderNotFound
		}
		return Folder{}, err
	}
	return folder, nil
}

// DeleteFolder removes a folder; its reports move back to the root.
func (s *ReportService) DeleteFolder(ctx context.Context, folderID string) error {
	if err := s.store.DeleteFolder(folderID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrFolderNotFound
		}
		return err
	}
	return nil
}

// CacheStats exposes the metadata cache counters for the admin overview.
func (s *ReportService) CacheStats() cache.Stats {
	return s.cache.GetStats()
}

func (s *ReportService) queueWarm(reportID string) {
	select {
	case s.warm <- reportID:
	default:
		// pre-warming is best effort; a full queue just means the first
		// dashboard read computes the metadata itself
	}
}

func (s *ReportService) warmWorker() {
	for reportID := range s.warm {
		if s.cache.Has(MetadataCacheKey(reportID)) {
			continue
		}
		if _, err := s.Metadata(context.Background(), reportID); err != nil {
			slog.Warn("metadata pre-warm failed", "report_id", reportID, "error", err)
		}
	}
}

type ipRateLimiter struct {
	mu      sync.Mutex
	rpm     int
	records map[string][]time.Time
}

func newIPRateLimiter(rpm int) *ipRateLimiter {
	if rpm <= 0 {
		rpm = 10
	}
	return &ipRateLimiter{
		rpm:     rpm,
		records: map[string][]time.Time{},
	}
}

func (l *ipRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)
	items := l.records[key]
	recent := items[:0]
	for _, t := range items {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.rpm {
		l.records[key] = recent
		return false
	}
	l.records[key] = append(recent, now)
	return true
}
