package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound marks lookups against missing reports or folders.
var ErrNotFound = errors.New("not found")

// Store persists report records, their raw JSONL content, folders, and the
// audit trail. The service layer treats it as the single storage
// collaborator; parsing always happens on content fetched from here.
type Store interface {
	CreateReport(meta ReportRecord, content string) error
	GetReport(id string) (ReportRecord, bool)
	GetReportContent(id string) (string, error)
	UpdateReportContent(id string, content string) error
	UpdateReport(id string, mutate func(*ReportRecord)) (ReportRecord, error)
	ListReports(folderID string, limit int) []ReportRecord
	DeleteReport(id string) error

	CreateFolder(folder Folder) error
	GetFolder(id string) (Folder, bool)
	ListFolders(limit int) []Folder
	UpdateFolder(id string, mutate func(*Folder)) (Folder, error)
	DeleteFolder(id string) error

	AppendAudit(event AuditEvent) error
	ListAudit(limit int) []AuditEvent
	GetOverview() Overview
}

// FileStore keeps records in memory with a JSON index snapshot on disk and
// one content file per report. An empty dir keeps everything in memory,
// which the tests rely on.
type FileStore struct {
	mu       sync.RWMutex
	dir      string
	reports  map[string]ReportRecord
	folders  map[string]Folder
	audit    []AuditEvent
	contents map[string]string // memory mode only
}

type fileStoreSnapshot struct {
	Reports []ReportRecord `json:"reports"`
	Folders []Folder       `json:"folders"`
	Audit   []AuditEvent   `json:"audit"`
}

func NewFileStore(dir string) (*FileStore, error) {
	store := &FileStore{
		dir:      strings.TrimSpace(dir),
		reports:  map[string]ReportRecord{},
		folders:  map[string]Folder{},
		audit:    []AuditEvent{},
		contents: map[string]string{},
	}
	if store.dir == "" {
		return store, nil
	}
	if err := os.MkdirAll(store.contentDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create report content directory: %w", err)
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *FileStore) contentDir() string {
	return filepath.Join(s.dir, "reports")
}

func (s *FileStore) contentPath(id string) string {
	return filepath.Join(s.contentDir(), id+".jsonl")
}

func (s *FileStore) CreateReport(meta ReportRecord, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reports[meta.ID]; exists {
		return fmt.Errorf("report %s already exists", meta.ID)
	}
	if err := s.writeContentLocked(meta.ID, content); err != nil {
		return err
	}
	s.reports[meta.ID] = meta
	return s.persistLocked()
}

func (s *FileStore) GetReport(id string) (ReportRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.reports[id]
	return meta, ok
}

func (s *FileStore) GetReportContent(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.reports[id]; !ok {
		return "", fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if s.dir == "" {
		return s.contents[id], nil
	}
	data, err := os.ReadFile(s.contentPath(id))
	if err != nil {
		return "", fmt.Errorf("read report content: %w", err)
	}
	return string(data), nil
}

func (s *FileStore) UpdateReportContent(id string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err := s.writeContentLocked(id, content); err != nil {
		return err
	}
	meta.SizeBytes = int64(len(content))
	meta.UpdatedAt = nowRFC3339()
	s.reports[id] = meta
	return s.persistLocked()
}

func (s *FileStore) UpdateReport(id string, mutate func(*ReportRecord)) (ReportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.reports[id]
	if !ok {
		return ReportRecord{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if mutate != nil {
		mutate(&meta)
	}
	meta.UpdatedAt = nowRFC3339()
	s.reports[id] = meta
	if err := s.persistLocked(); err != nil {
		return ReportRecord{}, err
	}
	return meta, nil
}

func (s *FileStore) ListReports(folderID string, limit int) []ReportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ReportRecord, 0, len(s.reports))
	for _, meta := range s.reports {
		if folderID != "" && meta.FolderID != folderID {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *FileStore) DeleteReport(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	delete(s.reports, id)
	delete(s.contents, id)
	if s.dir != "" {
		if err := os.Remove(s.contentPath(id)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove report content: %w", err)
		}
	}
	return s.persistLocked()
}

func (s *FileStore) CreateFolder(folder Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.folders[folder.ID]; exists {
		return fmt.Errorf("folder %s already exists", folder.ID)
	}
	s.folders[folder.ID] = folder
	return s.persistLocked()
}

func (s *FileStore) GetFolder(id string) (Folder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.folders[id]
	return folder, ok
}

func (s *FileStore) ListFolders(limit int) []Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Folder, 0, len(s.folders))
	for _, folder := range s.folders {
		out = append(out, folder)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *FileStore) UpdateFolder(id string, mutate func(*Folder)) (Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	folder, ok := s.folders[id]
	if !ok {
		return Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if mutate != nil {
		mutate(&folder)
	}
	s.folders[id] = folder
	if err := s.persistLocked(); err != nil {
		return Folder{}, err
	}
	return folder, nil
}

// DeleteFolder removes the folder and moves its reports back to the root.
func (s *FileStore) DeleteFolder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[id]; !ok {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	delete(s.folders, id)
	for reportID, meta := range s.reports {
		if meta.FolderID == id {
			meta.FolderID = ""
			s.reports[reportID] = meta
		}
	}
	return s.persistLocked()
}

func (s *FileStore) AppendAudit(event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	s.audit = append(s.audit, event)
	if len(s.audit) > 5000 {
		s.audit = s.audit[len(s.audit)-5000:]
	}
	return s.persistLocked()
}

func (s *FileStore) ListAudit(limit int) []AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.audit) == 0 {
		return []AuditEvent{}
	}
	out := make([]AuditEvent, len(s.audit))
	copy(out, s.audit)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *FileStore) GetOverview() Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	overview := Overview{
		GeneratedAt:  nowRFC3339(),
		TotalReports: len(s.reports),
		TotalFolders: len(s.folders),
	}
	for _, meta := range s.reports {
		overview.TotalSizeBytes += meta.SizeBytes
	}
	return overview
}

func (s *FileStore) writeContentLocked(id, content string) error {
	if s.dir == "" {
		s.contents[id] = content
		return nil
	}
	path := s.contentPath(id)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report content: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace report content: %w", err)
	}
	return nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, "index.json")
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store index: %w", err)
	}
	var snapshot fileStoreSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode store index: %w", err)
	}
	for _, meta := range snapshot.Reports {
		s.reports[meta.ID] = meta
	}
	for _, folder := range snapshot.Folders {
		s.folders[folder.ID] = folder
	}
	s.audit = snapshot.Audit
	if s.audit == nil {
		s.audit = []AuditEvent{}
	}
	return nil
}

func (s *FileStore) persistLocked() error {
	if s.dir == "" {
		return nil
	}
	snapshot := fileStoreSnapshot{
		Reports: make([]ReportRecord, 0, len(s.reports)),
		Folders: make([]Folder, 0, len(s.folders)),
		Audit:   s.audit,
	}
	for _, meta := range s.reports {
		snapshot.Reports = append(snapshot.Reports, meta)
	}
	sort.Slice(snapshot.Reports, func(i, j int) bool {
		return snapshot.Reports[i].CreatedAt < snapshot.Reports[j].CreatedAt
	})
	for _, folder := range s.folders {
		snapshot.Folders = append(snapshot.Folders, folder)
	}
	sort.Slice(snapshot.Folders, func(i, j int) bool {
		return snapshot.Folders[i].Name < snapshot.Folders[j].Name
	})
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store index: %w", err)
	}
	tmpPath := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write store index: %w", err)
	}
	if err := os.Rename(tmpPath, s.indexPath()); err != nil {
		return fmt.Errorf("replace store index: %w", err)
	}
	return nil
}

// Ensure FileStore implements Store at compile time.
var _ Store = (*FileStore)(nil)
