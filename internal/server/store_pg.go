package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps report records, content, folders, and audit events in
// PostgreSQL. Report content lives in the reports table itself; garak
// reports are text and the 500MB upload cap bounds row size.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const reportColumns = `id,filename,folder_id,creator_sub,size_bytes,run_id,start_time,garak_version,created_at,updated_at`

func (s *PgStore) CreateReport(meta ReportRecord, content string) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO reports (id,filename,folder_id,creator_sub,size_bytes,run_id,start_time,garak_version,content,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		meta.ID, meta.Filename, nullStr(meta.FolderID), nullStr(meta.CreatorSub),
		meta.SizeBytes, nullStr(meta.RunID), nullStr(meta.StartTime),
		nullStr(meta.GarakVersion), content, meta.CreatedAt)
	return err
}

func (s *PgStore) GetReport(id string) (ReportRecord, bool) {
	row := s.pool.QueryRow(context.Background(),
		`SELECT `+reportColumns+` FROM reports WHERE id=$1`, id)
	meta, err := scanReportRecord(row)
	if err != nil {
		return ReportRecord{}, false
	}
	return meta, true
}

func (s *PgStore) GetReportContent(id string) (string, error) {
	var content string
	err := s.pool.QueryRow(context.Background(),
		`SELECT content FROM reports WHERE id=$1`, id).Scan(&content)
	if err != nil {
		return "", fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return content, nil
}

func (s *PgStore) UpdateReportContent(id string, content string) error {
	tag, err := s.pool.Exec(context.Background(),
		`UPDATE reports SET content=$1, size_bytes=$2, updated_at=now() WHERE id=$3`,
		content, int64(len(content)), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PgStore) UpdateReport(id string, mutate func(*ReportRecord)) (ReportRecord, error) {
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return ReportRecord{}, err
	}
	defer tx.Rollback(context.Background())

	row := tx.QueryRow(context.Background(),
		`SELECT `+reportColumns+` FROM reports WHERE id=$1 FOR UPDATE`, id)
	meta, err := scanReportRecord(row)
	if err != nil {
		return ReportRecord{}, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if mutate != nil {
		mutate(&meta)
	}
	_, err = tx.Exec(context.Background(),
		`UPDATE reports SET filename=$1, folder_id=$2, creator_sub=$3, run_id=$4,
		 start_time=$5, garak_version=$6, updated_at=now() WHERE id=$7`,
		meta.Filename, nullStr(meta.FolderID), nullStr(meta.CreatorSub),
		nullStr(meta.RunID), nullStr(meta.StartTime), nullStr(meta.GarakVersion), id)
	if err != nil {
		return ReportRecord{}, err
	}
	return meta, tx.Commit(context.Background())
}

func (s *PgStore) ListReports(folderID string, limit int) []ReportRecord {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC LIMIT $1`
	args := []any{limit}
	if folderID != "" {
		query = `SELECT ` + reportColumns + ` FROM reports WHERE folder_id=$1 ORDER BY created_at DESC LIMIT $2`
		args = []any{folderID, limit}
	}
	rows, err := s.pool.Query(context.Background(), query, args...)
	if err != nil {
		return []ReportRecord{}
	}
	defer rows.Close()
	out := []ReportRecord{}
	for rows.Next() {
		meta, err := scanReportRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out
}

func (s *PgStore) DeleteReport(id string) error {
	tag, err := s.pool.Exec(context.Background(), `DELETE FROM reports WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PgStore) CreateFolder(folder Folder) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO folders (id,name,creator_sub,created_at) VALUES ($1,$2,$3,$4)`,
		folder.ID, folder.Name, nullStr(folder.CreatorSub), folder.CreatedAt)
	return err
}

func (s *PgStore) GetFolder(id string) (Folder, bool) {
	var folder Folder
	var creatorSub *string
	var createdAt time.Time
	err := s.pool.QueryRow(context.Background(),
		`SELECT id,name,creator_sub,created_at FROM folders WHERE id=$1`, id).
		Scan(&folder.ID, &folder.Name, &creatorSub, &createdAt)
	if err != nil {
		return Folder{}, false
	}
	folder.CreatorSub = deref(creatorSub)
	folder.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	return folder, true
}

func (s *PgStore) ListFolders(limit int) []Folder {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT id,name,creator_sub,created_at FROM folders ORDER BY name LIMIT $1`, limit)
	if err != nil {
		return []Folder{}
	}
	defer rows.Close()
	out := []Folder{}
	for rows.Next() {
		var folder Folder
		var creatorSub *string
		var createdAt time.Time
		if err := rows.Scan(&folder.ID, &folder.Name, &creatorSub, &createdAt); err != nil {
			continue
		}
		folder.CreatorSub = deref(creatorSub)
		folder.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, folder)
	}
	return out
}

func (s *PgStore) UpdateFolder(id string, mutate func(*Folder)) (Folder, error) {
	folder, ok := s.GetFolder(id)
	if !ok {
		return Folder{}, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if mutate != nil {
		mutate(&folder)
	}
	_, err := s.pool.Exec(context.Background(),
		`UPDATE folders SET name=$1 WHERE id=$2`, folder.Name, id)
	if err != nil {
		return Folder{}, err
	}
	return folder, nil
}

func (s *PgStore) DeleteFolder(id string) error {
	tx, err := s.pool.Begin(context.Background())
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())
	if _, err := tx.Exec(context.Background(),
		`UPDATE reports SET folder_id=NULL WHERE folder_id=$1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(context.Background(), `DELETE FROM folders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	return tx.Commit(context.Background())
}

func (s *PgStore) AppendAudit(event AuditEvent) error {
	if strings.TrimSpace(event.Timestamp) == "" {
		event.Timestamp = nowRFC3339()
	}
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (timestamp,report_id,actor_type,actor_sub,action,result,ip_hash,ua_hash,detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		event.Timestamp, nullStr(event.ReportID), event.ActorType, nullStr(event.ActorSub),
		event.Action, event.Result, nullStr(event.IPHash), nullStr(event.UAHash), nullStr(event.Detail))
	return err
}

func (s *PgStore) ListAudit(limit int) []AuditEvent {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT timestamp,report_id,actor_type,actor_sub,action,result,ip_hash,ua_hash,detail
		 FROM audit_events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return []AuditEvent{}
	}
	defer rows.Close()
	out := []AuditEvent{}
	for rows.Next() {
		var event AuditEvent
		var ts time.Time
		var reportID, actorSub, ipHash, uaHash, detail *string
		if err := rows.Scan(&ts, &reportID, &event.ActorType, &actorSub, &event.Action,
			&event.Result, &ipHash, &uaHash, &detail); err != nil {
			continue
		}
		event.Timestamp = ts.UTC().Format(time.RFC3339)
		event.ReportID = deref(reportID)
		event.ActorSub = deref(actorSub)
		event.IPHash = deref(ipHash)
		event.UAHash = deref(uaHash)
		event.Detail = deref(detail)
		out = append(out, event)
	}
	return out
}

func (s *PgStore) GetOverview() Overview {
	overview := Overview{GeneratedAt: nowRFC3339()}
	_ = s.pool.QueryRow(context.Background(),
		`SELECT
			(SELECT COUNT(*) FROM reports),
			(SELECT COUNT(*) FROM folders),
			(SELECT COALESCE(SUM(size_bytes),0) FROM reports)`).
		Scan(&overview.TotalReports, &overview.TotalFolders, &overview.TotalSizeBytes)
	return overview
}

// --- helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanReportRecord(row scannable) (ReportRecord, error) {
	var meta ReportRecord
	var folderID, creatorSub, runID, startTime, garakVersion *string
	var createdAt time.Time
	var updatedAt *time.Time
	err := row.Scan(&meta.ID, &meta.Filename, &folderID, &creatorSub, &meta.SizeBytes,
		&runID, &startTime, &garakVersion, &createdAt, &updatedAt)
	if err != nil {
		return ReportRecord{}, err
	}
	meta.FolderID = deref(folderID)
	meta.CreatorSub = deref(creatorSub)
	meta.RunID = deref(runID)
	meta.StartTime = deref(startTime)
	meta.GarakVersion = deref(garakVersion)
	meta.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	if updatedAt != nil {
		meta.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	}
	return meta, nil
}

func nullStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
