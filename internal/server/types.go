package server

import "time"

type Principal struct {
	Subject  string `json:"subject"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ReportRecord is the stored metadata of one uploaded garak report. The raw
// JSONL content lives next to it in the storage backend and is fetched
// separately.
type ReportRecord struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	FolderID     string `json:"folder_id,omitempty"`
	CreatorSub   string `json:"creator_sub,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	RunID        string `json:"run_id,omitempty"`
	StartTime    string `json:"start_time,omitempty"`
	GarakVersion string `json:"garak_version,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

type Folder struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatorSub string `json:"creator_sub,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type AuditEvent struct {
	Timestamp string `json:"timestamp"`
	ReportID  string `json:"report_id,omitempty"`
	ActorType string `json:"actor_type"`
	ActorSub  string `json:"actor_sub,omitempty"`
	Action    string `json:"action"`
	Result    string `json:"result"`
	IPHash    string `json:"ip_hash,omitempty"`
	UAHash    string `json:"ua_hash,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Overview is the admin dashboard summary across all stored reports.
type Overview struct {
	GeneratedAt    string `json:"generated_at"`
	TotalReports   int    `json:"total_reports"`
	TotalFolders   int    `json:"total_folders"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
}

// ScoreUpdateRequest is a manual correction of one detector score.
type ScoreUpdateRequest struct {
	AttemptUUID   string  `json:"uuid"`
	ResponseIndex int     `json:"response_index"`
	Detector      string  `json:"detector"`
	Score         float64 `json:"score"`
}

type folderRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	FolderID string `json:"folder_id"`
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
