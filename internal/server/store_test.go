package server

import (
	"errors"
	"testing"
)

func TestFileStoreReportLifecycle(t *testing.T) {
	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	meta := ReportRecord{
		ID:        "rep_test_1",
		Filename:  "scan.report.jsonl",
		SizeBytes: 42,
		CreatedAt: nowRFC3339(),
	}
	if err := store.CreateReport(meta, "line1\nline2\n"); err != nil {
		t.Fatalf("CreateReport error: %v", err)
	}
	content, err := store.GetReportContent(meta.ID)
	if err != nil {
		t.Fatalf("GetReportContent error: %v", err)
	}
	if content != "line1\nline2\n" {
		t.Fatalf("unexpected content: %q", content)
	}
	if err := store.UpdateReportContent(meta.ID, "line1\nchanged\n"); err != nil {
		t.Fatalf("UpdateReportContent error: %v", err)
	}
	content, _ = store.GetReportContent(meta.ID)
	if content != "line1\nchanged\n" {
		t.Fatalf("content not updated: %q", content)
	}
	updated, err := store.UpdateReport(meta.ID, func(item *ReportRecord) {
		item.FolderID = "folder_x"
	})
	if err != nil {
		t.Fatalf("UpdateReport error: %v", err)
	}
	if updated.FolderID != "folder_x" {
		t.Fatalf("expected folder_x, got %s", updated.FolderID)
	}
	if err := store.DeleteReport(meta.ID); err != nil {
		t.Fatalf("DeleteReport error: %v", err)
	}
	if _, err := store.GetReportContent(meta.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFileStoreFolderDeleteMovesReports(t *testing.T) {
	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	folder := Folder{ID: "folder_1", Name: "nightly", CreatedAt: nowRFC3339()}
	if err := store.CreateFolder(folder); err != nil {
		t.Fatalf("CreateFolder error: %v", err)
	}
	meta := ReportRecord{ID: "rep_1", Filename: "a.jsonl", FolderID: folder.ID, CreatedAt: nowRFC3339()}
	if err := store.CreateReport(meta, "x\n"); err != nil {
		t.Fatalf("CreateReport error: %v", err)
	}
	if err := store.DeleteFolder(folder.ID); err != nil {
		t.Fatalf("DeleteFolder error: %v", err)
	}
	got, ok := store.GetReport(meta.ID)
	if !ok {
		t.Fatalf("report missing after folder delete")
	}
	if got.FolderID != "" {
		t.Fatalf("expected report moved to root, got folder %q", got.FolderID)
	}
	if _, ok := store.GetFolder(folder.ID); ok {
		t.Fatalf("folder still present after delete")
	}
}

func TestFileStoreListReportsFiltersByFolder(t *testing.T) {
	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if err := store.CreateFolder(Folder{ID: "f1", Name: "one", CreatedAt: nowRFC3339()}); err != nil {
		t.Fatalf("CreateFolder error: %v", err)
	}
	_ = store.CreateReport(ReportRecord{ID: "r1", Filename: "a", FolderID: "f1", CreatedAt: nowRFC3339()}, "a\n")
	_ = store.CreateReport(ReportRecord{ID: "r2", Filename: "b", CreatedAt: nowRFC3339()}, "b\n")

	inFolder := store.ListReports("f1", 10)
	if len(inFolder) != 1 || inFolder[0].ID != "r1" {
		t.Fatalf("unexpected folder listing: %+v", inFolder)
	}
	all := store.ListReports("", 10)
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	meta := ReportRecord{ID: "rep_disk", Filename: "disk.jsonl", SizeBytes: 3, CreatedAt: nowRFC3339()}
	if err := store.CreateReport(meta, "abc"); err != nil {
		t.Fatalf("CreateReport error: %v", err)
	}
	if err := store.CreateFolder(Folder{ID: "f_disk", Name: "archive", CreatedAt: nowRFC3339()}); err != nil {
		t.Fatalf("CreateFolder error: %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	got, ok := reopened.GetReport("rep_disk")
	if !ok || got.Filename != "disk.jsonl" {
		t.Fatalf("report did not survive reopen: %+v ok=%v", got, ok)
	}
	content, err := reopened.GetReportContent("rep_disk")
	if err != nil || content != "abc" {
		t.Fatalf("content did not survive reopen: %q err=%v", content, err)
	}
	if _, ok := reopened.GetFolder("f_disk"); !ok {
		t.Fatalf("folder did not survive reopen")
	}
}

func TestFileStoreAuditAppendAndList(t *testing.T) {
	store, err := NewFileStore("")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.AppendAudit(AuditEvent{Action: "report.upload", Result: "stored"}); err != nil {
			t.Fatalf("AppendAudit error: %v", err)
		}
	}
	events := store.ListAudit(2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Timestamp == "" {
		t.Fatalf("expected timestamp to be filled in")
	}
}
