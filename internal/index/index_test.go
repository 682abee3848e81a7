package index

import (
	"path/filepath"
	"testing"
	"time"

	"drivesync/internal/engine"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestRecordAndSearch(t *testing.T) {
	idx := openTestIndex(t)

	entries := []engine.Entry{
		{Path: "vacation.jpg", Name: "vacation.jpg", Size: 1024, ModTime: time.Now()},
		{Path: "Report.pdf", Name: "Report.pdf", Size: 2048, ModTime: time.Now()},
		{Path: "archive", Name: "archive", IsDir: true},
	}
	if err := idx.UpsertBatch("job-1", "Photos", entries); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	// Case-insensitive substring match.
	records, err := idx.Search("report", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Path != "Photos/Report.pdf" {
		t.Errorf("Path = %q, want Photos/Report.pdf", r.Path)
	}
	if r.Size != 2048 || r.JobID != "job-1" || r.RemotePath != "Photos" {
		t.Errorf("unexpected record: %+v", r)
	}
	if r.IndexedAt.IsZero() {
		t.Error("IndexedAt not set")
	}
}

func TestRecordEntryUpsert(t *testing.T) {
	idx := openTestIndex(t)

	e := engine.Entry{Path: "notes.txt", Name: "notes.txt", Size: 10, ModTime: time.Now()}
	if err := idx.RecordEntry("job-1", "Docs", e); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	e.Size = 99
	if err := idx.RecordEntry("job-1", "Docs", e); err != nil {
		t.Fatalf("RecordEntry update: %v", err)
	}

	records, err := idx.Search("notes", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 after upsert", len(records))
	}
	if records[0].Size != 99 {
		t.Errorf("Size = %d, want 99", records[0].Size)
	}
}

func TestDeleteJobFiles(t *testing.T) {
	idx := openTestIndex(t)

	for jobID, dir := range map[string]string{"job-1": "Photos", "job-2": "Docs"} {
		e := engine.Entry{Path: "f.txt", Name: "f.txt", Size: 1, ModTime: time.Now()}
		if err := idx.RecordEntry(jobID, dir, e); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
	}

	if err := idx.DeleteJobFiles("job-1"); err != nil {
		t.Fatalf("DeleteJobFiles: %v", err)
	}

	n, err := idx.CountForJob("job-1")
	if err != nil {
		t.Fatalf("CountForJob: %v", err)
	}
	if n != 0 {
		t.Errorf("job-1 count = %d, want 0", n)
	}
	n, err = idx.CountForJob("job-2")
	if err != nil {
		t.Fatalf("CountForJob: %v", err)
	}
	if n != 1 {
		t.Errorf("job-2 count = %d, want 1", n)
	}
}

func TestSearchLimit(t *testing.T) {
	idx := openTestIndex(t)

	for i := 0; i < 20; i++ {
		e := engine.Entry{
			Path: filepath.Join("sub", "file"+string(rune('a'+i))+".txt"),
			Name: "file" + string(rune('a'+i)) + ".txt",
		}
		if err := idx.RecordEntry("job-1", "Docs", e); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
	}

	records, err := idx.Search("file", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("got %d records, want 5", len(records))
	}
}
