package db

import (
	"testing"
	"time"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func sampleBatch(id string, created time.Time) (Batch, []BatchItem) {
	b := Batch{
		BatchID:     id,
		Mode:        "url",
		CreatedAt:   created,
		ItemCount:   2,
		ReadyCount:  1,
		FailedCount: 1,
		Status:      StatusPartial,
		ErrorKind:   "batch_partial_failure",
		Options:     `{"lossy":1}`,
	}
	items := []BatchItem{
		{Index: 0, Input: "https://img.example.com/a.png", DisplayName: "a.png",
			Identity: "https://api.example.com/a.png", State: "ready", Code: 2, Meta: `{"Status":{"Code":2}}`},
		{Index: 1, Input: "https://img.example.com/b.png", DisplayName: "b.png",
			State: "failed", Code: -402, Message: "Wrong API Key.", ErrorKind: "auth", ErrorMessage: "Wrong API Key. (code -402)"},
	}
	return b, items
}

func TestRecordBatch_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, items := sampleBatch("b-1", created)
	if err := db.RecordBatch(b, items); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	got, err := db.GetBatch("b-1")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if got.Status != StatusPartial || got.ItemCount != 2 || got.FailedCount != 1 {
		t.Errorf("batch = %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Options != `{"lossy":1}` {
		t.Errorf("Options = %q", got.Options)
	}

	gotItems, err := db.GetBatchItems("b-1")
	if err != nil {
		t.Fatalf("GetBatchItems() error = %v", err)
	}
	if len(gotItems) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(gotItems))
	}
	if gotItems[0].Identity != "https://api.example.com/a.png" || gotItems[0].Code != 2 {
		t.Errorf("item 0 = %+v", gotItems[0])
	}
	if gotItems[1].Identity != "" || gotItems[1].ErrorKind != "auth" || gotItems[1].Code != -402 {
		t.Errorf("item 1 = %+v", gotItems[1])
	}
}

func TestRecordBatch_Replaces(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	b, items := sampleBatch("b-1", time.Now())
	if err := db.RecordBatch(b, items); err != nil {
		t.Fatalf("first RecordBatch() error = %v", err)
	}
	b.Status = StatusReady
	if err := db.RecordBatch(b, items[:1]); err != nil {
		t.Fatalf("second RecordBatch() error = %v", err)
	}

	got, _ := db.GetBatch("b-1")
	if got.Status != StatusReady {
		t.Errorf("Status = %q, want ready", got.Status)
	}
	gotItems, _ := db.GetBatchItems("b-1")
	if len(gotItems) != 1 {
		t.Errorf("len(items) = %d, want 1", len(gotItems))
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.GetBatch("nope"); err == nil {
		t.Error("GetBatch() expected error for unknown batch")
	}
}

func TestListBatches(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		b, items := sampleBatch(id, base.Add(time.Duration(i)*time.Hour))
		if err := db.RecordBatch(b, items); err != nil {
			t.Fatalf("RecordBatch(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{"new", "mid", "old"}},
		{"limited", 2, []string{"new", "mid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches, err := db.ListBatches(tt.limit)
			if err != nil {
				t.Fatalf("ListBatches() error = %v", err)
			}
			if len(batches) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(batches), len(tt.want))
			}
			for i, id := range tt.want {
				if batches[i].BatchID != id {
					t.Errorf("batches[%d] = %s, want %s", i, batches[i].BatchID, id)
				}
			}
		})
	}

	latest, err := db.LatestBatchID()
	if err != nil || latest != "new" {
		t.Errorf("LatestBatchID() = %q, %v", latest, err)
	}
}

func TestLatestBatchID_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if _, err := db.LatestBatchID(); err == nil {
		t.Error("LatestBatchID() expected error on empty database")
	}
}

func TestRecordDownload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	b, items := sampleBatch("b-1", time.Now())
	if err := db.RecordBatch(b, items); err != nil {
		t.Fatalf("RecordBatch() error = %v", err)
	}

	id, err := db.RecordDownload("b-1", 0, "https://cdn.example.com/a.png", "out/b-1/a.png", 1234)
	if err != nil {
		t.Fatalf("RecordDownload() error = %v", err)
	}
	if id == 0 {
		t.Error("RecordDownload() returned 0 ID")
	}

	downloads, err := db.ListDownloads("b-1")
	if err != nil {
		t.Fatalf("ListDownloads() error = %v", err)
	}
	if len(downloads) != 1 {
		t.Fatalf("len(downloads) = %d, want 1", len(downloads))
	}
	if downloads[0].SizeBytes != 1234 || downloads[0].Location != "out/b-1/a.png" {
		t.Errorf("download = %+v", downloads[0])
	}

	// Foreign key: unknown batch items are rejected.
	if _, err := db.RecordDownload("b-1", 9, "https://x", "y", 1); err == nil {
		t.Error("RecordDownload() expected foreign key error for unknown item")
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	path := t.TempDir() + "/nested/history.db"
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q", db.Path())
	}
	if _, err := db.ListBatches(0); err != nil {
		t.Errorf("schema not initialized: %v", err)
	}
}
