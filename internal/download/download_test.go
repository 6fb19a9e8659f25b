package download

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/dtnitsch/pixbatch/internal/common"
	"github.com/dtnitsch/pixbatch/pkg/apierr"
	"github.com/dtnitsch/pixbatch/pkg/db"
	"github.com/dtnitsch/pixbatch/pkg/reducer"
	"github.com/dtnitsch/pixbatch/pkg/storage"
)

// fakeFetcher serves fixed bodies by URL.
type fakeFetcher struct {
	bodies  map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.fetched = append(f.fetched, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("unexpected fetch of %s", url)
	}
	return []byte(body), nil
}

func memStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s := storage.New(memblob.OpenBucket(nil), "mem://")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func recordedBatch(t *testing.T, options string, items ...db.BatchItem) *Recorded {
	t.Helper()
	b := &db.Batch{
		BatchID:   "b-1",
		Mode:      "url",
		CreatedAt: time.Now(),
		ItemCount: len(items),
		Status:    db.StatusReady,
		Options:   options,
	}
	src, err := FromHistory(b, items)
	if err != nil {
		t.Fatalf("FromHistory() error = %v", err)
	}
	return src
}

const catMeta = `{"Status":{"Code":"2","Message":"Success"},"OriginalURL":"https://img.example.com/cat.png",` +
	`"LossyURL":"https://cdn.example.com/l/cat.png","LosslessURL":"https://cdn.example.com/ll/cat.png",` +
	`"WebPLossyURL":"https://cdn.example.com/l/cat.webp","WebPLosslessURL":"NA"}`

func TestRun_SavesReadyItems(t *testing.T) {
	tests := []struct {
		name     string
		options  string
		wantURL  string
		wantName string
	}{
		{"default lossy", `{"lossy":1}`, "https://cdn.example.com/l/cat.png", "cat.png"},
		{"lossless", `{"lossy":0}`, "https://cdn.example.com/ll/cat.png", "cat.png"},
		{"webp", `{"convertto":"+webp"}`, "https://cdn.example.com/l/cat.webp", "cat.webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := recordedBatch(t, tt.options,
				db.BatchItem{Index: 0, Input: "https://img.example.com/cat.png", State: "ready", Meta: catMeta},
				db.BatchItem{Index: 1, Input: "https://img.example.com/dog.png", State: "failed", Code: -202},
			)
			f := &fakeFetcher{bodies: map[string]string{tt.wantURL: "optimized-bytes"}}
			store := memStorage(t)

			saved, err := Run(context.Background(), src, f, store, Options{})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(saved) != 1 {
				t.Fatalf("len(saved) = %d, want 1", len(saved))
			}
			s := saved[0]
			if s.URL != tt.wantURL || s.Name != tt.wantName {
				t.Errorf("saved = %+v", s)
			}
			if s.Path != "mem://b-1/"+tt.wantName {
				t.Errorf("Path = %q", s.Path)
			}
			if s.Size != int64(len("optimized-bytes")) || s.SHA256 != common.ContentHash([]byte("optimized-bytes")) {
				t.Errorf("size/hash = %d/%s", s.Size, s.SHA256)
			}

			data, err := store.ReadFile(context.Background(), "b-1/"+tt.wantName)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if string(data) != "optimized-bytes" {
				t.Errorf("stored = %q", data)
			}
		})
	}
}

func TestRun_NoResults(t *testing.T) {
	_, err := Run(context.Background(), &reducer.Batch{}, &fakeFetcher{}, memStorage(t), Options{})
	if !errors.Is(err, apierr.ErrNoResults) {
		t.Fatalf("Run() error = %v, want ErrNoResults", err)
	}

	_, err = Run(context.Background(), recordedBatch(t, ""), &fakeFetcher{}, memStorage(t), Options{})
	if !errors.Is(err, apierr.ErrNoResults) {
		t.Fatalf("Run() on empty history error = %v, want ErrNoResults", err)
	}
}

func TestRun_NoDownloadableURL(t *testing.T) {
	meta := `{"Status":{"Code":2},"OriginalURL":"https://img.example.com/a.png","LossyURL":"NA","LosslessURL":""}`
	src := recordedBatch(t, "",
		db.BatchItem{Index: 0, Input: "https://img.example.com/cat.png", State: "ready", Meta: catMeta},
		db.BatchItem{Index: 1, Input: "https://img.example.com/a.png", State: "ready", Meta: meta},
	)
	f := &fakeFetcher{bodies: map[string]string{"https://cdn.example.com/l/cat.png": "x"}}

	saved, err := Run(context.Background(), src, f, memStorage(t), Options{})
	if err == nil {
		t.Fatal("Run() expected error for item without URL")
	}
	var e *apierr.Error
	if !errors.As(err, &e) || e.Index != 1 {
		t.Errorf("error = %v, want item error at index 1", err)
	}
	if len(saved) != 1 {
		t.Errorf("len(saved) = %d, want the first item saved", len(saved))
	}
}

func TestRun_FetchError(t *testing.T) {
	src := recordedBatch(t, "",
		db.BatchItem{Index: 0, Input: "https://img.example.com/cat.png", State: "ready", Meta: catMeta},
	)
	_, err := Run(context.Background(), src, &fakeFetcher{bodies: map[string]string{}}, memStorage(t), Options{})
	if err == nil {
		t.Fatal("Run() expected fetch error")
	}
}

func TestFromHistory(t *testing.T) {
	b := &db.Batch{BatchID: "b-2", Mode: "upload", Options: `{"lossy":2,"convertto":"webp"}`}
	items := []db.BatchItem{
		{Index: 0, Input: "photos/a.jpg", DisplayName: "photos/a.jpg", State: "ready", Meta: catMeta},
		{Index: 1, Input: "photos/b.jpg", State: "pending"},
	}
	src, err := FromHistory(b, items)
	if err != nil {
		t.Fatalf("FromHistory() error = %v", err)
	}
	res, err := src.LastResult()
	if err != nil {
		t.Fatalf("LastResult() error = %v", err)
	}

	if res.Mode != reducer.ModeUpload {
		t.Errorf("Mode = %v, want upload", res.Mode)
	}
	if lossy, _, _ := res.Options.Int("lossy"); lossy != 2 {
		t.Errorf("lossy = %d, want 2", lossy)
	}
	if res.Items[0].Input.Path != "photos/a.jpg" || res.Items[0].Outcome.State != reducer.Ready {
		t.Errorf("item 0 = %+v", res.Items[0])
	}
	if res.Items[0].Outcome.Meta == nil || res.Items[0].Outcome.Meta.Code() != 2 {
		t.Errorf("item 0 meta = %+v", res.Items[0].Outcome.Meta)
	}
	if res.Items[1].Outcome.State != reducer.Pending || res.Items[1].Outcome.Meta != nil {
		t.Errorf("item 1 = %+v", res.Items[1])
	}

	if _, err := FromHistory(&db.Batch{BatchID: "bad", Options: "{"}, nil); err == nil {
		t.Error("FromHistory() expected error for malformed options")
	}
}

func TestRun_ReusesExistingArtifacts(t *testing.T) {
	src := recordedBatch(t, "",
		db.BatchItem{Index: 0, Input: "https://img.example.com/cat.png", State: "ready", Meta: catMeta},
	)
	store := memStorage(t)
	ctx := context.Background()
	if err := store.SaveFile(ctx, "b-1/cat.png", []byte("earlier"), "image/png"); err != nil {
		t.Fatal(err)
	}

	f := &fakeFetcher{bodies: map[string]string{"https://cdn.example.com/l/cat.png": "fresh"}}
	saved, err := Run(ctx, src, f, store, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(f.fetched) != 0 || !saved[0].Cached || saved[0].Size != int64(len("earlier")) {
		t.Errorf("fetched = %v, saved = %+v", f.fetched, saved)
	}

	saved, err = Run(ctx, src, f, store, Options{Force: true})
	if err != nil {
		t.Fatalf("Run(force) error = %v", err)
	}
	if len(f.fetched) != 1 || saved[0].Cached {
		t.Errorf("fetched = %v, saved = %+v", f.fetched, saved)
	}
	data, _ := store.ReadFile(ctx, "b-1/cat.png")
	if string(data) != "fresh" {
		t.Errorf("stored = %q, want fresh", data)
	}
}

func TestRun_SameBaseNameGetsDistinctFiles(t *testing.T) {
	metaFor := func(host string) string {
		return `{"Status":{"Code":"2","Message":"Success"},"OriginalURL":"https://` + host + `/photo.jpg",` +
			`"LossyURL":"https://cdn.example.com/` + host + `/photo.jpg","LosslessURL":"NA"}`
	}
	src := recordedBatch(t, "",
		db.BatchItem{Index: 0, Input: "https://a.example.com/x/photo.jpg", State: "ready", Meta: metaFor("a.example.com")},
		db.BatchItem{Index: 1, Input: "https://b.example.com/y/photo.jpg", State: "ready", Meta: metaFor("b.example.com")},
	)
	f := &fakeFetcher{bodies: map[string]string{
		"https://cdn.example.com/a.example.com/photo.jpg": "aaa",
		"https://cdn.example.com/b.example.com/photo.jpg": "bbbbb",
	}}
	store := memStorage(t)
	ctx := context.Background()

	saved, err := Run(ctx, src, f, store, Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(saved) != 2 || len(f.fetched) != 2 {
		t.Fatalf("saved = %+v, fetched = %v", saved, f.fetched)
	}
	if saved[0].Name != "photo.jpg" || saved[1].Name != "photo_2.jpg" {
		t.Errorf("names = %q, %q", saved[0].Name, saved[1].Name)
	}
	if saved[1].Cached || saved[1].Size != int64(len("bbbbb")) {
		t.Errorf("saved[1] = %+v", saved[1])
	}
	data, _ := store.ReadFile(ctx, "b-1/photo_2.jpg")
	if string(data) != "bbbbb" {
		t.Errorf("stored = %q, want the second item's bytes", data)
	}

	saved, err = Run(ctx, src, f, store, Options{})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !saved[0].Cached || !saved[1].Cached || saved[1].SHA256 != common.ContentHash([]byte("bbbbb")) {
		t.Errorf("rerun = %+v, want each item reused from its own file", saved)
	}
}
