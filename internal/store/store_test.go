package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ytget/yt-offline/internal/model"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	db, err := OpenSQLite("sqlite:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	stores := map[string]Store{
		"sqlite": db,
		"memory": NewMemory(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func sampleRecord(url string) model.PlaylistRecord {
	return model.PlaylistRecord{
		URL:   url,
		ID:    "PL1",
		Title: "Lectures",
		Order: map[string]int{"b": 0, "a": 1},
		Videos: []model.VideoRecord{
			{ID: "a", Title: "Alpha", Duration: 120, WatchedPosition: 30, Details: "first"},
			{ID: "b", Title: "Beta", Duration: 61},
		},
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Save(ctx, sampleRecord("https://x/pl1")); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Save(ctx, model.PlaylistRecord{URL: "https://x/pl2"}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			records, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("expected 2 records, got %d", len(records))
			}

			got := records[0]
			if got.URL != "https://x/pl1" || got.ID != "PL1" || got.Title != "Lectures" {
				t.Errorf("record identity = %q/%q/%q", got.URL, got.ID, got.Title)
			}
			if got.Order["b"] != 0 || got.Order["a"] != 1 || len(got.Order) != 2 {
				t.Errorf("Order = %v", got.Order)
			}
			if len(got.Videos) != 2 || got.Videos[0] != sampleRecord("").Videos[0] || got.Videos[1].ID != "b" {
				t.Errorf("Videos = %+v", got.Videos)
			}

			if records[1].URL != "https://x/pl2" || len(records[1].Videos) != 0 {
				t.Errorf("second record = %+v", records[1])
			}
		})
	}
}

func TestStore_SaveReplacesVideos(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := sampleRecord("https://x/pl1")
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if err := s.Save(ctx, model.PlaylistRecord{URL: "https://x/pl2"}); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			rec.Title = "Renamed"
			rec.Videos = rec.Videos[1:]
			if err := s.Save(ctx, rec); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			records, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if records[0].URL != "https://x/pl1" {
				t.Errorf("expected first-saved order to be kept, got %s first", records[0].URL)
			}
			if records[0].Title != "Renamed" || len(records[0].Videos) != 1 || records[0].Videos[0].ID != "b" {
				t.Errorf("updated record = %+v", records[0])
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Save(ctx, sampleRecord("https://x/pl1")); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			if err := s.Delete(ctx, "https://x/pl1"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := s.Delete(ctx, "https://x/missing"); err != nil {
				t.Errorf("Delete() of a missing playlist error = %v", err)
			}

			records, err := s.LoadAll(ctx)
			if err != nil {
				t.Fatalf("LoadAll() error = %v", err)
			}
			if len(records) != 0 {
				t.Errorf("expected no records, got %d", len(records))
			}
		})
	}
}

func TestSQLite_DeleteCascadesOnNewConnections(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cascade.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer db.Close()

	// Every statement gets a fresh connection from the pool
	db.db.SetMaxIdleConns(0)

	if err := db.Save(ctx, sampleRecord("https://x/pl1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := db.Delete(ctx, "https://x/pl1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var enabled, orphans int
	if err := db.db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys error = %v", err)
	}
	if enabled != 1 {
		t.Errorf("foreign_keys = %d on a new connection, expected 1", enabled)
	}
	if err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM videos").Scan(&orphans); err != nil {
		t.Fatalf("count videos error = %v", err)
	}
	if orphans != 0 {
		t.Errorf("expected the videos of a deleted playlist to be removed, %d left", orphans)
	}
}

func TestSQLite_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := db.Save(ctx, sampleRecord("https://x/pl1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() second open error = %v", err)
	}
	defer db.Close()

	records, err := db.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(records) != 1 || len(records[0].Videos) != 2 {
		t.Errorf("records after reopen = %+v", records)
	}
}

func TestMemory_IsolatesRecords(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := sampleRecord("https://x/pl1")
	if err := m.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec.Order["z"] = 9
	rec.Videos[0].Title = "changed"

	records, _ := m.LoadAll(ctx)
	if _, ok := records[0].Order["z"]; ok {
		t.Error("expected stored order to be a copy")
	}
	if records[0].Videos[0].Title != "Alpha" {
		t.Error("expected stored videos to be a copy")
	}

	m.Close()
	if _, err := m.LoadAll(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("LoadAll() after Close error = %v, expected ErrClosed", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "should use default file",
			input:    "",
			expected: "file:yt-offline.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "should strip sqlite prefix",
			input:    "sqlite:./data.db",
			expected: "file:data.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "should strip sqlite3 prefix",
			input:    "sqlite3:/var/lib/app.db",
			expected: "file:/var/lib/app.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "should append pragmas to file DSN options",
			input:    "file:test.db?cache=shared",
			expected: "file:test.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "should keep configured pragmas",
			input:    "file:test.db?_pragma=foreign_keys(0)",
			expected: "file:test.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
		},
		{
			name:     "should prefix bare names",
			input:    "data.db",
			expected: "file:data.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeDSN(tt.input)
			if result != tt.expected {
				t.Errorf("normalizeDSN(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}
