package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
	"github.com/ytget/yt-offline/internal/store"
)

const (
	url1 = "https://www.youtube.com/playlist?list=PL1"
	url2 = "https://www.youtube.com/playlist?list=PL2"
)

func newLibrary(t *testing.T) (*Library, *store.Memory, *platform.Layout) {
	t.Helper()
	st := store.NewMemory()
	layout := platform.NewLayout(t.TempDir())
	return New(st, layout, logger.Discard()), st, layout
}

func TestLibrary_Add(t *testing.T) {
	tests := []struct {
		name        string
		urls        []string
		expectError error
	}{
		{
			name: "should add playlists in order",
			urls: []string{url1, url2},
		},
		{
			name:        "should reject duplicates",
			urls:        []string{url1, url1},
			expectError: ErrExists,
		},
		{
			name:        "should reject non playlist URL",
			urls:        []string{"https://www.youtube.com/watch?v=abc"},
			expectError: platform.ErrNotPlaylistURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, st, _ := newLibrary(t)
			ctx := context.Background()

			var err error
			for _, u := range tt.urls {
				_, err = lib.Add(ctx, u)
				if err != nil {
					break
				}
			}

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("Add() error = %v, expected %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("Add() error = %v", err)
			}

			all := lib.All()
			if len(all) != len(tt.urls) || all[0].URL() != url1 || all[1].URL() != url2 {
				t.Errorf("All() returned %d playlists", len(all))
			}

			records, _ := st.LoadAll(ctx)
			if len(records) != len(tt.urls) {
				t.Errorf("expected %d stored records, got %d", len(tt.urls), len(records))
			}
		})
	}
}

func TestLibrary_LoadAndFind(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.Save(ctx, model.PlaylistRecord{
		URL:    url1,
		ID:     "PL1",
		Order:  map[string]int{"a": 0},
		Videos: []model.VideoRecord{{ID: "a", Title: "Alpha"}},
	})

	lib := New(st, platform.NewLayout(t.TempDir()), logger.Discard())
	if err := lib.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := lib.Get(url1); !ok {
		t.Error("expected Get() to find the loaded playlist")
	}
	if p, ok := lib.FindByID("PL1"); !ok || p.URL() != url1 {
		t.Error("expected FindByID() to find the loaded playlist")
	}
	if _, ok := lib.FindByID("missing"); ok {
		t.Error("expected FindByID() to miss unknown IDs")
	}

	p, v := lib.FindVideo("a")
	if p == nil || v == nil || v.Title() != "Alpha" {
		t.Errorf("FindVideo() = %v, %v", p, v)
	}
}

func TestLibrary_SetWatchedPosition(t *testing.T) {
	lib, st, _ := newLibrary(t)
	ctx := context.Background()

	p, err := lib.Add(ctx, url1)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	p.AddVideo(model.NewVideo("a", "Alpha"))

	if err := lib.SetWatchedPosition(ctx, "a", 42); err != nil {
		t.Fatalf("SetWatchedPosition() error = %v", err)
	}
	records, _ := st.LoadAll(ctx)
	if records[0].Videos[0].WatchedPosition != 42 {
		t.Errorf("stored position = %d, expected 42", records[0].Videos[0].WatchedPosition)
	}

	if err := lib.SetWatchedPosition(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetWatchedPosition() of unknown video error = %v, expected ErrNotFound", err)
	}
}

func TestLibrary_Remove(t *testing.T) {
	lib, st, layout := newLibrary(t)
	ctx := context.Background()

	p, _ := lib.Add(ctx, url1)
	p.AddVideo(model.NewVideo("a", "Alpha"))

	path := layout.DownloadLocation("a")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := lib.Remove(ctx, url1, true); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if layout.HasBeenDownloaded("a") {
		t.Error("expected video file to be deleted")
	}
	if _, ok := lib.Get(url1); ok {
		t.Error("expected playlist to be forgotten")
	}
	records, _ := st.LoadAll(ctx)
	if len(records) != 0 {
		t.Errorf("expected no stored records, got %d", len(records))
	}

	if err := lib.Remove(ctx, url1, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() of unknown playlist error = %v, expected ErrNotFound", err)
	}
}

func TestLibrary_DeleteVideoFile_Missing(t *testing.T) {
	lib, _, _ := newLibrary(t)
	// No files on disk: must not panic or fail
	lib.DeleteVideoFile(model.NewVideo("nothing", "Nothing"))
}

func TestLibrary_NotDownloaded(t *testing.T) {
	lib, _, layout := newLibrary(t)

	p := model.NewPlaylist(url1)
	for _, id := range []string{"done", "partial", "fresh"} {
		p.AddVideo(model.NewVideo(id, id))
	}
	p.SetRemote("PL1", "Playlist", model.OrderFromIDs([]string{"fresh", "partial", "done"}))

	if err := layout.EnsureVideosDir(); err != nil {
		t.Fatalf("EnsureVideosDir() error = %v", err)
	}
	if err := os.WriteFile(layout.DownloadLocation("done"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.PartialLocation("partial"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	pending := lib.NotDownloaded(p)
	if len(pending) != 1 || pending[0].ID() != "fresh" {
		t.Errorf("NotDownloaded() = %v, want [fresh]", pending)
	}
	if lib.Layout() != layout {
		t.Error("Layout() should return the library layout")
	}
}
