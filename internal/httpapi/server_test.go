package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ytget/yt-offline/internal/download"
	"github.com/ytget/yt-offline/internal/gateway"
	"github.com/ytget/yt-offline/internal/gateway/gatewaytest"
	"github.com/ytget/yt-offline/internal/library"
	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
	"github.com/ytget/yt-offline/internal/store"
	"github.com/ytget/yt-offline/internal/ui"
)

const (
	testTimeout = 5 * time.Second
	playlistURL = "https://www.youtube.com/playlist?list=PL1"
)

type apiFixture struct {
	fake   *gatewaytest.Fake
	coord  *download.Coordinator
	lib    *library.Library
	store  *store.Memory
	layout *platform.Layout
	hub    *Hub
	server *Server
}

func newAPIFixture(t *testing.T, initialize bool) *apiFixture {
	t.Helper()

	f := &apiFixture{
		fake:   gatewaytest.New(),
		store:  store.NewMemory(),
		layout: platform.NewLayout(t.TempDir()),
		hub:    NewHub(logger.Discard()),
	}
	dispatch := ui.NewSerialDispatcher()
	f.coord = download.NewCoordinator(f.fake, dispatch, f.layout, download.WithLogger(logger.Discard()))
	f.lib = library.New(f.store, f.layout, logger.Discard())
	f.server = NewServer(":0", f.coord, f.lib, f.hub, logger.Discard())

	if initialize {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := f.coord.Initialize(ctx); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		if err := f.coord.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		dispatch.Close()
		f.hub.Close()
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) addPlaylist(t *testing.T) *model.Playlist {
	t.Helper()
	p, err := f.lib.Add(context.Background(), playlistURL)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	return p
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_Health(t *testing.T) {
	f := newAPIFixture(t, true)

	rec := f.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestServer_AddPlaylist(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		repeat     bool
		expectCode int
	}{
		{name: "should create playlist", body: addPlaylistRequest{URL: playlistURL}, expectCode: http.StatusCreated},
		{name: "should reject duplicate", body: addPlaylistRequest{URL: playlistURL}, repeat: true, expectCode: http.StatusConflict},
		{name: "should reject video URL", body: addPlaylistRequest{URL: "https://www.youtube.com/watch?v=abc"}, expectCode: http.StatusBadRequest},
		{name: "should reject malformed JSON", body: "not an object", expectCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, true)
			if tt.repeat {
				f.do(t, http.MethodPost, "/api/playlists", tt.body)
			}
			rec := f.do(t, http.MethodPost, "/api/playlists", tt.body)
			if rec.Code != tt.expectCode {
				t.Errorf("status = %d, expected %d (body %s)", rec.Code, tt.expectCode, rec.Body.String())
			}
		})
	}
}

func TestServer_ListPlaylists(t *testing.T) {
	f := newAPIFixture(t, true)
	p := f.addPlaylist(t)
	p.AddVideo(model.NewVideo("a", "Alpha"))

	rec := f.do(t, http.MethodGet, "/api/playlists", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}
	list := decode[[]playlistResponse](t, rec)
	if len(list) != 1 || list[0].URL != playlistURL || list[0].VideoCount != 1 || list[0].State != "loaded" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestServer_GetPlaylist(t *testing.T) {
	f := newAPIFixture(t, true)
	p := f.addPlaylist(t)

	t.Run("should find playlist by escaped URL before refresh", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/playlists/"+url.PathEscape(playlistURL), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, expected 200", rec.Code)
		}
		if got := decode[playlistResponse](t, rec); got.URL != playlistURL {
			t.Errorf("URL = %q, expected %q", got.URL, playlistURL)
		}
	})

	t.Run("should list sorted videos by remote ID", func(t *testing.T) {
		p.AddVideo(model.NewVideo("b", "Beta"))
		p.AddVideo(model.NewVideo("a", "Alpha"))
		p.SetRemote("PL1", "Title", model.OrderFromIDs([]string{"a", "b"}))
		if err := f.layout.EnsureVideosDir(); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f.layout.DownloadLocation("a"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}

		rec := f.do(t, http.MethodGet, "/api/playlists/PL1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, expected 200", rec.Code)
		}
		got := decode[playlistResponse](t, rec)
		if len(got.Videos) != 2 || got.Videos[0].ID != "a" || got.Videos[1].ID != "b" {
			t.Fatalf("unexpected videos %+v", got.Videos)
		}
		if !got.Videos[0].Downloaded || got.Videos[1].Downloaded {
			t.Errorf("unexpected downloaded flags %+v", got.Videos)
		}
		if got.Videos[0].FormattedTime != "00:00" {
			t.Errorf("FormattedTime = %q", got.Videos[0].FormattedTime)
		}
	})

	t.Run("should return 404 for unknown playlist", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/playlists/unknown", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, expected 404", rec.Code)
		}
	})
}

func TestServer_RefreshPlaylist(t *testing.T) {
	f := newAPIFixture(t, true)
	p := f.addPlaylist(t)
	f.fake.AddPlaylist(playlistURL, "PL1", "Title", gateway.Entry{ID: "a"})
	f.fake.AddVideo("a", "Alpha", 42, "")

	rec := f.do(t, http.MethodPost, "/api/playlists/"+url.PathEscape(playlistURL)+"/refresh", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, expected 202 (body %s)", rec.Code, rec.Body.String())
	}
	job := decode[jobResponse](t, rec)
	if job.JobID == "" || job.Kind != string(download.JobRefresh) {
		t.Errorf("unexpected job %+v", job)
	}

	eventually(t, "persisted refresh", func() bool {
		records, err := f.store.LoadAll(context.Background())
		return err == nil && len(records) == 1 && len(records[0].Videos) == 1
	})
	if p.ID() != "PL1" {
		t.Errorf("playlist ID = %q, expected PL1", p.ID())
	}
}

func TestServer_DownloadVideo(t *testing.T) {
	t.Run("should accept download", func(t *testing.T) {
		f := newAPIFixture(t, true)
		p := f.addPlaylist(t)
		p.AddVideo(model.NewVideo("a", "Alpha"))

		rec := f.do(t, http.MethodPost, "/api/videos/a/download", nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, expected 202", rec.Code)
		}
		if job := decode[jobResponse](t, rec); job.Kind != string(download.JobDownload) {
			t.Errorf("unexpected job %+v", job)
		}
		eventually(t, "download request", func() bool { return len(f.fake.Requests()) == 1 })
	})

	t.Run("should return 404 for unknown video", func(t *testing.T) {
		f := newAPIFixture(t, true)
		rec := f.do(t, http.MethodPost, "/api/videos/missing/download", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, expected 404", rec.Code)
		}
	})

	t.Run("should return 503 before initialization", func(t *testing.T) {
		f := newAPIFixture(t, false)
		p := f.addPlaylist(t)
		p.AddVideo(model.NewVideo("a", "Alpha"))

		rec := f.do(t, http.MethodPost, "/api/videos/a/download", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, expected 503", rec.Code)
		}
	})
}

func TestServer_DeleteVideoFile(t *testing.T) {
	f := newAPIFixture(t, true)
	p := f.addPlaylist(t)
	p.AddVideo(model.NewVideo("a", "Alpha"))
	if err := f.layout.EnsureVideosDir(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.layout.DownloadLocation("a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodDelete, "/api/videos/a/file", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, expected 204", rec.Code)
	}
	if f.layout.HasBeenDownloaded("a") {
		t.Error("expected file to be removed")
	}

	rec = f.do(t, http.MethodDelete, "/api/videos/missing/file", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, expected 404", rec.Code)
	}
}

func TestServer_SetPosition(t *testing.T) {
	tests := []struct {
		name       string
		videoID    string
		body       any
		expectCode int
	}{
		{name: "should store position", videoID: "a", body: map[string]int{"seconds": 90}, expectCode: http.StatusNoContent},
		{name: "should require seconds", videoID: "a", body: map[string]int{}, expectCode: http.StatusBadRequest},
		{name: "should return 404 for unknown video", videoID: "zzz", body: map[string]int{"seconds": 1}, expectCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, true)
			p := f.addPlaylist(t)
			v := model.NewVideo("a", "Alpha")
			p.AddVideo(v)

			rec := f.do(t, http.MethodPut, "/api/videos/"+tt.videoID+"/position", tt.body)
			if rec.Code != tt.expectCode {
				t.Fatalf("status = %d, expected %d", rec.Code, tt.expectCode)
			}
			if tt.expectCode == http.StatusNoContent && v.WatchedPosition() != 90 {
				t.Errorf("WatchedPosition() = %d, expected 90", v.WatchedPosition())
			}
		})
	}
}

func TestServer_ProgressStream(t *testing.T) {
	f := newAPIFixture(t, true)
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	eventually(t, "websocket registration", func() bool { return f.hub.Clients() == 1 })

	f.hub.Tap("abc", model.Downloading(0.5, 2048), true)
	f.hub.Tap("abc", model.DownloadProgress{}, false)

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	var got []model.ProgressUpdate
	for range 2 {
		var update model.ProgressUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		got = append(got, update)
	}

	expected := []model.ProgressUpdate{
		{VideoID: "abc", Status: "Downloading", Fraction: 0.5, Speed: 2048},
		{VideoID: "abc", Status: model.UpdateStatusIdle},
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("update %d = %+v, expected %+v", i, got[i], expected[i])
		}
	}
}
