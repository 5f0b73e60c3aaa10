package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
)

// mediaServer serves data with byte range support and records the ranges of GET requests
type mediaServer struct {
	*httptest.Server

	mu     sync.Mutex
	ranges []string
}

func newMediaServer(t *testing.T, data []byte) *mediaServer {
	t.Helper()

	s := &mediaServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHdr := r.Header.Get("Range")
		if r.Method == http.MethodGet {
			s.mu.Lock()
			s.ranges = append(s.ranges, rangeHdr)
			s.mu.Unlock()
		}

		start, end := 0, len(data)-1
		if _, err := fmt.Sscanf(rangeHdr, "bytes=%d-%d", &start, &end); err != nil {
			w.Header().Set("Content-Length", fmt.Sprint(len(data)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
		end = min(end, len(data)-1)

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.Header().Set("Content-Length", fmt.Sprint(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[start : end+1])
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *mediaServer) Ranges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ranges)
}

func testMedia(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func transferOptions(client *http.Client) options {
	o := defaultOptions()
	o.log = logger.Discard()
	o.httpClient = client
	o.progressInterval = time.Hour
	return o
}

func newTestLayout(t *testing.T) *platform.Layout {
	t.Helper()
	layout := platform.NewLayout(t.TempDir())
	if err := layout.EnsureVideosDir(); err != nil {
		t.Fatalf("EnsureVideosDir() error = %v", err)
	}
	return layout
}

func TestTransfer(t *testing.T) {
	data := testMedia(100_000)

	t.Run("should write the destination and report progress", func(t *testing.T) {
		srv := newMediaServer(t, data)
		layout := newTestLayout(t)
		req := DownloadRequest{URL: model.VideoURL("vid"), Destination: layout.DownloadLocation("vid"), Token: "tok"}

		var events []Event
		err := transferOptions(srv.Client()).transfer(context.Background(), func(e Event) { events = append(events, e) }, srv.URL, req)
		if err != nil {
			t.Fatalf("transfer() error = %v", err)
		}

		got, err := os.ReadFile(req.Destination)
		if err != nil || !bytes.Equal(got, data) {
			t.Fatalf("destination has %d bytes (err %v), expected %d", len(got), err, len(data))
		}
		if layout.HasPartial("vid") {
			t.Error("expected the partial file to be renamed")
		}

		if len(events) == 0 {
			t.Fatal("expected progress events")
		}
		last := events[len(events)-1]
		if token, _ := last.Token(); token != "tok" {
			t.Errorf("token = %q, expected tok", token)
		}
		if p := model.ProgressFromEvent(last); p.Status != model.ProgressDownloading || p.Fraction != 1 {
			t.Errorf("last progress = %+v, expected downloading at 100%%", p)
		}
	})

	t.Run("should resume an existing partial file", func(t *testing.T) {
		srv := newMediaServer(t, data)
		layout := newTestLayout(t)
		req := DownloadRequest{URL: model.VideoURL("vid"), Destination: layout.DownloadLocation("vid"), Token: "tok"}

		const resumeAt = 40_000
		if err := os.WriteFile(layout.PartialLocation("vid"), data[:resumeAt], 0644); err != nil {
			t.Fatalf("failed to write partial file: %v", err)
		}

		var events []Event
		err := transferOptions(srv.Client()).transfer(context.Background(), func(e Event) { events = append(events, e) }, srv.URL, req)
		if err != nil {
			t.Fatalf("transfer() error = %v", err)
		}

		got, err := os.ReadFile(req.Destination)
		if err != nil || !bytes.Equal(got, data) {
			t.Fatalf("destination has %d bytes (err %v), expected %d", len(got), err, len(data))
		}

		ranges := srv.Ranges()
		if len(ranges) == 0 || !strings.HasPrefix(ranges[0], fmt.Sprintf("bytes=%d-", resumeAt)) {
			t.Errorf("GET ranges = %v, expected the first to start at %d", ranges, resumeAt)
		}
		if first := events[0][model.EventKeyDownloadedBytes]; first.(int64) <= resumeAt {
			t.Errorf("first reported size = %v, expected it to include the resumed bytes", first)
		}
	})

	t.Run("should fail without creating the destination", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		t.Cleanup(srv.Close)
		layout := newTestLayout(t)
		req := DownloadRequest{URL: model.VideoURL("vid"), Destination: layout.DownloadLocation("vid"), Token: "tok"}

		err := transferOptions(srv.Client()).transfer(context.Background(), func(Event) {}, srv.URL, req)
		if err == nil {
			t.Fatal("expected an error for a rejected transfer")
		}
		if layout.HasBeenDownloaded("vid") {
			t.Error("expected no final file after a failed transfer")
		}
	})
}

func TestEmitter_Finish(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected model.DownloadProgress
	}{
		{name: "should emit finished on success", expected: model.Finished()},
		{name: "should emit error on failure", err: errors.New("boom"), expected: model.Failed()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e emitter
			var events []Event
			e.SetProgressCallback(func(ev Event) { events = append(events, ev) })

			if err := e.finish("tok", tt.err); !errors.Is(err, tt.err) {
				t.Errorf("finish() = %v, expected %v", err, tt.err)
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if token, _ := events[0].Token(); token != "tok" {
				t.Errorf("token = %q, expected tok", token)
			}
			if got := model.ProgressFromEvent(events[0]); got != tt.expected {
				t.Errorf("progress = %+v, expected %+v", got, tt.expected)
			}
		})
	}
}
