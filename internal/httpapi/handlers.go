package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ytget/yt-offline/internal/download"
	"github.com/ytget/yt-offline/internal/library"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
)

type playlistResponse struct {
	URL        string          `json:"url"`
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title,omitempty"`
	State      string          `json:"state"`
	VideoCount int             `json:"video_count"`
	Videos     []videoResponse `json:"videos,omitempty"`
}

type videoResponse struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Duration        int                   `json:"duration"`
	FormattedTime   string                `json:"formatted_time"`
	WatchedPosition int                   `json:"watched_position"`
	Downloaded      bool                  `json:"downloaded"`
	Partial         bool                  `json:"partial"`
	Progress        *model.ProgressUpdate `json:"progress,omitempty"`
}

type jobResponse struct {
	JobID string `json:"job_id"`
	Kind  string `json:"kind"`
}

type addPlaylistRequest struct {
	URL string `json:"url"`
}

type positionRequest struct {
	Seconds *int `json:"seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, _ := s.downloader.Active()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"active":  active,
		"pending": s.downloader.Pending(),
	})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists := s.library.All()
	resp := make([]playlistResponse, 0, len(playlists))
	for _, p := range playlists {
		resp = append(resp, toPlaylistResponse(p))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddPlaylist(w http.ResponseWriter, r *http.Request) {
	var req addPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	p, err := s.library.Add(r.Context(), req.URL)
	switch {
	case errors.Is(err, platform.ErrNotPlaylistURL):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, library.ErrExists):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error().Printf("Failed to add playlist %s: %v", req.URL, err)
		respondError(w, http.StatusInternalServerError, "failed to add playlist")
		return
	}
	respondJSON(w, http.StatusCreated, toPlaylistResponse(p))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.findPlaylist(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}

	resp := toPlaylistResponse(p)
	layout := s.library.Layout()
	for _, v := range p.Videos() {
		resp.Videos = append(resp.Videos, toVideoResponse(v, layout))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshPlaylist(w http.ResponseWriter, r *http.Request) {
	p, ok := s.findPlaylist(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "playlist not found")
		return
	}

	job := s.downloader.RefreshPlaylist(p, nil)
	if !s.accepted(w, job) {
		return
	}

	go func() {
		<-job.Done()
		ctx, cancel := context.WithTimeout(context.Background(), DefaultPersistTimeout)
		defer cancel()
		if err := s.library.Save(ctx, p); err != nil {
			s.log.Error().Printf("Failed to persist refreshed playlist %s: %v", p.URL(), err)
		}
	}()
}

func (s *Server) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	_, v := s.library.FindVideo(chi.URLParam(r, "id"))
	if v == nil {
		respondError(w, http.StatusNotFound, "video not found")
		return
	}
	s.accepted(w, s.downloader.DownloadVideo(v, nil))
}

func (s *Server) handleDeleteVideoFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, v := s.library.FindVideo(id)
	if v == nil {
		respondError(w, http.StatusNotFound, "video not found")
		return
	}
	if active, ok := s.downloader.Active(); ok && active == id {
		respondError(w, http.StatusConflict, "video is being downloaded")
		return
	}

	s.library.DeleteVideoFile(v)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Seconds == nil {
		respondError(w, http.StatusBadRequest, "seconds is required")
		return
	}

	err := s.library.SetWatchedPosition(r.Context(), chi.URLParam(r, "id"), *req.Seconds)
	switch {
	case errors.Is(err, library.ErrNotFound):
		respondError(w, http.StatusNotFound, "video not found")
	case err != nil:
		s.log.Error().Printf("Failed to save watched position: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save position")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// accepted writes 202 with the job, or 503 when the coordinator refused it outright
func (s *Server) accepted(w http.ResponseWriter, job *download.Job) bool {
	if res, done := job.Result(); done && !res.OK() &&
		(errors.Is(res.Err, download.ErrClosed) || errors.Is(res.Err, download.ErrNotInitialized)) {
		respondError(w, http.StatusServiceUnavailable, res.Err.Error())
		return false
	}
	respondJSON(w, http.StatusAccepted, jobResponse{JobID: job.ID, Kind: string(job.Kind)})
	return true
}

// findPlaylist resolves a remote playlist ID, or a path-escaped playlist URL
// for playlists that were never refreshed
func (s *Server) findPlaylist(id string) (*model.Playlist, bool) {
	if p, ok := s.library.FindByID(id); ok {
		return p, true
	}
	if u, err := url.PathUnescape(id); err == nil {
		return s.library.Get(u)
	}
	return nil, false
}

func toPlaylistResponse(p *model.Playlist) playlistResponse {
	return playlistResponse{
		URL:        p.URL(),
		ID:         p.ID(),
		Title:      p.Title(),
		State:      p.State().String(),
		VideoCount: p.Len(),
	}
}

func toVideoResponse(v *model.Video, layout *platform.Layout) videoResponse {
	resp := videoResponse{
		ID:              v.ID(),
		Title:           v.Title(),
		Duration:        v.Duration(),
		FormattedTime:   v.FormattedTime(),
		WatchedPosition: v.WatchedPosition(),
		Downloaded:      layout.HasBeenDownloaded(v.ID()),
		Partial:         layout.HasPartial(v.ID()),
	}
	if p, ok := v.Progress(); ok {
		update := model.NewProgressUpdate(v.ID(), p, true)
		resp.Progress = &update
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
