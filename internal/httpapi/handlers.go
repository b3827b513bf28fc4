package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ytget/ytdl-web/internal/download"
	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
	"github.com/ytget/ytdl-web/internal/registry"
)

// Error messages returned to clients
const (
	MsgNoURL            = "No URL provided"
	MsgInvalidQuality   = "Invalid quality"
	MsgInvalidBody      = "Invalid request body"
	MsgNotFound         = "Download not found"
	MsgNotCompleted     = "Download not completed"
	MsgFileNotFound     = "File not found"
	MsgJobActive        = "Download is still running"
	MsgShuttingDown     = "Server is shutting down"
	MsgListFilesFailure = "Failed to list downloads"
)

// Banner is served at the root path
const Banner = "ytdl-web is running\n"

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type urlRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL     string `json:"url"`
	Quality *int   `json:"quality"`
}

type downloadResponse struct {
	DownloadID string `json:"download_id"`
}

type healthResponse struct {
	Status string `json:"status"`
	FFmpeg bool   `json:"ffmpeg"`
	Jobs   int    `json:"jobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Banner))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Jobs: s.downloads.Len()}
	if err := s.checkTool(r.Context(), FFmpegTool); err != nil {
		s.log.WithError(err).Warn("ffmpeg check failed")
	} else {
		resp.FFmpeg = true
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, MsgNoURL)
		return
	}

	info, err := s.downloads.Info(r.Context(), req.URL)
	if err != nil {
		s.log.WithField("url", req.URL).WithError(err).Info("info request failed")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, MsgNoURL)
		return
	}
	quality, ok := platform.NormalizeQuality(req.Quality)
	if !ok {
		s.writeError(w, http.StatusBadRequest, MsgInvalidQuality)
		return
	}

	job, err := s.downloads.Start(req.URL, quality)
	switch {
	case errors.Is(err, download.ErrShuttingDown):
		s.writeError(w, http.StatusServiceUnavailable, MsgShuttingDown)
		return
	case err != nil:
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, downloadResponse{DownloadID: job.ID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.downloads.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	job, ok := s.downloads.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	if job.Status != model.JobStatusCompleted {
		s.writeError(w, http.StatusBadRequest, MsgNotCompleted)
		return
	}

	f, err := os.Open(job.Filename)
	if err != nil {
		s.writeError(w, http.StatusNotFound, MsgFileNotFound)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		s.writeError(w, http.StatusNotFound, MsgFileNotFound)
		return
	}

	mimeType, name := platform.MimeTypeFor(filepath.Base(job.Filename))
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", platform.ContentDisposition(name))
	http.ServeContent(w, r, name, stat.ModTime(), f)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := platform.ListMedia(s.downloads.Dir(), ".mp4")
	if err != nil {
		s.log.WithError(err).Error("failed to list download dir")
		s.writeError(w, http.StatusInternalServerError, MsgListFilesFailure)
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.downloads.List())
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.downloads.Remove(r.PathValue("id"))
	switch {
	case errors.Is(err, registry.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, MsgNotFound)
	case errors.Is(err, download.ErrJobActive):
		s.writeError(w, http.StatusConflict, MsgJobActive)
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, MsgNoURL)
		return
	}

	playlist, err := s.playlists.ParsePlaylist(r.Context(), req.URL)
	switch {
	case errors.Is(err, platform.ErrInvalidPlaylistURL):
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.WithField("url", req.URL).WithError(err).Warn("playlist expansion failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, playlist)
}

// decode reads a JSON body, writing a 400 on failure
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, MsgInvalidBody)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
