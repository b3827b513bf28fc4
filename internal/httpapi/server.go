package httpapi

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/ytget/ytdl-web/internal/download"
	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
)

// FFmpegTool is the tool reported by the health check
const FFmpegTool = "ffmpeg"

// PlaylistParser expands a playlist URL into its videos
type PlaylistParser interface {
	ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error)
}

// Server routes API requests to the download service
type Server struct {
	downloads download.Downloader
	playlists PlaylistParser
	checkTool func(ctx context.Context, name string) error
	log       log.FieldLogger
}

// NewServer creates a new API server
func NewServer(downloads download.Downloader, playlists PlaylistParser, logger log.FieldLogger) *Server {
	return &Server{
		downloads: downloads,
		playlists: playlists,
		checkTool: platform.CheckTool,
		log:       logger.WithField("component", "http"),
	}
}

// Handler returns the routed handler wrapped with CORS and request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/info", s.handleInfo)
	mux.HandleFunc("POST /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/progress/{id}", s.handleProgress)
	mux.HandleFunc("GET /api/file/{id}", s.handleFile)
	mux.HandleFunc("GET /api/downloads", s.handleListFiles)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("POST /api/playlist", s.handlePlaylist)

	return cors.AllowAll().Handler(logRequests(s.log, mux))
}
