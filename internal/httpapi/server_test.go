package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytdl-web/internal/download"
	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
	"github.com/ytget/ytdl-web/internal/registry"
)

type startCall struct {
	url     string
	quality int
}

type fakeDownloader struct {
	dir      string
	jobs     map[string]model.DownloadJob
	info     *model.VideoInfo
	infoErr  error
	startErr error
	starts   []startCall
	lists    int
}

func newFakeDownloader(dir string) *fakeDownloader {
	return &fakeDownloader{dir: dir, jobs: make(map[string]model.DownloadJob)}
}

func (f *fakeDownloader) Start(url string, quality int) (model.DownloadJob, error) {
	if f.startErr != nil {
		return model.DownloadJob{}, f.startErr
	}
	f.starts = append(f.starts, startCall{url, quality})
	job := model.DownloadJob{ID: fmt.Sprintf("job-%d", len(f.starts)), URL: url, Quality: quality, Status: model.JobStatusPending}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeDownloader) Get(id string) (model.DownloadJob, bool) {
	job, ok := f.jobs[id]
	return job, ok
}

func (f *fakeDownloader) List() []model.DownloadJob {
	f.lists++
	jobs := make([]model.DownloadJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

func (f *fakeDownloader) Len() int {
	return len(f.jobs)
}

func (f *fakeDownloader) Remove(id string) error {
	job, ok := f.jobs[id]
	if !ok {
		return registry.ErrJobNotFound
	}
	if !job.Status.IsFinished() {
		return download.ErrJobActive
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeDownloader) Info(ctx context.Context, url string) (*model.VideoInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeDownloader) Dir() string {
	return f.dir
}

type fakePlaylists struct {
	playlist *model.Playlist
	err      error
}

func (f *fakePlaylists) ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error) {
	return f.playlist, f.err
}

func newTestServer(t *testing.T, dl *fakeDownloader, pl *fakePlaylists) *Server {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	s := NewServer(dl, pl, logger)
	s.checkTool = func(context.Context, string) error { return nil }
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestIndexAndHealth(t *testing.T) {
	dl := newFakeDownloader(t.TempDir())
	dl.jobs["a"] = model.DownloadJob{ID: "a"}
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Banner, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, healthResponse{Status: "ok", FFmpeg: true, Jobs: 1}, health)
	assert.Zero(t, dl.lists, "health check should not copy the job list")

	s.checkTool = func(context.Context, string) error { return errors.New("missing") }
	rec = do(t, s, http.MethodGet, "/healthz", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.False(t, health.FFmpeg)
}

func TestInfo(t *testing.T) {
	dl := newFakeDownloader(t.TempDir())
	dl.info = &model.VideoInfo{Title: "Clip", Qualities: []model.QualityOption{{Height: 720, Label: "720p"}}}
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodPost, "/api/info", `{"url": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgNoURL, errorBody(t, rec))

	rec = do(t, s, http.MethodPost, "/api/info", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidBody, errorBody(t, rec))

	rec = do(t, s, http.MethodPost, "/api/info", `{"url": "https://youtube.com/watch?v=x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var info model.VideoInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "Clip", info.Title)
	assert.Len(t, info.Qualities, 1)

	dl.infoErr = errors.New("Unsupported URL")
	rec = do(t, s, http.MethodPost, "/api/info", `{"url": "https://example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported URL", errorBody(t, rec))

	rec = do(t, s, http.MethodGet, "/api/info", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDownload(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantQuality int
		wantError   string
	}{
		{"default quality", `{"url": "u"}`, http.StatusOK, 4320, ""},
		{"clamped", `{"url": "u", "quality": 10000}`, http.StatusOK, 4320, ""},
		{"audio only", `{"url": "u", "quality": 0}`, http.StatusOK, 0, ""},
		{"explicit", `{"url": "u", "quality": 720}`, http.StatusOK, 720, ""},
		{"negative", `{"url": "u", "quality": -1}`, http.StatusBadRequest, 0, MsgInvalidQuality},
		{"no url", `{"quality": 720}`, http.StatusBadRequest, 0, MsgNoURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dl := newFakeDownloader(t.TempDir())
			s := newTestServer(t, dl, &fakePlaylists{})

			rec := do(t, s, http.MethodPost, "/api/download", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errorBody(t, rec))
				assert.Empty(t, dl.starts)
				return
			}

			var resp downloadResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "job-1", resp.DownloadID)
			require.Len(t, dl.starts, 1)
			assert.Equal(t, tt.wantQuality, dl.starts[0].quality)
		})
	}
}

func TestDownload_ShuttingDown(t *testing.T) {
	dl := newFakeDownloader(t.TempDir())
	dl.startErr = download.ErrShuttingDown
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodPost, "/api/download", `{"url": "u"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProgress(t *testing.T) {
	dl := newFakeDownloader(t.TempDir())
	dl.jobs["abc"] = model.DownloadJob{ID: "abc", Status: model.JobStatusDownloading, Progress: 42.5}
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodGet, "/api/progress/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgNotFound, errorBody(t, rec))

	rec = do(t, s, http.MethodGet, "/api/progress/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "downloading", body["status"])
	assert.Equal(t, 42.5, body["progress"])
	errValue, present := body["error"]
	assert.True(t, present, "error should always be present")
	assert.Nil(t, errValue)
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "Café.webm")
	audio := filepath.Join(dir, "Song.mp3")
	require.NoError(t, os.WriteFile(video, []byte("video-bytes"), 0644))
	require.NoError(t, os.WriteFile(audio, []byte("audio-bytes"), 0644))

	dl := newFakeDownloader(dir)
	dl.jobs["running"] = model.DownloadJob{ID: "running", Status: model.JobStatusDownloading}
	dl.jobs["gone"] = model.DownloadJob{ID: "gone", Status: model.JobStatusCompleted, Filename: filepath.Join(dir, "gone.mp4")}
	dl.jobs["video"] = model.DownloadJob{ID: "video", Status: model.JobStatusCompleted, Filename: video}
	dl.jobs["audio"] = model.DownloadJob{ID: "audio", Status: model.JobStatusCompleted, Filename: audio}
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodGet, "/api/file/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgNotFound, errorBody(t, rec))

	rec = do(t, s, http.MethodGet, "/api/file/running", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgNotCompleted, errorBody(t, rec))

	rec = do(t, s, http.MethodGet, "/api/file/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, MsgFileNotFound, errorBody(t, rec))

	rec = do(t, s, http.MethodGet, "/api/file/video", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Caf_.webm.mp4"; filename*=UTF-8''Caf%C3%A9.webm.mp4`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "video-bytes", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/file/audio", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, platform.ContentDisposition("Song.mp3"), rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "audio-bytes", rec.Body.String())
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("12345"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp3"), []byte("1"), 0644))

	s := newTestServer(t, newFakeDownloader(dir), &fakePlaylists{})

	rec := do(t, s, http.MethodGet, "/api/downloads", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var files []model.MediaFile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "a.mp4", files[0].Name)
	assert.Equal(t, int64(5), files[0].Size)

	s = newTestServer(t, newFakeDownloader(filepath.Join(dir, "missing")), &fakePlaylists{})
	rec = do(t, s, http.MethodGet, "/api/downloads", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestJobs(t *testing.T) {
	dl := newFakeDownloader(t.TempDir())
	dl.jobs["done"] = model.DownloadJob{ID: "done", Status: model.JobStatusCompleted}
	dl.jobs["busy"] = model.DownloadJob{ID: "busy", Status: model.JobStatusRetrying}
	s := newTestServer(t, dl, &fakePlaylists{})

	rec := do(t, s, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.DownloadJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)

	rec = do(t, s, http.MethodDelete, "/api/jobs/busy", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/jobs/done", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := dl.Get("done")
	assert.False(t, ok)
}

func TestPlaylist(t *testing.T) {
	pl := &fakePlaylists{}
	s := newTestServer(t, newFakeDownloader(t.TempDir()), pl)

	rec := do(t, s, http.MethodPost, "/api/playlist", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pl.err = fmt.Errorf("%w: https://youtube.com", platform.ErrInvalidPlaylistURL)
	rec = do(t, s, http.MethodPost, "/api/playlist", `{"url": "https://youtube.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	pl.err = errors.New("upstream timeout")
	rec = do(t, s, http.MethodPost, "/api/playlist", `{"url": "https://youtube.com/playlist?list=PL1"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	playlist := model.NewPlaylist("PL1", "https://youtube.com/playlist?list=PL1")
	playlist.AddEntry(&model.PlaylistEntry{ID: "v1", Title: "One", URL: "https://www.youtube.com/watch?v=v1"})
	pl.err = nil
	pl.playlist = playlist

	rec = do(t, s, http.MethodPost, "/api/playlist", `{"url": "https://youtube.com/playlist?list=PL1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Playlist
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "PL1", got.ID)
	assert.Equal(t, 1, got.Total)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", got.Entries[0].URL)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, newFakeDownloader(t.TempDir()), &fakePlaylists{})

	req := httptest.NewRequest(http.MethodOptions, "/api/download", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
