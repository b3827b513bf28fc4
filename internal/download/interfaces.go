package download

import (
	"context"
	"time"

	"github.com/ytget/ytdl-web/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	Start(url string, quality int) (model.DownloadJob, error)
	Get(id string) (model.DownloadJob, bool)
	List() []model.DownloadJob
	Len() int
	Remove(id string) error
	Info(ctx context.Context, url string) (*model.VideoInfo, error)
	Dir() string
}

// Fetcher probes and downloads media. The production implementation shells
// out to yt-dlp.
type Fetcher interface {
	// Probe returns metadata for url without downloading it
	Probe(ctx context.Context, url string) (*model.VideoInfo, error)

	// Fetch downloads req.URL and returns the path of the produced file
	Fetch(ctx context.Context, req FetchRequest, onProgress func(Progress)) (string, error)
}

// FetchRequest describes a single download
type FetchRequest struct {
	URL       string
	Quality   int // max height, 0 for audio only
	AudioOnly bool
	OutputDir string
}

// Progress is a transfer update reported by a Fetcher
type Progress struct {
	Finished        bool
	DownloadedBytes int64
	TotalBytes      int64
	Speed           float64 // bytes per second
	ETA             time.Duration
}
