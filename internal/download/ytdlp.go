package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
)

// ProgressInterval is how often yt-dlp progress is reported
const ProgressInterval = 500 * time.Millisecond

// ErrNoOutputFile is returned when yt-dlp succeeded but reported no file
var ErrNoOutputFile = errors.New("yt-dlp did not report an output file")

// YTDLPFetcher runs the yt-dlp executable through go-ytdlp
type YTDLPFetcher struct {
	cookiePaths []string
	log         log.FieldLogger
}

// NewYTDLPFetcher creates a fetcher that passes the first existing cookie file to yt-dlp
func NewYTDLPFetcher(cookiePaths []string, logger log.FieldLogger) *YTDLPFetcher {
	return &YTDLPFetcher{
		cookiePaths: cookiePaths,
		log:         logger.WithField("component", "yt-dlp"),
	}
}

// Probe returns metadata for url without downloading it
func (f *YTDLPFetcher) Probe(ctx context.Context, url string) (*model.VideoInfo, error) {
	dl := ytdlp.New().
		NoWarnings().
		SkipDownload().
		DumpSingleJSON()
	f.withCookies(dl)

	result, err := dl.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", url, err)
	}

	info, err := platform.ParseVideoInfo(result.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse info for %s: %w", url, err)
	}
	return info, nil
}

// Fetch downloads req.URL into req.OutputDir and returns the produced file
func (f *YTDLPFetcher) Fetch(ctx context.Context, req FetchRequest, onProgress func(Progress)) (string, error) {
	dl := ytdlp.New().
		NoWarnings().
		PrintJSON().
		Format(FormatSelector(req.Quality)).
		Output(filepath.Join(req.OutputDir, OutputTemplate)).
		Retries(TransferRetries).
		FragmentRetries(TransferRetries).
		FileAccessRetries(TransferRetries)

	if req.AudioOnly {
		dl.ExtractAudio().AudioFormat(AudioFormat).AudioQuality(AudioQuality)
	} else {
		dl.MergeOutputFormat(MergeOutputFormat)
	}
	f.withCookies(dl)

	dl.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
		if onProgress != nil {
			onProgress(progressFromUpdate(update))
		}
	})

	result, err := dl.Run(ctx, req.URL)
	if err != nil {
		return "", err
	}

	info, err := result.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("failed to read yt-dlp output: %w", err)
	}
	if len(info) == 0 || info[0].Filename == nil || *info[0].Filename == "" {
		return "", ErrNoOutputFile
	}

	filename := *info[0].Filename
	if req.AudioOnly {
		filename = AudioFilename(filename)
	}
	return filename, nil
}

func (f *YTDLPFetcher) withCookies(dl *ytdlp.Command) {
	if path, ok := platform.FindCookieFile(f.cookiePaths); ok {
		f.log.WithField("path", path).Debug("using cookies")
		dl.Cookies(path)
	}
}

// progressFromUpdate converts a go-ytdlp update, deriving speed from the
// elapsed time since the transfer started.
func progressFromUpdate(update ytdlp.ProgressUpdate) Progress {
	p := Progress{
		Finished:        update.Status == ytdlp.ProgressStatusFinished,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
		ETA:             update.ETA(),
	}

	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			p.Speed = float64(update.DownloadedBytes) / elapsed
		}
	}
	return p
}
