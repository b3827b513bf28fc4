package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/semaphore"

	"github.com/ytget/ytdl-web/internal/model"
	"github.com/ytget/ytdl-web/internal/platform"
	"github.com/ytget/ytdl-web/internal/registry"
)

// Defaults
const (
	DefaultMaxAttempts  = 3
	DefaultExtractorRPS = 4
)

var (
	// ErrEmptyURL is returned by Start for an empty URL
	ErrEmptyURL = errors.New("no URL provided")
	// ErrInvalidQuality is returned by Start for a negative quality
	ErrInvalidQuality = errors.New("invalid quality")
	// ErrJobActive is returned by Remove for a job that has not finished
	ErrJobActive = errors.New("job is still running")
	// ErrShuttingDown is returned by Start after Shutdown was called
	ErrShuttingDown = errors.New("download service is shutting down")
)

// Options configures a Service
type Options struct {
	DownloadDir  string
	MaxParallel  int
	ExtractorRPS int
	InfoCacheTTL time.Duration
	JobRetention time.Duration
	CleanupFiles bool
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Service handles download operations
type Service struct {
	registry  *registry.Registry
	fetcher   Fetcher
	opts      Options
	sem       *semaphore.Weighted
	limiter   ratelimit.Limiter
	infoCache *cache.Cache
	log       log.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewService creates a new download service
func NewService(reg *registry.Registry, fetcher Fetcher, opts Options, logger log.FieldLogger) *Service {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	if opts.ExtractorRPS < 1 {
		opts.ExtractorRPS = DefaultExtractorRPS
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		registry: reg,
		fetcher:  fetcher,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxParallel)),
		limiter:  ratelimit.New(opts.ExtractorRPS),
		log:      logger.WithField("component", "download"),
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.InfoCacheTTL > 0 {
		s.infoCache = cache.New(opts.InfoCacheTTL, 2*opts.InfoCacheTTL)
	}
	return s
}

// Dir returns the download directory
func (s *Service) Dir() string {
	return s.opts.DownloadDir
}

// Start registers a new job and runs it in the background
func (s *Service) Start(url string, quality int) (model.DownloadJob, error) {
	if url == "" {
		return model.DownloadJob{}, ErrEmptyURL
	}
	if quality < 0 {
		return model.DownloadJob{}, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}
	if quality > platform.MaxSelectableQuality {
		quality = platform.MaxSelectableQuality
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.DownloadJob{}, ErrShuttingDown
	}

	job, err := s.registry.Create(generateJobID(), url, quality)
	if err != nil {
		return model.DownloadJob{}, err
	}

	s.log.WithFields(log.Fields{"job_id": job.ID, "url": url, "quality": quality}).Info("download queued")

	s.wg.Add(1)
	go s.run(job.ID, url, quality)

	return job, nil
}

// Get returns a job by ID
func (s *Service) Get(id string) (model.DownloadJob, bool) {
	return s.registry.Get(id)
}

// List returns all jobs
func (s *Service) List() []model.DownloadJob {
	return s.registry.List()
}

// Len returns the number of tracked jobs
func (s *Service) Len() int {
	return s.registry.Len()
}

// Remove evicts a finished job
func (s *Service) Remove(id string) error {
	job, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrJobNotFound, id)
	}
	if !job.Status.IsFinished() {
		return fmt.Errorf("%w: %s", ErrJobActive, job.Status)
	}

	s.registry.Delete(id)
	s.cleanup(job)
	return nil
}

// Info returns video metadata, served from the probe cache when possible
func (s *Service) Info(ctx context.Context, url string) (*model.VideoInfo, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	if s.infoCache != nil {
		if cached, ok := s.infoCache.Get(url); ok {
			return cached.(*model.VideoInfo), nil
		}
	}

	s.limiter.Take()
	info, err := s.fetcher.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	if s.infoCache != nil {
		s.infoCache.Set(url, info, cache.DefaultExpiration)
	}
	return info, nil
}

// Sweep evicts finished jobs older than the retention period
func (s *Service) Sweep(now time.Time) int {
	if s.opts.JobRetention <= 0 {
		return 0
	}

	evicted := s.registry.Sweep(now.Add(-s.opts.JobRetention))
	for _, job := range evicted {
		s.cleanup(job)
	}
	if len(evicted) > 0 {
		s.log.WithField("count", len(evicted)).Info("evicted finished jobs")
	}
	return len(evicted)
}

// RunJanitor calls Sweep every interval until ctx is done
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Shutdown cancels running jobs and waits for their goroutines
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run performs one job from slot acquisition to its terminal state
func (s *Service) run(id, url string, quality int) {
	defer s.wg.Done()

	logger := s.log.WithField("job_id", id)

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		s.fail(id, err)
		return
	}
	defer s.sem.Release(1)

	s.setStatus(id, model.JobStatusStarting)

	info, err := s.Info(s.ctx, url)
	if err != nil {
		logger.WithError(err).Warn("failed to probe video")
		s.fail(id, err)
		return
	}

	job, err := s.registry.Update(id, func(job *model.DownloadJob) {
		job.Title = platform.SanitizeFilename(info.Title)
		job.Thumbnail = info.Thumbnail
		job.Duration = info.Duration
		job.Status = model.JobStatusDownloading
	})
	if err != nil {
		logger.WithError(err).Warn("job vanished before download")
		return
	}

	req := FetchRequest{
		URL:       url,
		Quality:   quality,
		AudioOnly: job.IsAudioOnly(),
		OutputDir: s.opts.DownloadDir,
	}
	filename, err := s.downloadWithRetry(s.ctx, id, req)
	if err != nil {
		logger.WithError(err).Warn("download failed")
		s.fail(id, err)
		return
	}

	if resolved, err := platform.FindFileWithFallback(filename); err == nil {
		filename = resolved
	}

	s.update(id, func(job *model.DownloadJob) {
		job.Filename = filename
		job.Status = model.JobStatusCompleted
		job.Progress = 100
		job.ETA = 0
	})
	logger.WithField("filename", filename).Info("download completed")
}

// downloadWithRetry attempts download with retry logic. Only file-lock
// failures are retried.
func (s *Service) downloadWithRetry(ctx context.Context, id string, req FetchRequest) (string, error) {
	var lastErr error

	for attempt := 0; attempt < s.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			s.setStatus(id, model.JobStatusRetrying)

			select {
			case <-time.After(s.opts.RetryBackoff << (attempt - 1)):
			case <-ctx.Done():
				return "", ctx.Err()
			}

			s.log.WithFields(log.Fields{"job_id": id, "attempt": attempt + 1}).Info("retrying download")
			s.setStatus(id, model.JobStatusDownloading)
		}

		s.update(id, func(job *model.DownloadJob) { job.Attempts = attempt + 1 })

		s.limiter.Take()
		filename, err := s.fetcher.Fetch(ctx, req, func(p Progress) {
			s.applyProgress(id, p)
		})
		if err == nil {
			return filename, nil
		}

		lastErr = err
		s.log.WithFields(log.Fields{"job_id": id, "attempt": attempt + 1}).WithError(err).Debug("download attempt failed")

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !IsFileLockError(err) {
			return "", err
		}
	}

	return "", lastErr
}

// applyProgress copies a transfer update into the job
func (s *Service) applyProgress(id string, p Progress) {
	s.update(id, func(job *model.DownloadJob) {
		if p.Finished {
			job.Progress = 100
			job.Status = model.JobStatusProcessing
			return
		}
		if p.TotalBytes > 0 {
			percent := float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
			job.Progress = math.Round(min(percent, 100)*10) / 10
			job.Speed = p.Speed
			job.ETA = int(p.ETA.Seconds())
		}
	})
}

func (s *Service) setStatus(id string, status model.JobStatus) {
	if _, err := s.registry.SetStatus(id, status, ""); err != nil {
		s.log.WithField("job_id", id).WithError(err).Debug("status update dropped")
	}
}

func (s *Service) update(id string, fn func(*model.DownloadJob)) {
	if _, err := s.registry.Update(id, fn); err != nil {
		s.log.WithField("job_id", id).WithError(err).Debug("job update dropped")
	}
}

func (s *Service) fail(id string, err error) {
	if _, uerr := s.registry.SetStatus(id, model.JobStatusError, err.Error()); uerr != nil {
		s.log.WithField("job_id", id).WithError(uerr).Debug("failure update dropped")
	}
}

// cleanup removes the output file of an evicted job when configured to
func (s *Service) cleanup(job model.DownloadJob) {
	if !s.opts.CleanupFiles || job.Filename == "" {
		return
	}
	if err := os.Remove(job.Filename); err != nil && !os.IsNotExist(err) {
		s.log.WithField("job_id", job.ID).WithError(err).Warn("failed to remove output file")
	}
}

// generateJobID generates a unique, time-ordered job ID
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
