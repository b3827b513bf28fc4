// Package registry keeps the state of download jobs in process memory.
//
// A Registry is shared by every request handler and job runner. All access
// goes through a single RWMutex and callers only receive copies of stored
// jobs. State is lost when the process exits.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ytget/ytdl-web/internal/model"
)

var (
	// ErrJobExists is returned by Create when the id is already registered
	ErrJobExists = errors.New("job already exists")
	// ErrJobNotFound is returned when no job has the given id
	ErrJobNotFound = errors.New("job not found")
	// ErrEmptyID is returned by Create for an empty id
	ErrEmptyID = errors.New("job id is empty")
	// ErrInvalidStatus is returned by SetStatus for an unknown status
	ErrInvalidStatus = errors.New("invalid job status")
)

// Registry is a concurrency-safe map of job id to job state
type Registry struct {
	jobs     map[string]*model.DownloadJob
	mu       sync.RWMutex
	onUpdate func(model.DownloadJob)
	now      func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*model.DownloadJob),
		now:  time.Now,
	}
}

// SetUpdateCallback sets the function called after every mutation.
// It runs outside the lock and receives a snapshot.
func (r *Registry) SetUpdateCallback(callback func(model.DownloadJob)) {
	r.mu.Lock()
	r.onUpdate = callback
	r.mu.Unlock()
}

// Create registers a new pending job
func (r *Registry) Create(id, url string, quality int) (model.DownloadJob, error) {
	if id == "" {
		return model.DownloadJob{}, ErrEmptyID
	}

	r.mu.Lock()
	if _, exists := r.jobs[id]; exists {
		r.mu.Unlock()
		return model.DownloadJob{}, fmt.Errorf("%w: %s", ErrJobExists, id)
	}

	now := r.now()
	job := &model.DownloadJob{
		ID:        id,
		URL:       url,
		Quality:   quality,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = job
	snapshot := *job
	callback := r.onUpdate
	r.mu.Unlock()

	notify(callback, snapshot)
	return snapshot, nil
}

// Update applies fn to the stored job under the write lock and returns the result
func (r *Registry) Update(id string, fn func(*model.DownloadJob)) (model.DownloadJob, error) {
	r.mu.Lock()
	job, exists := r.jobs[id]
	if !exists {
		r.mu.Unlock()
		return model.DownloadJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	wasFinished := job.Status.IsFinished()
	fn(job)
	// id is the map key and must not drift
	job.ID = id
	job.UpdatedAt = r.now()
	if !wasFinished && job.Status.IsFinished() && job.FinishedAt.IsZero() {
		job.FinishedAt = job.UpdatedAt
	}
	snapshot := *job
	callback := r.onUpdate
	r.mu.Unlock()

	notify(callback, snapshot)
	return snapshot, nil
}

// SetStatus moves a job to status. For the error status a non-empty detail
// becomes the job error; other statuses ignore detail.
func (r *Registry) SetStatus(id string, status model.JobStatus, detail string) (model.DownloadJob, error) {
	if !status.IsValid() {
		return model.DownloadJob{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.Update(id, func(job *model.DownloadJob) {
		job.Status = status
		if status == model.JobStatusError && detail != "" {
			msg := detail
			job.Error = &msg
		}
	})
}

// Get returns a copy of the job
func (r *Registry) Get(id string) (model.DownloadJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return model.DownloadJob{}, false
	}
	return *job, true
}

// List returns copies of all jobs ordered by creation time
func (r *Registry) List() []model.DownloadJob {
	r.mu.RLock()
	jobs := make([]model.DownloadJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Delete removes a job and reports whether it existed
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; !exists {
		return false
	}
	delete(r.jobs, id)
	return true
}

// Sweep removes finished jobs that finished before cutoff and returns them
func (r *Registry) Sweep(cutoff time.Time) []model.DownloadJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []model.DownloadJob
	for id, job := range r.jobs {
		if job.Status.IsFinished() && job.FinishedAt.Before(cutoff) {
			evicted = append(evicted, *job)
			delete(r.jobs, id)
		}
	}
	return evicted
}

func notify(callback func(model.DownloadJob), job model.DownloadJob) {
	if callback != nil {
		callback(job)
	}
}
