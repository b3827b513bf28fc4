package model

import "time"

// AudioOnlyQuality is the requested height that selects an mp3 extraction
const AudioOnlyQuality = 0

// DownloadJob represents the tracked state of a single download request
type DownloadJob struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Quality    int       `json:"quality"` // requested max height, 0 for audio only
	Status     JobStatus `json:"status"`
	Progress   float64   `json:"progress"` // 0 to 100, one decimal
	Speed      float64   `json:"speed"`    // bytes per second
	ETA        int       `json:"eta"`      // seconds, 0 if unknown
	Title      string    `json:"title"`
	Thumbnail  string    `json:"thumbnail,omitempty"`
	Duration   float64   `json:"duration,omitempty"` // seconds
	Filename   string    `json:"filename"`           // path to downloaded file
	Error      *string   `json:"error"`              // null until the job fails
	Attempts   int       `json:"attempts,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// IsAudioOnly reports whether the job extracts audio instead of video
func (j *DownloadJob) IsAudioOnly() bool {
	return j.Quality == AudioOnlyQuality
}
