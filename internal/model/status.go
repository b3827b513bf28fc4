package model

// JobStatus represents the status of a download job
type JobStatus string

const (
	// JobStatusPending means the job is registered but waiting for a free slot
	JobStatusPending JobStatus = "pending"

	// JobStatusStarting means the job is probing video metadata
	JobStatusStarting JobStatus = "starting"

	// JobStatusDownloading means yt-dlp is transferring media
	JobStatusDownloading JobStatus = "downloading"

	// JobStatusProcessing means the transfer finished and post-processing runs
	JobStatusProcessing JobStatus = "processing"

	// JobStatusRetrying means the last attempt failed and a retry is scheduled
	JobStatusRetrying JobStatus = "retrying"

	// JobStatusCompleted means the output file is ready
	JobStatusCompleted JobStatus = "completed"

	// JobStatusError means the job failed with an error
	JobStatusError JobStatus = "error"
)

// String returns the string representation of JobStatus
func (js JobStatus) String() string {
	return string(js)
}

// IsActive returns true if the job is being worked on
func (js JobStatus) IsActive() bool {
	switch js {
	case JobStatusStarting, JobStatusDownloading, JobStatusProcessing, JobStatusRetrying:
		return true
	}
	return false
}

// IsFinished returns true if the job reached a terminal state (completed or error)
func (js JobStatus) IsFinished() bool {
	return js == JobStatusCompleted || js == JobStatusError
}

// IsValid reports whether js is one of the known statuses
func (js JobStatus) IsValid() bool {
	return js == JobStatusPending || js.IsActive() || js.IsFinished()
}
