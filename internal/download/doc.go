package download

// Package download runs download jobs on top of yt-dlp (via
// github.com/lrstanley/go-ytdlp). It owns the job lifecycle in the registry,
// limits how many jobs run at once, throttles extractor launches, retries
// file-lock failures and caches video metadata probes.
