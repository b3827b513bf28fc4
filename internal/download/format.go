package download

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ytget/ytdl-web/internal/model"
)

// yt-dlp settings
const (
	OutputTemplate     = "%(title)s.%(ext)s"
	AudioOnlySelector  = "bestaudio/best"
	AudioFormat        = "mp3"
	AudioQuality       = "320"
	MergeOutputFormat  = "mp4"
	TransferRetries    = "10"
	AudioFileExtension = ".mp3"
)

// Substrings of errors raised when another process holds the output file open
var fileLockMarkers = []string{
	"WinError 32",
	"being used by another process",
}

// FormatSelector returns the yt-dlp format expression for a max height.
// Height 0 selects the best audio stream.
func FormatSelector(height int) string {
	if height == model.AudioOnlyQuality {
		return AudioOnlySelector
	}
	return fmt.Sprintf(
		"bestvideo[height<=%[1]d][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=%[1]d]+bestaudio/best[height<=%[1]d]/best",
		height,
	)
}

// AudioFilename maps the file name yt-dlp reports for the source stream to
// the mp3 the extractor leaves behind.
func AudioFilename(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + AudioFileExtension
}

// IsFileLockError reports whether err looks like a transient file-lock failure
func IsFileLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range fileLockMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
