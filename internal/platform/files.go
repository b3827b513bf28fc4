package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ytget/ytdl-web/internal/model"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// File name matching thresholds
const (
	MaxNameDifference = 10
)

// Extensions the merger or post-processor may leave behind, in preference order
var (
	MediaExtensions = []string{".mp4", ".mkv", ".webm", ".mp3", ".m4a", ".opus"}
)

// File extensions to skip
var (
	SkippedExtensions = []string{".part", ".ytdl", ".temp"}
)

// Tool check timeout
const (
	ToolCheckTimeout = 5 * time.Second
)

var (
	// ErrFileNotFound is returned when neither the path nor a close match exists
	ErrFileNotFound = errors.New("file not found")

	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedSpaces       = regexp.MustCompile(`\s+`)
)

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// SanitizeFilename removes characters that are invalid on common filesystems,
// emoji and other characters outside the basic multilingual plane, and
// collapses whitespace.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "")

	var b strings.Builder
	for _, r := range name {
		// emoji live outside the BMP
		if r >= 0x10000 {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(repeatedSpaces.ReplaceAllString(b.String(), " "))
}

// FindCookieFile returns the first existing regular file from paths
func FindCookieFile(paths []string) (string, bool) {
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// ListMedia lists files in dir with the given extension, newest first
func ListMedia(dir, ext string) ([]model.MediaFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	files := make([]model.MediaFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, model.MediaFile{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / float64(time.Second),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Modified > files[j].Modified
	})
	return files, nil
}

// FindFileWithFallback tries to find a file by its original path, and if not
// found, looks for the same name with another media extension and then for
// files with similar names in the same directory.
func FindFileWithFallback(filePath string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("file path is empty")
	}

	if strings.HasPrefix(filePath, "http") {
		return "", fmt.Errorf("file path appears to be a URL: %s", filePath)
	}

	if _, err := os.Stat(filePath); err == nil {
		return filePath, nil
	}

	dir := filepath.Dir(filePath)
	originalExt := filepath.Ext(filePath)
	baseName := strings.TrimSuffix(filepath.Base(filePath), originalExt)

	// merged outputs often change container
	for _, ext := range MediaExtensions {
		candidate := filepath.Join(dir, baseName+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || isSkippedFile(entry.Name()) {
			continue
		}

		entryExt := filepath.Ext(entry.Name())
		entryBase := strings.TrimSuffix(entry.Name(), entryExt)
		if entryExt == originalExt && isSimilarFileName(baseName, entryBase) {
			candidates = append(candidates, filepath.Join(dir, entry.Name()))
		}
	}

	if len(candidates) > 0 {
		sort.Strings(candidates)
		return candidates[0], nil
	}

	return "", fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
}

// isSimilarFileName checks if two file names are similar enough to be considered the same file
func isSimilarFileName(name1, name2 string) bool {
	clean1 := strings.TrimSpace(name1)
	clean2 := strings.TrimSpace(name2)

	if clean1 == clean2 {
		return true
	}

	for _, sep := range []string{"-", "_", " "} {
		if clean2 == sep+clean1 || clean2 == clean1+sep {
			return true
		}
	}

	// truncated names
	if strings.Contains(clean1, clean2) || strings.Contains(clean2, clean1) {
		diff := len(clean1) - len(clean2)
		if diff < 0 {
			diff = -diff
		}
		return diff <= MaxNameDifference
	}

	return false
}

func isSkippedFile(name string) bool {
	for _, ext := range SkippedExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// CheckTool verifies that an external tool is installed by running "<name> -version"
func CheckTool(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, ToolCheckTimeout)
	defer cancel()

	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	if err := exec.CommandContext(ctx, path, "-version").Run(); err != nil {
		return fmt.Errorf("%s is not runnable: %w", name, err)
	}
	return nil
}

// MimeTypeFor returns the served content type and the download name for a file.
// Anything that is not mp3 is served as mp4.
func MimeTypeFor(filename string) (mimeType, downloadName string) {
	if strings.HasSuffix(strings.ToLower(filename), ".mp3") {
		return "audio/mpeg", filename
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".mp4") {
		filename += ".mp4"
	}
	return "video/mp4", filename
}

// ContentDisposition builds an attachment header carrying both an ASCII
// fallback name and the RFC 5987 UTF-8 encoded name.
func ContentDisposition(filename string) string {
	var ascii strings.Builder
	for _, r := range filename {
		if r < 128 && r != '"' && r != '\\' {
			ascii.WriteRune(r)
		} else {
			ascii.WriteRune('_')
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii.String(), url.PathEscape(filename))
}
