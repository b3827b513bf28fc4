package platform

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/ytget/ytdl-web/internal/model"
)

// Default values
const (
	DefaultTitle         = "Unknown"
	DefaultChannel       = "Unknown"
	MaxDescriptionRunes  = 500
	AudioOnlyLabel       = "Audio Only (MP3)"
	AudioOnlyFormatNote  = "audio"
	NoVideoCodec         = "none"
	Height4K             = 2160
	Height2K             = 1440
	MaxSelectableQuality = 4320
)

// ErrInvalidInfoJSON is returned when yt-dlp output is not a JSON document
var ErrInvalidInfoJSON = errors.New("invalid video info json")

// ParseVideoInfo reads the single-video JSON document printed by yt-dlp
func ParseVideoInfo(raw string) (*model.VideoInfo, error) {
	if !gjson.Valid(raw) {
		return nil, ErrInvalidInfoJSON
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return nil, ErrInvalidInfoJSON
	}

	info := &model.VideoInfo{
		Title:       stringOr(doc.Get("title"), DefaultTitle),
		Thumbnail:   doc.Get("thumbnail").String(),
		Duration:    doc.Get("duration").Float(),
		Channel:     stringOr(doc.Get("channel"), stringOr(doc.Get("uploader"), DefaultChannel)),
		Views:       doc.Get("view_count").Int(),
		Description: truncateRunes(doc.Get("description").String(), MaxDescriptionRunes),
	}

	formats := make([]Format, 0)
	doc.Get("formats").ForEach(func(_, f gjson.Result) bool {
		formats = append(formats, Format{
			Height:         int(f.Get("height").Int()),
			VCodec:         f.Get("vcodec").String(),
			FileSize:       f.Get("filesize").Int(),
			FileSizeApprox: f.Get("filesize_approx").Int(),
			FormatNote:     f.Get("format_note").String(),
		})
		return true
	})
	info.Qualities = QualityOptions(formats)

	return info, nil
}

// Format is the subset of a yt-dlp format entry used for quality selection
type Format struct {
	Height         int
	VCodec         string
	FileSize       int64
	FileSizeApprox int64
	FormatNote     string
}

// QualityOptions returns one option per distinct video height, highest
// first, followed by the audio-only option.
func QualityOptions(formats []Format) []model.QualityOption {
	video := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f.VCodec != NoVideoCodec && f.Height > 0 {
			video = append(video, f)
		}
	}
	sort.SliceStable(video, func(i, j int) bool {
		return video[i].Height > video[j].Height
	})

	seen := make(map[int]bool, len(video))
	options := make([]model.QualityOption, 0, len(video)+1)
	for _, f := range video {
		if seen[f.Height] {
			continue
		}
		seen[f.Height] = true

		size := f.FileSize
		if size == 0 {
			size = f.FileSizeApprox
		}
		options = append(options, model.QualityOption{
			Height:     f.Height,
			Label:      QualityLabel(f.Height),
			FileSize:   size,
			FormatNote: f.FormatNote,
		})
	}

	return append(options, model.QualityOption{
		Height:     model.AudioOnlyQuality,
		Label:      AudioOnlyLabel,
		FormatNote: AudioOnlyFormatNote,
	})
}

// QualityLabel returns the display label for a video height
func QualityLabel(height int) string {
	switch {
	case height >= Height4K:
		return fmt.Sprintf("4K (%dp)", height)
	case height >= Height2K:
		return fmt.Sprintf("2K (%dp)", height)
	default:
		return fmt.Sprintf("%dp", height)
	}
}

// NormalizeQuality applies the request defaults: nil selects the best
// available quality and anything above the cap is clamped to it. Zero stays
// zero (audio only); negative heights are rejected.
func NormalizeQuality(requested *int) (int, bool) {
	if requested == nil {
		return MaxSelectableQuality, true
	}
	switch q := *requested; {
	case q < 0:
		return 0, false
	case q > MaxSelectableQuality:
		return MaxSelectableQuality, true
	default:
		return q, true
	}
}

func stringOr(r gjson.Result, fallback string) string {
	if s := r.String(); s != "" {
		return s
	}
	return fallback
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
