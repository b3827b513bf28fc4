package model

// VideoInfo is the metadata returned for a URL without downloading it
type VideoInfo struct {
	Title       string          `json:"title"`
	Thumbnail   string          `json:"thumbnail"`
	Duration    float64         `json:"duration"`
	Channel     string          `json:"channel"`
	Views       int64           `json:"views"`
	Description string          `json:"description"`
	Qualities   []QualityOption `json:"qualities"`
}

// QualityOption is one selectable download quality
type QualityOption struct {
	Height     int    `json:"height"`
	Label      string `json:"label"`
	FileSize   int64  `json:"filesize"`
	FormatNote string `json:"format_note"`
}

// MediaFile describes a finished file found in the download directory
type MediaFile struct {
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"` // unix seconds
}
