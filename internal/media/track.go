// Package media defines the track read model shared by the playback core.
package media

import "time"

// Source identifies which backend a track plays through.
type Source int

const (
	// SourceStream plays through the direct audio stream backend.
	SourceStream Source = iota
	// SourceWidget plays through the embedded video widget backend.
	SourceWidget
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceStream:
		return "stream"
	case SourceWidget:
		return "widget"
	default:
		return "unknown"
	}
}

// Track represents a playable track supplied by search, library,
// or playlist screens.
type Track struct {
	ID        string
	Title     string
	Artist    string
	Thumbnail string // small artwork URL
	Artwork   string // full-size artwork URL

	// Duration is the metadata duration. It may disagree with what the
	// backend reports until playback actually starts.
	Duration time.Duration

	Source    Source
	StreamURL string // set when Source == SourceStream
	WidgetID  string // media id for the widget bridge, set when Source == SourceWidget
}
