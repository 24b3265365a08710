package domain

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "play"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "pause"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "stop"
)

// PlaybackState is a snapshot of the host player, pushed on every change.
// A new snapshot supersedes the previous one; it is never mutated in place.
type PlaybackState struct {
	// Status is the current playback status
	Status PlayerStatus `json:"status"`
	// Artist name
	Artist string `json:"artist"`
	// Title of the current track
	Title string `json:"title"`
	// Album name, only used for logging and snapshots
	Album string `json:"album,omitempty"`
	// Service is the host service playing the track (mpd, webradio, spotify...)
	Service string `json:"service,omitempty"`
	// Seek is the elapsed time in milliseconds
	Seek int64 `json:"seek"`
	// Duration is the track length in seconds, 0 when unknown (streams)
	Duration int64 `json:"duration"`
}

// SameTrack reports whether two snapshots describe the same track
func (s PlaybackState) SameTrack(other PlaybackState) bool {
	return s.Artist == other.Artist && s.Title == other.Title
}

// DisplaySnapshot is a read-only copy of the display session
type DisplaySnapshot struct {
	SessionID    string         `json:"sessionId"`
	Ready        bool           `json:"ready"`
	Running      bool           `json:"running"`
	ElapsedMs    int64          `json:"elapsedMs"`
	ScrollOffset int            `json:"scrollOffset"`
	Lines        [2]string      `json:"lines"`
	Current      *PlaybackState `json:"current,omitempty"`
}
