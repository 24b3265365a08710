package volumio

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/genricoloni/raspdac/internal/domain"
)

// number accepts the loose numeric fields Volumio sends:
// numbers, numeric strings, empty strings and null
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// Non numeric text (e.g. "live") means unknown
			*n = 0
			return nil
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

// playerState is the subset of a pushState payload the display uses
type playerState struct {
	Status   string `json:"status"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Service  string `json:"service"`
	Seek     number `json:"seek"`
	Duration number `json:"duration"`
}

func (s playerState) toDomain() domain.PlaybackState {
	status := domain.StatusStopped
	switch s.Status {
	case "play":
		status = domain.StatusPlaying
	case "pause":
		status = domain.StatusPaused
	}

	return domain.PlaybackState{
		Status:   status,
		Artist:   s.Artist,
		Title:    s.Title,
		Album:    s.Album,
		Service:  s.Service,
		Seek:     int64(math.Max(0, float64(s.Seek))),
		Duration: int64(math.Max(0, math.Round(float64(s.Duration)))),
	}
}
