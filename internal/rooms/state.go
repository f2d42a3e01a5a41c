// SPDX-License-Identifier: MIT

package rooms

// State is the shared playback state of a room. It crosses the wire in both
// directions: hosts publish it, the hub broadcasts it, members echo a
// trimmed-down view of it back.
//
// Cover is a pointer so an absent artwork serializes as an explicit null,
// which players use to clear a stale poster.
type State struct {
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	CurrentTime  float64 `json:"currentTime"`
	Duration     float64 `json:"duration"`
	Paused       bool    `json:"paused"`
	PlaybackRate float64 `json:"playbackRate"`
	SourceType   string  `json:"sourceType"`
	UpdatedAt    int64   `json:"updatedAt"`
	Cover        *string `json:"cover"`
}

// mergeFrom keeps the source identity of the existing state and adopts the
// transport controls of the incoming one. Members may scrub, pause and
// change speed, but cannot switch what is playing.
func (s State) mergeFrom(incoming State) State {
	return State{
		URL:          s.URL,
		Title:        s.Title,
		Duration:     s.Duration,
		SourceType:   s.SourceType,
		Cover:        s.Cover,
		CurrentTime:  incoming.CurrentTime,
		Paused:       incoming.Paused,
		PlaybackRate: incoming.PlaybackRate,
	}
}
