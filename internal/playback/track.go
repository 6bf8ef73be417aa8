// Package playback provides the global media-playback coordination core: the
// player registry, the focus mediator, the video exclusivity coordinator, the
// audio coordinator with its queue, and the seek gesture controller.
package playback

import (
	"context"
	"time"
)

// TrackInfo holds the serializable metadata of a playable audio unit
type TrackInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	AudioSource string `json:"audioSource"`
	Thumbnail   string `json:"thumbnail"`
	DurationMs  int64  `json:"durationMs"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// Track is a playable audio unit. It is either a LocalTrack, played through
// the coordinator's own engine, or a VirtualTrack whose engine is owned
// elsewhere and only receives forwarded commands.
type Track interface {
	Info() TrackInfo
	virtual() bool
}

// LocalTrack is a track the audio coordinator plays on its own engine
type LocalTrack struct {
	TrackInfo
}

// Info returns the track metadata
func (t LocalTrack) Info() TrackInfo { return t.TrackInfo }

func (t LocalTrack) virtual() bool { return false }

// VirtualControls is the transport surface of an externally-owned player.
// Play and Pause are required; Seek is nil when the external player cannot
// seek, in which case seek requests are silently ignored.
type VirtualControls struct {
	Play  func(ctx context.Context) error
	Pause func(ctx context.Context) error
	Seek  func(ctx context.Context, position time.Duration) error
}

// VirtualTrack is a track controlled by a component outside the coordinator.
// The coordinator never creates an engine handle for it; transport calls are
// forwarded to Controls.
type VirtualTrack struct {
	TrackInfo
	Controls VirtualControls
}

// Info returns the track metadata
func (t VirtualTrack) Info() TrackInfo { return t.TrackInfo }

func (t VirtualTrack) virtual() bool { return true }

// CanSeek reports whether the external player accepts seek commands
func (t VirtualTrack) CanSeek() bool { return t.Controls.Seek != nil }
