package playback

import (
	"context"
	"time"
)

// EngineStatus is one observation of an engine handle's state, delivered on
// the engine's own reporting interval.
type EngineStatus struct {
	IsLoaded      bool
	IsPlaying     bool
	Position      time.Duration
	Duration      time.Duration
	DidJustFinish bool
}

// Engine is the native playback engine the audio coordinator drives. Exactly
// one handle is live at a time: the coordinator unloads the old handle before
// loading a new one (single decoder slot).
type Engine interface {
	Load(ctx context.Context, source string) (Handle, error)
}

// Handle is one loaded media instance
type Handle interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	Unload(ctx context.Context) error
	Status() EngineStatus
	// Subscribe registers a status callback invoked by the engine on its own
	// interval. A handle supports one subscriber; re-subscribing replaces it.
	Subscribe(fn func(EngineStatus))
}
