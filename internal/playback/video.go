package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mkohlmann/cadence/internal/logger"
)

// VideoState is the per-player state tracked by the video coordinator
type VideoState string

// Video player states
const (
	VideoIdle    VideoState = "idle"
	VideoPlaying VideoState = "playing"
	VideoPaused  VideoState = "paused"
)

// VideoStatus is the coordinator's view of a single video player
type VideoStatus struct {
	State       VideoState `json:"state"`
	ShowOverlay bool       `json:"showOverlay"`
	IsMuted     bool       `json:"isMuted"`
	Progress    float64    `json:"progress"`
	IsCompleted bool       `json:"isCompleted"`
}

// VideoCoordinator guarantees that at most one video plays at a time across a
// dynamically registering set of players, and that video playback displaces
// audio. The state map is updated synchronously on a play request (optimistic
// update); handle commands follow asynchronously, with every pause awaited
// before the target's play is issued.
type VideoCoordinator struct {
	registry   *Registry
	focus      *FocusMediator
	states     map[string]*VideoStatus
	currentID  string
	autoPlay   bool
	retryDelay time.Duration
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewVideoCoordinator creates a video coordinator and registers it with the
// focus mediator so audio play requests can silence it.
func NewVideoCoordinator(registry *Registry, focus *FocusMediator, retryDelay time.Duration) *VideoCoordinator {
	c := &VideoCoordinator{
		registry:   registry,
		focus:      focus,
		states:     make(map[string]*VideoStatus),
		retryDelay: retryDelay,
		log:        logger.Component("video"),
	}
	focus.SetStopper(SourceVideo, func(ctx context.Context) error {
		c.PauseAll(ctx)
		return nil
	})
	return c
}

// PlayGlobally makes targetID the only playing video. The decision is
// reflected in the state map before any handle is commanded; old players are
// paused (and overlaid) and audio is displaced before the target's play is
// issued — the one hard ordering invariant, protecting the shared decoder.
//
// Playback failures are logged, never returned: a failed play leaves the
// target "intending to play", which self-corrects when the player registers
// and reads the state.
func (c *VideoCoordinator) PlayGlobally(ctx context.Context, targetID string) {
	c.mu.Lock()
	for id, status := range c.states {
		if id != targetID && status.State == VideoPlaying {
			status.State = VideoPaused
			status.ShowOverlay = true
		}
	}
	target := c.stateFor(targetID)
	target.State = VideoPlaying
	target.ShowOverlay = false
	c.currentID = targetID
	c.mu.Unlock()

	c.log.Debug().
		Str("target_id", targetID).
		Msg("Video play requested")

	// Pause every other registered player and displace audio, all awaited
	// together before the target plays.
	group, groupCtx := errgroup.WithContext(ctx)
	c.registry.ForEach(func(id string, handle PlayerHandle) {
		if id == targetID {
			return
		}
		handle.ShowOverlay()
		group.Go(func() error {
			if err := handle.Pause(groupCtx); err != nil {
				c.log.Warn().
					Err(err).
					Str("player_id", id).
					Msg("Failed to pause video player")
			}
			// Pause failures never block the new playback.
			return nil
		})
	})
	group.Go(func() error {
		c.focus.Acquire(groupCtx, SourceVideo)
		return nil
	})
	_ = group.Wait()

	// A second PlayGlobally issued meanwhile wins: its synchronous state
	// update has already overwritten ours, so stand down.
	c.mu.Lock()
	stillCurrent := c.currentID == targetID
	c.mu.Unlock()
	if !stillCurrent {
		c.log.Debug().
			Str("target_id", targetID).
			Msg("Play request superseded before target started")
		return
	}

	handle, ok := c.registry.Get(targetID)
	if !ok {
		// The player may still be mounting; give it one beat.
		time.Sleep(c.retryDelay)
		handle, ok = c.registry.Get(targetID)
	}
	if !ok {
		c.log.Debug().
			Str("target_id", targetID).
			Msg("Target player not registered, leaving intent in state map")
		return
	}

	if err := handle.Play(ctx); err != nil {
		c.log.Error().
			Err(err).
			Str("target_id", targetID).
			Msg("Failed to start video playback")
		c.mu.Lock()
		if c.currentID == targetID {
			c.stateFor(targetID).State = VideoPaused
			c.currentID = ""
		}
		c.mu.Unlock()
		return
	}

	c.log.Info().
		Str("target_id", targetID).
		Msg("Video playing")
}

// PauseAll pauses every registered player, shows their overlays, and clears
// the currently-playing id.
func (c *VideoCoordinator) PauseAll(ctx context.Context) {
	c.mu.Lock()
	for _, status := range c.states {
		if status.State == VideoPlaying {
			status.State = VideoPaused
		}
		status.ShowOverlay = true
	}
	c.currentID = ""
	c.mu.Unlock()

	group, groupCtx := errgroup.WithContext(ctx)
	c.registry.ForEach(func(id string, handle PlayerHandle) {
		handle.ShowOverlay()
		group.Go(func() error {
			if err := handle.Pause(groupCtx); err != nil {
				c.log.Warn().
					Err(err).
					Str("player_id", id).
					Msg("Failed to pause video player")
			}
			return nil
		})
	})
	_ = group.Wait()
}

// CurrentlyPlaying returns the id that holds the play intent, or ""
func (c *VideoCoordinator) CurrentlyPlaying() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// Status returns a copy of the tracked status for id
func (c *VideoCoordinator) Status(id string) VideoStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if status, ok := c.states[id]; ok {
		return *status
	}
	return VideoStatus{State: VideoIdle}
}

// States returns a copy of the full state map
func (c *VideoCoordinator) States() map[string]VideoStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]VideoStatus, len(c.states))
	for id, status := range c.states {
		out[id] = *status
	}
	return out
}

// UpdateProgress records a player's reported progress (0..1) and marks
// completion at the end of the range.
func (c *VideoCoordinator) UpdateProgress(id string, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := c.stateFor(id)
	status.Progress = clamp01(progress)
	if status.Progress >= 1 {
		status.IsCompleted = true
	}
}

// SetMuted records a player's mute state
func (c *VideoCoordinator) SetMuted(id string, muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateFor(id).IsMuted = muted
}

// SetAutoPlay enables or disables visibility-driven auto-play
func (c *VideoCoordinator) SetAutoPlay(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoPlay = enabled
}

// OnMostVisible receives the viewport collaborator's "most visible item"
// signal. With auto-play disabled nothing ever plays automatically.
func (c *VideoCoordinator) OnMostVisible(ctx context.Context, id string) {
	c.mu.Lock()
	enabled := c.autoPlay
	current := c.currentID
	c.mu.Unlock()

	if !enabled || id == "" || id == current {
		return
	}
	c.PlayGlobally(ctx, id)
}

// stateFor returns the tracked status for id, creating it on first sight.
// Callers must hold c.mu.
func (c *VideoCoordinator) stateFor(id string) *VideoStatus {
	status, ok := c.states[id]
	if !ok {
		status = &VideoStatus{State: VideoIdle}
		c.states[id] = status
	}
	return status
}

// clamp01 clamps v into [0, 1]
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
