package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mkohlmann/cadence/internal/logger"
)

// AudioState is the lifecycle state of the audio coordinator
type AudioState string

// Audio lifecycle states
const (
	AudioIdle    AudioState = "idle"
	AudioLoading AudioState = "loading"
	AudioPlaying AudioState = "playing"
	AudioPaused  AudioState = "paused"
)

// advancePhase is the completion-handling state machine. The engine is known
// to fire didJustFinish several times in quick succession; naming the phases
// makes a double advance structurally impossible instead of flag-guarded.
type advancePhase int

const (
	advanceIdle advancePhase = iota
	advancing
	advanceCooldown
)

// TrackSnapshot is the serializable projection of a track. Virtual tracks
// lose their control callbacks across a restart; the flag records what they
// were.
type TrackSnapshot struct {
	TrackInfo
	IsVirtual bool `json:"isVirtual,omitempty"`
}

// Snapshot is the minimal resumable state persisted across restarts. The
// engine handle is never part of it: it is recreated lazily before the first
// play after rehydration.
type Snapshot struct {
	Current      *TrackSnapshot  `json:"current,omitempty"`
	Queue        []TrackSnapshot `json:"queue"`
	CurrentIndex int             `json:"currentIndex"`
	RepeatMode   RepeatMode      `json:"repeatMode"`
	IsShuffled   bool            `json:"isShuffled"`
	IsMuted      bool            `json:"isMuted"`
}

// Status is the coordinator state propagated to listeners
type Status struct {
	State       AudioState     `json:"state"`
	Track       *TrackSnapshot `json:"track,omitempty"`
	PositionMs  int64          `json:"positionMs"`
	DurationMs  int64          `json:"durationMs"`
	QueueIndex  int            `json:"queueIndex"`
	QueueLength int            `json:"queueLength"`
	RepeatMode  RepeatMode     `json:"repeatMode"`
	IsShuffled  bool           `json:"isShuffled"`
	IsMuted     bool           `json:"isMuted"`
}

// Snapshotter persists the resumable snapshot
type Snapshotter interface {
	Save(snap Snapshot) error
}

// PlayRecord is one finished (or abandoned) listen
type PlayRecord struct {
	TrackID   string
	Title     string
	Artist    string
	StartedAt time.Time
	EndedAt   time.Time
	Completed bool
}

// Recorder receives listening history. Implementations own their error
// handling; recording never blocks playback.
type Recorder interface {
	Record(rec PlayRecord)
}

// AudioOptions tunes an audio coordinator
type AudioOptions struct {
	StatusInterval     time.Duration // minimum gap between throttled status emissions
	CompletionCooldown time.Duration // window during which repeated finish signals are dropped
	Snapshotter        Snapshotter   // optional
	Recorder           Recorder      // optional
}

// AudioCoordinator owns the single "now playing" audio track, its queue, and
// playback position. It holds the audio side of the global exclusivity rule:
// starting audio displaces video (through the focus mediator), and the old
// engine handle is fully released before a new one is created so only one
// decoder is ever live.
type AudioCoordinator struct {
	engine      Engine
	focus       *FocusMediator
	queue       *Queue
	state       AudioState
	current     Track
	handle      Handle
	muted       bool
	position    time.Duration
	duration    time.Duration
	wasPlaying  bool
	startedAt   time.Time
	advance     advancePhase
	cooldown    time.Duration
	throttle    *rate.Limiter
	snapshotter Snapshotter
	recorder    Recorder
	listeners   []func(Status)
	events      chan Status
	stopChan    chan struct{}
	dispatchEnd chan struct{}
	mu          sync.Mutex
	log         zerolog.Logger
}

// NewAudioCoordinator creates an audio coordinator and registers it with the
// focus mediator so video play requests can silence it.
func NewAudioCoordinator(engine Engine, focus *FocusMediator, opts AudioOptions) *AudioCoordinator {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 300 * time.Millisecond
	}
	if opts.CompletionCooldown <= 0 {
		opts.CompletionCooldown = time.Second
	}

	c := &AudioCoordinator{
		engine:      engine,
		focus:       focus,
		queue:       NewQueue(),
		state:       AudioIdle,
		cooldown:    opts.CompletionCooldown,
		throttle:    rate.NewLimiter(rate.Every(opts.StatusInterval), 1),
		snapshotter: opts.Snapshotter,
		recorder:    opts.Recorder,
		events:      make(chan Status, 16),
		stopChan:    make(chan struct{}),
		dispatchEnd: make(chan struct{}),
		log:         logger.Component("audio"),
	}

	focus.SetStopper(SourceAudio, func(ctx context.Context) error {
		c.Stop(ctx)
		return nil
	})

	go c.dispatchLoop()
	return c
}

// Close stops the status dispatcher. The coordinator must not be used after
// Close.
func (c *AudioCoordinator) Close() {
	close(c.stopChan)
	<-c.dispatchEnd
}

// OnChange registers a status listener. Listeners receive throttled updates
// on the coordinator's dispatcher goroutine.
func (c *AudioCoordinator) OnChange(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// SetQueue replaces the queue, seats the cursor, and loads the current track
func (c *AudioCoordinator) SetQueue(ctx context.Context, tracks []Track, startIndex int, autoplay bool) {
	c.focus.Acquire(ctx, SourceAudio)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.finishHistoryLocked(false)
	c.unloadLocked(ctx)
	c.queue.SetTracks(tracks, startIndex)

	track, ok := c.queue.Current()
	if !ok {
		c.current = nil
		c.state = AudioIdle
		c.saveSnapshotLocked()
		c.emitLocked()
		return
	}
	c.loadLocked(ctx, track, autoplay)
	c.saveSnapshotLocked()
	c.emitLocked()
}

// SetTrack loads a single track, replacing the queue with just that track.
// Any currently loaded engine instance is fully stopped and released first.
func (c *AudioCoordinator) SetTrack(ctx context.Context, track Track, autoplay bool) {
	c.SetQueue(ctx, []Track{track}, 0, autoplay)
}

// Play starts or resumes playback. A no-op without a loaded track; safe to
// call while already playing. After rehydration the engine handle is created
// here, lazily.
func (c *AudioCoordinator) Play(ctx context.Context) {
	c.focus.Acquire(ctx, SourceAudio)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.playLocked(ctx)
	c.emitLocked()
}

// Pause pauses playback. A no-op without a loaded track; safe to call while
// already paused.
func (c *AudioCoordinator) Pause(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked(ctx)
	c.emitLocked()
}

// Toggle flips between playing and paused
func (c *AudioCoordinator) Toggle(ctx context.Context) {
	c.mu.Lock()
	playing := c.state == AudioPlaying
	c.mu.Unlock()

	if playing {
		c.Pause(ctx)
	} else {
		c.Play(ctx)
	}
}

// Stop releases the engine handle and returns to idle. The current track and
// queue stay in memory so a later Play resumes them (recreating the handle
// lazily). Used by the focus mediator when video displaces audio.
func (c *AudioCoordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == AudioIdle && c.handle == nil {
		return
	}
	c.finishHistoryLocked(false)
	c.unloadLocked(ctx)
	c.state = AudioIdle
	c.emitLocked()
}

// Append adds a track to the end of the queue without interrupting playback.
// On an empty queue the track becomes current, loaded paused.
func (c *AudioCoordinator) Append(ctx context.Context, track Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.queue.IsEmpty() {
		c.queue.SetTracks([]Track{track}, 0)
		c.loadLocked(ctx, track, false)
	} else {
		c.queue.Append(track)
	}
	c.saveSnapshotLocked()
	c.emitLocked()
}

// Clear stops playback and empties the queue
func (c *AudioCoordinator) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finishHistoryLocked(false)
	c.unloadLocked(ctx)
	c.current = nil
	c.queue.Clear()
	c.state = AudioIdle
	c.saveSnapshotLocked()
	c.emitLocked()
}

// Seek moves playback to position, clamped into [0, duration]. Virtual
// tracks without a seek capability ignore the request silently.
func (c *AudioCoordinator) Seek(ctx context.Context, position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekLocked(ctx, position)
}

// SeekToProgress seeks to a fraction (0..1) of the track duration
func (c *AudioCoordinator) SeekToProgress(ctx context.Context, progress float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	duration := c.durationLocked()
	if duration <= 0 {
		return
	}
	c.seekLocked(ctx, time.Duration(clamp01(progress)*float64(duration)))
}

// Next advances to the next queue entry under the active repeat mode. With
// repeat one (or when the queue hands back the same track) the current track
// restarts. Repeat none at the end of the queue stops playback.
func (c *AudioCoordinator) Next(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	track, ok := c.queue.Next()
	c.advanceLocked(ctx, track, ok)
	c.saveSnapshotLocked()
	c.emitLocked()
}

// Previous moves to the previous queue entry; at the first track it restarts
// the current one instead of doing nothing.
func (c *AudioCoordinator) Previous(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	track, ok := c.queue.Previous()
	c.advanceLocked(ctx, track, ok)
	c.saveSnapshotLocked()
	c.emitLocked()
}

// ToggleShuffle shuffles the queue around the current track, or restores the
// original order.
func (c *AudioCoordinator) ToggleShuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.ToggleShuffle()
	c.saveSnapshotLocked()
	c.emitLocked()
}

// SetRepeatMode sets the queue repeat mode
func (c *AudioCoordinator) SetRepeatMode(mode RepeatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.SetRepeatMode(mode)
	c.saveSnapshotLocked()
	c.emitLocked()
}

// SetMuted records the mute state
func (c *AudioCoordinator) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	c.saveSnapshotLocked()
	c.emitLocked()
}

// Status returns the current coordinator status
func (c *AudioCoordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// QueueTracks returns the queue contents in their current order
func (c *AudioCoordinator) QueueTracks() []TrackSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks := c.queue.Tracks()
	out := make([]TrackSnapshot, len(tracks))
	for i, track := range tracks {
		out[i] = snapshotTrack(track)
	}
	return out
}

// Snapshot returns the persistable state
func (c *AudioCoordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Rehydrate restores a persisted snapshot. Virtual tracks are dropped (their
// control callbacks cannot survive a restart; their owners re-register by
// setting new tracks). The engine handle stays nil until the first Play.
func (c *AudioCoordinator) Rehydrate(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tracks := make([]Track, 0, len(snap.Queue))
	index := -1
	for _, ts := range snap.Queue {
		if ts.IsVirtual {
			continue
		}
		if snap.Current != nil && ts.ID == snap.Current.ID {
			index = len(tracks)
		}
		tracks = append(tracks, LocalTrack{TrackInfo: ts.TrackInfo})
	}
	if index < 0 && len(tracks) > 0 {
		index = 0
	}

	c.queue.SetTracks(tracks, index)
	c.queue.SetRepeatMode(snap.RepeatMode)
	c.muted = snap.IsMuted
	c.state = AudioIdle
	c.handle = nil
	if track, ok := c.queue.Current(); ok {
		c.current = track
	} else {
		c.current = nil
	}

	// Shuffle order itself is not restored; only the flag's effect on the
	// persisted order survives, so the queue comes back in the order the
	// listener last saw.
	c.log.Info().
		Int("queue_length", c.queue.Len()).
		Int("current_index", c.queue.CurrentIndex()).
		Bool("was_shuffled", snap.IsShuffled).
		Msg("Playback state rehydrated")
	c.emitLocked()
}

// playLocked implements Play. Callers must hold c.mu.
func (c *AudioCoordinator) playLocked(ctx context.Context) {
	if c.current == nil {
		return
	}

	if vt, ok := c.current.(VirtualTrack); ok {
		if err := vt.Controls.Play(ctx); err != nil {
			c.log.Warn().Err(err).Str("track_id", vt.ID).Msg("Virtual play failed")
			return
		}
		c.state = AudioPlaying
		return
	}

	if c.handle == nil {
		c.loadLocked(ctx, c.current, true)
		return
	}

	if err := c.handle.Play(ctx); err != nil {
		c.log.Error().Err(err).Str("track_id", c.current.Info().ID).Msg("Engine play failed")
		return
	}
	c.state = AudioPlaying
	if c.startedAt.IsZero() {
		c.startedAt = time.Now().UTC()
	}
}

// pauseLocked implements Pause. Callers must hold c.mu.
func (c *AudioCoordinator) pauseLocked(ctx context.Context) {
	if c.current == nil {
		return
	}

	if vt, ok := c.current.(VirtualTrack); ok {
		if err := vt.Controls.Pause(ctx); err != nil {
			c.log.Warn().Err(err).Str("track_id", vt.ID).Msg("Virtual pause failed")
			return
		}
		c.state = AudioPaused
		return
	}

	if c.handle == nil {
		return
	}
	if err := c.handle.Pause(ctx); err != nil {
		c.log.Error().Err(err).Str("track_id", c.current.Info().ID).Msg("Engine pause failed")
		return
	}
	c.state = AudioPaused
}

// seekLocked implements Seek. Callers must hold c.mu.
func (c *AudioCoordinator) seekLocked(ctx context.Context, position time.Duration) {
	if c.current == nil {
		return
	}

	duration := c.durationLocked()
	if position < 0 {
		position = 0
	}
	if duration > 0 && position > duration {
		position = duration
	}

	if vt, ok := c.current.(VirtualTrack); ok {
		if !vt.CanSeek() {
			// Explicit non-support: the external player cannot seek.
			return
		}
		if err := vt.Controls.Seek(ctx, position); err != nil {
			c.log.Warn().Err(err).Str("track_id", vt.ID).Msg("Virtual seek failed")
		}
		return
	}

	if c.handle == nil {
		return
	}
	if err := c.handle.Seek(ctx, position); err != nil {
		c.log.Error().Err(err).Str("track_id", c.current.Info().ID).Msg("Engine seek failed")
		return
	}
	c.position = position
}

// loadLocked makes track current and, for local tracks, creates the engine
// handle. The previous handle must already be unloaded. Load failures return
// the coordinator to idle; they never propagate. Callers must hold c.mu.
func (c *AudioCoordinator) loadLocked(ctx context.Context, track Track, autoplay bool) {
	c.current = track
	c.position = 0
	c.duration = time.Duration(track.Info().DurationMs) * time.Millisecond

	if vt, ok := track.(VirtualTrack); ok {
		c.state = AudioPaused
		if autoplay {
			if err := vt.Controls.Play(ctx); err != nil {
				c.log.Warn().Err(err).Str("track_id", vt.ID).Msg("Virtual autoplay failed")
				return
			}
			c.state = AudioPlaying
			c.startedAt = time.Now().UTC()
		}
		return
	}

	c.state = AudioLoading
	handle, err := c.engine.Load(ctx, track.Info().AudioSource)
	if err != nil {
		c.log.Error().
			Err(err).
			Str("track_id", track.Info().ID).
			Str("source", track.Info().AudioSource).
			Msg("Engine load failed")
		c.state = AudioIdle
		return
	}
	c.handle = handle
	handle.Subscribe(c.onEngineStatus)
	c.startedAt = time.Now().UTC()

	if autoplay {
		if err := handle.Play(ctx); err != nil {
			c.log.Error().Err(err).Str("track_id", track.Info().ID).Msg("Engine play failed after load")
			c.state = AudioPaused
			return
		}
		c.state = AudioPlaying
	} else {
		c.state = AudioPaused
	}
}

// unloadLocked releases the engine handle if one exists. Callers must hold c.mu.
func (c *AudioCoordinator) unloadLocked(ctx context.Context) {
	if c.handle == nil {
		return
	}
	if err := c.handle.Unload(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Engine unload failed")
	}
	c.handle = nil
	c.wasPlaying = false
}

// advanceLocked switches playback to the track the queue handed back, or
// stops at the end of the queue. The same track coming back means restart.
// Callers must hold c.mu.
func (c *AudioCoordinator) advanceLocked(ctx context.Context, track Track, ok bool) {
	if !ok {
		c.finishHistoryLocked(false)
		c.unloadLocked(ctx)
		c.state = AudioIdle
		return
	}

	if c.current != nil && track.Info().ID == c.current.Info().ID && c.handle != nil {
		c.seekLocked(ctx, 0)
		c.playLocked(ctx)
		return
	}

	c.finishHistoryLocked(false)
	c.unloadLocked(ctx)
	c.loadLocked(ctx, track, true)
}

// onEngineStatus is the engine's status callback. It throttles downstream
// propagation (at most one emission per interval, immediately on discrete
// transitions) and debounces completion signals through the advance phases.
func (c *AudioCoordinator) onEngineStatus(st EngineStatus) {
	c.mu.Lock()

	c.position = st.Position
	durationKnown := c.duration <= 0 && st.Duration > 0
	if st.Duration > 0 {
		c.duration = st.Duration
	}
	transition := st.IsPlaying != c.wasPlaying
	c.wasPlaying = st.IsPlaying

	if st.DidJustFinish {
		if c.advance == advanceIdle {
			c.advance = advancing
			c.mu.Unlock()
			go c.completeTrack()
			return
		}
		// Engines repeat the finished signal; anything past the first one
		// inside the advance window is noise.
		c.log.Debug().Msg("Duplicate completion signal ignored")
		c.mu.Unlock()
		return
	}

	if transition || durationKnown || c.throttle.Allow() {
		c.emitLocked()
	}
	c.mu.Unlock()
}

// completeTrack handles one debounced track-finished signal: record history,
// advance the queue, then hold the cooldown window before accepting another
// completion.
func (c *AudioCoordinator) completeTrack() {
	ctx := context.Background()

	c.mu.Lock()
	c.finishHistoryLocked(true)
	track, ok := c.queue.Next()
	c.advanceLocked(ctx, track, ok)
	c.saveSnapshotLocked()
	c.emitLocked()
	c.mu.Unlock()

	c.mu.Lock()
	c.advance = advanceCooldown
	c.mu.Unlock()

	time.AfterFunc(c.cooldown, func() {
		c.mu.Lock()
		c.advance = advanceIdle
		c.mu.Unlock()
	})
}

// finishHistoryLocked records the current listen if one is in progress.
// Callers must hold c.mu.
func (c *AudioCoordinator) finishHistoryLocked(completed bool) {
	if c.recorder == nil || c.current == nil || c.startedAt.IsZero() {
		return
	}

	info := c.current.Info()
	rec := PlayRecord{
		TrackID:   info.ID,
		Title:     info.Title,
		Artist:    info.Artist,
		StartedAt: c.startedAt,
		EndedAt:   time.Now().UTC(),
		Completed: completed,
	}
	c.startedAt = time.Time{}

	go c.recorder.Record(rec)
}

// durationLocked returns the best known track duration. Callers must hold c.mu.
func (c *AudioCoordinator) durationLocked() time.Duration {
	if c.duration > 0 {
		return c.duration
	}
	if c.current != nil {
		return time.Duration(c.current.Info().DurationMs) * time.Millisecond
	}
	return 0
}

// statusLocked builds a Status. Callers must hold c.mu.
func (c *AudioCoordinator) statusLocked() Status {
	status := Status{
		State:       c.state,
		PositionMs:  c.position.Milliseconds(),
		DurationMs:  c.duration.Milliseconds(),
		QueueIndex:  c.queue.CurrentIndex(),
		QueueLength: c.queue.Len(),
		RepeatMode:  c.queue.RepeatMode(),
		IsShuffled:  c.queue.IsShuffled(),
		IsMuted:     c.muted,
	}
	if c.current != nil {
		ts := snapshotTrack(c.current)
		status.Track = &ts
	}
	return status
}

// snapshotLocked builds a Snapshot. Callers must hold c.mu.
func (c *AudioCoordinator) snapshotLocked() Snapshot {
	tracks := c.queue.Tracks()
	snap := Snapshot{
		Queue:        make([]TrackSnapshot, len(tracks)),
		CurrentIndex: c.queue.CurrentIndex(),
		RepeatMode:   c.queue.RepeatMode(),
		IsShuffled:   c.queue.IsShuffled(),
		IsMuted:      c.muted,
	}
	for i, track := range tracks {
		snap.Queue[i] = snapshotTrack(track)
	}
	if c.current != nil {
		ts := snapshotTrack(c.current)
		snap.Current = &ts
	}
	return snap
}

// saveSnapshotLocked persists the snapshot if a snapshotter is configured.
// Callers must hold c.mu.
func (c *AudioCoordinator) saveSnapshotLocked() {
	if c.snapshotter == nil {
		return
	}
	if err := c.snapshotter.Save(c.snapshotLocked()); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist playback snapshot")
	}
}

// emitLocked queues a status emission for the dispatcher. A full event
// buffer drops the update; emissions are throttled and the next one carries
// the fresher state anyway. Callers must hold c.mu.
func (c *AudioCoordinator) emitLocked() {
	select {
	case c.events <- c.statusLocked():
	default:
	}
}

// dispatchLoop delivers queued status updates to listeners off the
// coordinator's lock.
func (c *AudioCoordinator) dispatchLoop() {
	defer close(c.dispatchEnd)

	for {
		select {
		case <-c.stopChan:
			return
		case status := <-c.events:
			c.mu.Lock()
			listeners := append([]func(Status){}, c.listeners...)
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(status)
			}
		}
	}
}

// snapshotTrack projects a track into its serializable form
func snapshotTrack(track Track) TrackSnapshot {
	return TrackSnapshot{
		TrackInfo: track.Info(),
		IsVirtual: track.virtual(),
	}
}
