package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine hands out fakeHandles and remembers them by source
type fakeEngine struct {
	mu      sync.Mutex
	handles []*fakeHandle
	loadErr error
}

func (e *fakeEngine) Load(_ context.Context, source string) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	h := &fakeHandle{source: source}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *fakeEngine) lastHandle() *fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.handles) == 0 {
		return nil
	}
	return e.handles[len(e.handles)-1]
}

func (e *fakeEngine) loadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

type fakeHandle struct {
	mu       sync.Mutex
	source   string
	playing  bool
	unloaded bool
	position time.Duration
	plays    int
	pauses   int
	seeks    []time.Duration
	fn       func(EngineStatus)
}

func (h *fakeHandle) Play(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = true
	h.plays++
	return nil
}

func (h *fakeHandle) Pause(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	h.pauses++
	return nil
}

func (h *fakeHandle) Seek(ctx context.Context, position time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = position
	h.seeks = append(h.seeks, position)
	return nil
}

func (h *fakeHandle) Unload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloaded = true
	return nil
}

func (h *fakeHandle) Status() EngineStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return EngineStatus{IsLoaded: !h.unloaded, IsPlaying: h.playing, Position: h.position}
}

func (h *fakeHandle) Subscribe(fn func(EngineStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
}

// report pushes one engine status through the subscription, as the native
// engine would on its reporting interval.
func (h *fakeHandle) report(st EngineStatus) {
	h.mu.Lock()
	fn := h.fn
	h.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (h *fakeHandle) isUnloaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unloaded
}

func newAudioTestRig(t *testing.T, opts AudioOptions) (*AudioCoordinator, *fakeEngine, *FocusMediator) {
	t.Helper()
	engine := &fakeEngine{}
	focus := NewFocusMediator()
	audio := NewAudioCoordinator(engine, focus, opts)
	t.Cleanup(audio.Close)
	return audio, engine, focus
}

func TestAudio_SetTrackLoadsAndPlays(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1", AudioSource: "file://t1"}}, true)

	st := audio.Status()
	assert.Equal(t, AudioPlaying, st.State)
	require.NotNil(t, st.Track)
	assert.Equal(t, "t1", st.Track.ID)

	handle := engine.lastHandle()
	require.NotNil(t, handle)
	assert.Equal(t, "file://t1", handle.source)
	assert.Equal(t, 1, handle.plays)
}

func TestAudio_SetTrackWithoutAutoplay(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})

	audio.SetTrack(context.Background(), LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, false)

	assert.Equal(t, AudioPaused, audio.Status().State)
	assert.Zero(t, engine.lastHandle().plays)
}

func TestAudio_SetTrackReleasesPreviousHandle(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, true)
	first := engine.lastHandle()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t2"}}, true)

	assert.True(t, first.isUnloaded(), "the old handle must be released before the new load")
	assert.Equal(t, 2, engine.loadCount())
}

func TestAudio_LoadFailureReturnsToIdle(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	engine.loadErr = assert.AnError

	audio.SetTrack(context.Background(), LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, true)

	assert.Equal(t, AudioIdle, audio.Status().State)
}

func TestAudio_PlayPauseToggle(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	// Transport without a track is a no-op
	audio.Play(ctx)
	audio.Pause(ctx)
	assert.Equal(t, AudioIdle, audio.Status().State)
	assert.Zero(t, engine.loadCount())

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, false)

	audio.Play(ctx)
	assert.Equal(t, AudioPlaying, audio.Status().State)

	audio.Pause(ctx)
	assert.Equal(t, AudioPaused, audio.Status().State)

	audio.Toggle(ctx)
	assert.Equal(t, AudioPlaying, audio.Status().State)
	audio.Toggle(ctx)
	assert.Equal(t, AudioPaused, audio.Status().State)
}

func TestAudio_AcquiresFocusOnPlay(t *testing.T) {
	audio, _, focus := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	videoStopped := 0
	focus.SetStopper(SourceVideo, func(ctx context.Context) error {
		videoStopped++
		return nil
	})

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, true)

	assert.Equal(t, 1, videoStopped, "starting audio must displace video")
	assert.Equal(t, SourceAudio, focus.Holder())
}

func TestAudio_FocusStopperStopsPlayback(t *testing.T) {
	audio, engine, focus := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, true)
	handle := engine.lastHandle()

	// Video acquiring focus silences audio through the registered stopper
	focus.Acquire(ctx, SourceVideo)

	assert.Equal(t, AudioIdle, audio.Status().State)
	assert.True(t, handle.isUnloaded())

	// The track survives the stop; Play recreates the handle lazily
	audio.Play(ctx)
	assert.Equal(t, AudioPlaying, audio.Status().State)
	assert.Equal(t, 2, engine.loadCount())
}

func TestAudio_SeekClamps(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1", DurationMs: 10000}}, false)
	handle := engine.lastHandle()

	audio.Seek(ctx, 20*time.Second)
	audio.Seek(ctx, -5*time.Second)

	require.Len(t, handle.seeks, 2)
	assert.Equal(t, 10*time.Second, handle.seeks[0], "seek past the end clamps to duration")
	assert.Equal(t, time.Duration(0), handle.seeks[1], "negative seek clamps to zero")
}

func TestAudio_SeekToProgress(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1", DurationMs: 10000}}, false)

	audio.SeekToProgress(ctx, 0.5)

	handle := engine.lastHandle()
	require.Len(t, handle.seeks, 1)
	assert.Equal(t, 5*time.Second, handle.seeks[0])
}

func TestAudio_VirtualTrackForwardsTransport(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	var plays, pauses int
	var seeks []time.Duration
	track := VirtualTrack{
		TrackInfo: TrackInfo{ID: "virt", DurationMs: 8000},
		Controls: VirtualControls{
			Play:  func(ctx context.Context) error { plays++; return nil },
			Pause: func(ctx context.Context) error { pauses++; return nil },
			Seek:  func(ctx context.Context, p time.Duration) error { seeks = append(seeks, p); return nil },
		},
	}

	audio.SetTrack(ctx, track, true)
	assert.Zero(t, engine.loadCount(), "virtual tracks never create an engine handle")
	assert.Equal(t, 1, plays)
	assert.Equal(t, AudioPlaying, audio.Status().State)

	audio.Pause(ctx)
	assert.Equal(t, 1, pauses)

	audio.Seek(ctx, 4*time.Second)
	require.Len(t, seeks, 1)
	assert.Equal(t, 4*time.Second, seeks[0])
}

func TestAudio_VirtualTrackWithoutSeekIgnoresSeek(t *testing.T) {
	audio, _, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	track := VirtualTrack{
		TrackInfo: TrackInfo{ID: "virt", DurationMs: 8000},
		Controls: VirtualControls{
			Play:  func(ctx context.Context) error { return nil },
			Pause: func(ctx context.Context) error { return nil },
		},
	}
	audio.SetTrack(ctx, track, true)

	// Must be a silent no-op, not a panic
	audio.Seek(ctx, 2*time.Second)
	audio.SeekToProgress(ctx, 0.9)
}

func TestAudio_NextAdvancesQueue(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 0, true)
	require.Equal(t, "track-0", audio.Status().Track.ID)

	audio.Next(ctx)

	st := audio.Status()
	assert.Equal(t, "track-1", st.Track.ID)
	assert.Equal(t, 1, st.QueueIndex)
	assert.Equal(t, AudioPlaying, st.State)
	assert.Equal(t, 2, engine.loadCount())
}

func TestAudio_NextAtEndStops(t *testing.T) {
	audio, _, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(2), 1, true)
	audio.Next(ctx)

	assert.Equal(t, AudioIdle, audio.Status().State)
}

func TestAudio_NextRepeatOneRestartsCurrent(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 1, true)
	audio.SetRepeatMode(RepeatOne)
	handle := engine.lastHandle()

	audio.Next(ctx)

	st := audio.Status()
	assert.Equal(t, "track-1", st.Track.ID)
	assert.Equal(t, 1, engine.loadCount(), "restart reuses the existing handle")
	require.NotEmpty(t, handle.seeks)
	assert.Equal(t, time.Duration(0), handle.seeks[0], "restart seeks to zero")
	assert.Equal(t, 2, handle.plays)
}

func TestAudio_PreviousAtStartRestarts(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 0, true)
	audio.Previous(ctx)

	assert.Equal(t, "track-0", audio.Status().Track.ID)
	assert.Equal(t, 1, engine.loadCount())
}

func TestAudio_CompletionAdvancesOnce(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{
		CompletionCooldown: 200 * time.Millisecond,
	})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 0, true)
	handle := engine.lastHandle()

	// Engines fire didJustFinish repeatedly; only the first may advance
	for i := 0; i < 5; i++ {
		handle.report(EngineStatus{IsLoaded: true, DidJustFinish: true})
	}

	assert.Eventually(t, func() bool {
		return audio.Status().Track != nil && audio.Status().Track.ID == "track-1"
	}, time.Second, 10*time.Millisecond)

	// Let the advance settle, then confirm exactly one step was taken
	time.Sleep(100 * time.Millisecond)
	st := audio.Status()
	assert.Equal(t, "track-1", st.Track.ID, "repeated completion signals must not double-advance")
	assert.Equal(t, 1, st.QueueIndex)
	assert.Equal(t, 2, engine.loadCount())
}

func TestAudio_CompletionAcceptedAgainAfterCooldown(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{
		CompletionCooldown: 50 * time.Millisecond,
	})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 0, true)

	engine.lastHandle().report(EngineStatus{IsLoaded: true, DidJustFinish: true})
	require.Eventually(t, func() bool {
		track := audio.Status().Track
		return track != nil && track.ID == "track-1"
	}, time.Second, 10*time.Millisecond)

	// After the cooldown, the next track's own completion advances again
	time.Sleep(100 * time.Millisecond)
	engine.lastHandle().report(EngineStatus{IsLoaded: true, DidJustFinish: true})
	assert.Eventually(t, func() bool {
		track := audio.Status().Track
		return track != nil && track.ID == "track-2"
	}, time.Second, 10*time.Millisecond)
}

func TestAudio_StatusListenerReceivesTransitions(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{
		StatusInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	var mu sync.Mutex
	var seen []AudioState
	audio.OnChange(func(st Status) {
		mu.Lock()
		seen = append(seen, st.State)
		mu.Unlock()
	})

	audio.SetTrack(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "t1"}}, true)
	engine.lastHandle().report(EngineStatus{IsLoaded: true, IsPlaying: true, Position: time.Second, Duration: 30 * time.Second})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, state := range seen {
			if state == AudioPlaying {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestAudio_ClearEmptiesQueue(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 0, true)
	handle := engine.lastHandle()

	audio.Clear(ctx)

	st := audio.Status()
	assert.Equal(t, AudioIdle, st.State)
	assert.Nil(t, st.Track)
	assert.Zero(t, st.QueueLength)
	assert.True(t, handle.isUnloaded())
}

func TestAudio_SnapshotRoundtrip(t *testing.T) {
	audio, _, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(3), 1, false)
	audio.SetRepeatMode(RepeatAll)
	audio.SetMuted(true)

	snap := audio.Snapshot()
	assert.Len(t, snap.Queue, 3)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, RepeatAll, snap.RepeatMode)
	assert.True(t, snap.IsMuted)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "track-1", snap.Current.ID)

	// Rehydrate into a fresh coordinator
	restored, engine, _ := newAudioTestRig(t, AudioOptions{})
	restored.Rehydrate(snap)

	st := restored.Status()
	assert.Equal(t, AudioIdle, st.State, "rehydration never auto-plays")
	require.NotNil(t, st.Track)
	assert.Equal(t, "track-1", st.Track.ID)
	assert.Equal(t, 3, st.QueueLength)
	assert.Equal(t, RepeatAll, st.RepeatMode)
	assert.True(t, st.IsMuted)
	assert.Zero(t, engine.loadCount(), "the engine handle is recreated lazily, not at rehydration")

	// First play after rehydration creates the handle
	restored.Play(ctx)
	assert.Equal(t, 1, engine.loadCount())
	assert.Equal(t, AudioPlaying, restored.Status().State)
}

func TestAudio_RehydrateDropsVirtualTracks(t *testing.T) {
	audio, _, _ := newAudioTestRig(t, AudioOptions{})

	snap := Snapshot{
		Current: &TrackSnapshot{TrackInfo: TrackInfo{ID: "local-1"}},
		Queue: []TrackSnapshot{
			{TrackInfo: TrackInfo{ID: "virt-0"}, IsVirtual: true},
			{TrackInfo: TrackInfo{ID: "local-1"}},
			{TrackInfo: TrackInfo{ID: "local-2"}},
		},
		CurrentIndex: 1,
		RepeatMode:   RepeatNone,
	}
	audio.Rehydrate(snap)

	st := audio.Status()
	assert.Equal(t, 2, st.QueueLength, "virtual tracks cannot survive a restart")
	require.NotNil(t, st.Track)
	assert.Equal(t, "local-1", st.Track.ID)
	assert.Equal(t, 0, st.QueueIndex, "index re-seated after the virtual track dropped out")
}

func TestAudio_SnapshotterInvokedOnChanges(t *testing.T) {
	saver := &recordingSnapshotter{}
	engine := &fakeEngine{}
	focus := NewFocusMediator()
	audio := NewAudioCoordinator(engine, focus, AudioOptions{Snapshotter: saver})
	t.Cleanup(audio.Close)

	audio.SetQueue(context.Background(), makeTracks(2), 0, false)
	audio.SetRepeatMode(RepeatAll)

	assert.GreaterOrEqual(t, saver.count(), 2)
	last := saver.last()
	assert.Equal(t, RepeatAll, last.RepeatMode)
	assert.Len(t, last.Queue, 2)
}

type recordingSnapshotter struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingSnapshotter) Save(snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingSnapshotter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recordingSnapshotter) last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func TestAudio_RecorderReceivesCompletedListen(t *testing.T) {
	recorder := &recordingRecorder{}
	engine := &fakeEngine{}
	focus := NewFocusMediator()
	audio := NewAudioCoordinator(engine, focus, AudioOptions{
		Recorder:           recorder,
		CompletionCooldown: 50 * time.Millisecond,
	})
	t.Cleanup(audio.Close)
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(2), 0, true)
	engine.lastHandle().report(EngineStatus{IsLoaded: true, DidJustFinish: true})

	assert.Eventually(t, func() bool {
		recs := recorder.records()
		return len(recs) == 1 && recs[0].TrackID == "track-0" && recs[0].Completed
	}, time.Second, 10*time.Millisecond)
}

func TestAudio_RecorderMarksSkippedListen(t *testing.T) {
	recorder := &recordingRecorder{}
	engine := &fakeEngine{}
	focus := NewFocusMediator()
	audio := NewAudioCoordinator(engine, focus, AudioOptions{Recorder: recorder})
	t.Cleanup(audio.Close)
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(2), 0, true)
	audio.Next(ctx)

	assert.Eventually(t, func() bool {
		recs := recorder.records()
		return len(recs) == 1 && recs[0].TrackID == "track-0" && !recs[0].Completed
	}, time.Second, 10*time.Millisecond)
}

type recordingRecorder struct {
	mu   sync.Mutex
	recs []PlayRecord
}

func (r *recordingRecorder) Record(rec PlayRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *recordingRecorder) records() []PlayRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PlayRecord(nil), r.recs...)
}

func TestAudio_AppendWhilePlaying(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})
	ctx := context.Background()

	audio.SetQueue(ctx, makeTracks(2), 0, true)
	audio.Append(ctx, LocalTrack{TrackInfo: TrackInfo{ID: "extra", AudioSource: "file://extra"}})

	st := audio.Status()
	assert.Equal(t, AudioPlaying, st.State)
	assert.Equal(t, "track-0", st.Track.ID, "appending must not interrupt the current track")
	assert.Equal(t, 3, st.QueueLength)
	assert.Equal(t, 1, engine.loadCount())
}

func TestAudio_AppendToEmptyQueueLoadsPaused(t *testing.T) {
	audio, engine, _ := newAudioTestRig(t, AudioOptions{})

	audio.Append(context.Background(), LocalTrack{TrackInfo: TrackInfo{ID: "t1", AudioSource: "file://t1"}})

	st := audio.Status()
	assert.Equal(t, AudioPaused, st.State)
	require.NotNil(t, st.Track)
	assert.Equal(t, "t1", st.Track.ID)
	assert.Zero(t, engine.lastHandle().plays)
}
