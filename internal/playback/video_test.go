package playback

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRetryDelay = 50 * time.Millisecond

func newVideoTestRig() (*VideoCoordinator, *Registry, *FocusMediator) {
	registry := NewRegistry()
	focus := NewFocusMediator()
	video := NewVideoCoordinator(registry, focus, testRetryDelay)
	return video, registry, focus
}

func TestVideo_PlayGloballyOnlyOnePlaying(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	v1 := &fakePlayer{}
	v2 := &fakePlayer{}
	registry.Register("v1", v1)
	registry.Register("v2", v2)

	video.PlayGlobally(ctx, "v1")
	video.PlayGlobally(ctx, "v2")

	states := video.States()
	playing := 0
	for _, st := range states {
		if st.State == VideoPlaying {
			playing++
		}
	}
	assert.Equal(t, 1, playing, "at most one video may be playing")
	assert.Equal(t, VideoPlaying, states["v2"].State)
	assert.Equal(t, VideoPaused, states["v1"].State)
	assert.Equal(t, "v2", video.CurrentlyPlaying())
	assert.True(t, states["v1"].ShowOverlay)
	assert.False(t, states["v2"].ShowOverlay)
}

func TestVideo_StateUpdatedBeforeHandlesSettle(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	// v1's pause is slow; the optimistic state update must not wait for it
	started := make(chan struct{})
	release := make(chan struct{})
	v1 := &fakePlayer{onPause: func() {
		close(started)
		<-release
	}}
	registry.Register("v1", v1)
	registry.Register("v2", &fakePlayer{})

	video.PlayGlobally(ctx, "v1")

	done := make(chan struct{})
	go func() {
		video.PlayGlobally(ctx, "v2")
		close(done)
	}()

	<-started
	// The pause has not settled, yet the decision is already visible
	assert.Equal(t, "v2", video.CurrentlyPlaying())
	assert.Equal(t, VideoPaused, video.Status("v1").State)

	close(release)
	<-done
}

func TestVideo_PausesSettleBeforeTargetPlays(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	log := &commandLog{}
	v1 := &fakePlayer{
		events: log, label: "v1",
		onPause: func() { time.Sleep(30 * time.Millisecond) },
	}
	v2 := &fakePlayer{events: log, label: "v2"}
	v3 := &fakePlayer{
		events: log, label: "v3",
		onPause: func() { time.Sleep(60 * time.Millisecond) },
	}
	registry.Register("v1", v1)
	registry.Register("v2", v2)
	registry.Register("v3", v3)

	video.PlayGlobally(ctx, "v2")

	entries := log.all()
	playIdx := -1
	lastPauseIdx := -1
	for i, entry := range entries {
		switch {
		case entry == "v2:play":
			playIdx = i
		case strings.HasSuffix(entry, ":pause"):
			lastPauseIdx = i
		}
	}
	require.GreaterOrEqual(t, playIdx, 0, "target must have been played")
	assert.Greater(t, playIdx, lastPauseIdx, "every pause settles before the target's play")
	assert.Equal(t, 1, v2.playCount())
	assert.Equal(t, 0, v2.pauseCount(), "the target is never paused")
}

func TestVideo_RetriesMissingTargetOnce(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	late := &fakePlayer{}
	done := make(chan struct{})
	go func() {
		video.PlayGlobally(ctx, "late")
		close(done)
	}()

	// Register inside the retry window
	time.Sleep(testRetryDelay / 2)
	registry.Register("late", late)
	<-done

	assert.Equal(t, 1, late.playCount(), "the one retry should find the late registration")
	assert.Equal(t, "late", video.CurrentlyPlaying())
}

func TestVideo_MissingTargetLeavesIntent(t *testing.T) {
	video, _, _ := newVideoTestRig()

	video.PlayGlobally(context.Background(), "ghost")

	// The intent stays in the state map for the player to pick up on mount
	assert.Equal(t, "ghost", video.CurrentlyPlaying())
	assert.Equal(t, VideoPlaying, video.Status("ghost").State)
}

func TestVideo_PlayFailureRevertsState(t *testing.T) {
	video, registry, _ := newVideoTestRig()

	broken := &fakePlayer{playErr: assert.AnError}
	registry.Register("v1", broken)

	video.PlayGlobally(context.Background(), "v1")

	assert.Equal(t, "", video.CurrentlyPlaying())
	assert.Equal(t, VideoPaused, video.Status("v1").State)
}

func TestVideo_PauseAll(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	v1 := &fakePlayer{}
	v2 := &fakePlayer{}
	registry.Register("v1", v1)
	registry.Register("v2", v2)
	video.PlayGlobally(ctx, "v1")

	video.PauseAll(ctx)

	assert.Equal(t, "", video.CurrentlyPlaying())
	for id, st := range video.States() {
		assert.NotEqual(t, VideoPlaying, st.State, "player %s should not be playing", id)
		assert.True(t, st.ShowOverlay)
	}
	assert.GreaterOrEqual(t, v2.pauseCount(), 1)
}

func TestVideo_AcquiringFocusDisplacesAudio(t *testing.T) {
	video, registry, focus := newVideoTestRig()

	audioStopped := false
	focus.SetStopper(SourceAudio, func(ctx context.Context) error {
		audioStopped = true
		return nil
	})
	registry.Register("v1", &fakePlayer{})

	video.PlayGlobally(context.Background(), "v1")

	assert.True(t, audioStopped, "video playback must displace audio")
	assert.Equal(t, SourceVideo, focus.Holder())
}

func TestVideo_FocusStopperPausesAll(t *testing.T) {
	video, registry, focus := newVideoTestRig()
	ctx := context.Background()

	v1 := &fakePlayer{}
	registry.Register("v1", v1)
	video.PlayGlobally(ctx, "v1")
	require.Equal(t, "v1", video.CurrentlyPlaying())

	// Audio acquiring focus silences video through the registered stopper
	focus.Acquire(ctx, SourceAudio)

	assert.Equal(t, "", video.CurrentlyPlaying())
	assert.NotEqual(t, VideoPlaying, video.Status("v1").State)
}

func TestVideo_UpdateProgress(t *testing.T) {
	video, _, _ := newVideoTestRig()

	video.UpdateProgress("v1", 0.5)
	assert.InDelta(t, 0.5, video.Status("v1").Progress, 1e-9)
	assert.False(t, video.Status("v1").IsCompleted)

	video.UpdateProgress("v1", 1.2)
	st := video.Status("v1")
	assert.Equal(t, 1.0, st.Progress, "progress clamps to 1")
	assert.True(t, st.IsCompleted)
}

func TestVideo_SetMuted(t *testing.T) {
	video, _, _ := newVideoTestRig()

	video.SetMuted("v1", true)
	assert.True(t, video.Status("v1").IsMuted)

	video.SetMuted("v1", false)
	assert.False(t, video.Status("v1").IsMuted)
}

func TestVideo_AutoPlayDisabledNeverPlays(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	v1 := &fakePlayer{}
	registry.Register("v1", v1)

	video.OnMostVisible(ctx, "v1")

	assert.Equal(t, "", video.CurrentlyPlaying())
	assert.Zero(t, v1.playCount())
}

func TestVideo_AutoPlayEnabled(t *testing.T) {
	video, registry, _ := newVideoTestRig()
	ctx := context.Background()

	v1 := &fakePlayer{}
	registry.Register("v1", v1)
	video.SetAutoPlay(true)

	video.OnMostVisible(ctx, "v1")

	assert.Equal(t, "v1", video.CurrentlyPlaying())
	assert.Equal(t, 1, v1.playCount())

	// Re-signaling the current player does nothing
	video.OnMostVisible(ctx, "v1")
	assert.Equal(t, 1, v1.playCount())
}

func TestVideo_StatusUnknownID(t *testing.T) {
	video, _, _ := newVideoTestRig()
	assert.Equal(t, VideoStatus{State: VideoIdle}, video.Status("ghost"))
}
