package playback

import (
	"context"
	"sync"
	"time"
)

const (
	simTick            = 250 * time.Millisecond
	simDefaultDuration = 3 * time.Minute
)

// SimEngine is a clock-driven engine implementation. It plays tracks in
// simulated time, reporting position on a fixed tick and signaling completion
// when the playhead reaches the track duration. Used when no native engine
// backs the service, and by tests that need real timing behavior.
type SimEngine struct {
	mu        sync.Mutex
	durations map[string]time.Duration
}

// NewSimEngine creates a simulated playback engine
func NewSimEngine() *SimEngine {
	return &SimEngine{durations: make(map[string]time.Duration)}
}

// SetDuration overrides the simulated duration for a source
func (e *SimEngine) SetDuration(source string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durations[source] = d
}

// Load implements Engine
func (e *SimEngine) Load(_ context.Context, source string) (Handle, error) {
	e.mu.Lock()
	duration, ok := e.durations[source]
	e.mu.Unlock()
	if !ok {
		duration = simDefaultDuration
	}

	h := &simHandle{
		duration: duration,
		stop:     make(chan struct{}),
	}
	go h.run()
	return h, nil
}

type simHandle struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	duration time.Duration
	fn       func(EngineStatus)

	stop     chan struct{}
	stopOnce sync.Once
}

func (h *simHandle) Play(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.position >= h.duration {
		h.position = 0
	}
	h.playing = true
	return nil
}

func (h *simHandle) Pause(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	return nil
}

func (h *simHandle) Seek(_ context.Context, position time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if position < 0 {
		position = 0
	}
	if position > h.duration {
		position = h.duration
	}
	h.position = position
	return nil
}

func (h *simHandle) Unload(_ context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })
	return nil
}

func (h *simHandle) Status() EngineStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked(false)
}

func (h *simHandle) Subscribe(fn func(EngineStatus)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
}

func (h *simHandle) statusLocked(finished bool) EngineStatus {
	return EngineStatus{
		IsLoaded:      true,
		IsPlaying:     h.playing,
		Position:      h.position,
		Duration:      h.duration,
		DidJustFinish: finished,
	}
}

func (h *simHandle) run() {
	ticker := time.NewTicker(simTick)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			if !h.playing {
				h.mu.Unlock()
				continue
			}
			h.position += simTick
			finished := false
			if h.position >= h.duration {
				h.position = h.duration
				h.playing = false
				finished = true
			}
			st := h.statusLocked(finished)
			fn := h.fn
			h.mu.Unlock()

			if fn != nil {
				fn(st)
			}
		}
	}
}
