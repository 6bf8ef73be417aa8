package playback

import (
	"context"
	"sync"

	"github.com/mkohlmann/cadence/internal/logger"
)

// FocusSource identifies a playback source competing for the single decoder slot
type FocusSource string

// Focus sources
const (
	SourceAudio FocusSource = "audio"
	SourceVideo FocusSource = "video"
)

// StopFunc silences one playback source
type StopFunc func(ctx context.Context) error

// FocusMediator owns the mutual-exclusion policy between playback sources:
// whichever source acquires focus displaces every other one (video displaces
// audio, new audio displaces video — a fixed rule, not user-configurable).
// Both coordinators depend on the mediator instead of on each other.
type FocusMediator struct {
	stoppers map[FocusSource]StopFunc
	holder   FocusSource
	mu       sync.Mutex
}

// NewFocusMediator creates a mediator with no registered sources
func NewFocusMediator() *FocusMediator {
	return &FocusMediator{
		stoppers: make(map[FocusSource]StopFunc),
	}
}

// SetStopper registers the stop command for a source. Each coordinator
// registers itself once during construction.
func (m *FocusMediator) SetStopper(source FocusSource, stop StopFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stoppers[source] = stop
}

// Acquire grants focus to source by stopping every other registered source.
// Stop failures are logged, never propagated: losing focus must not crash the
// winner's play request.
func (m *FocusMediator) Acquire(ctx context.Context, source FocusSource) {
	m.mu.Lock()
	m.holder = source
	others := make(map[FocusSource]StopFunc, len(m.stoppers))
	for src, stop := range m.stoppers {
		if src != source {
			others[src] = stop
		}
	}
	m.mu.Unlock()

	for src, stop := range others {
		if err := stop(ctx); err != nil {
			logger.Log.Warn().
				Err(err).
				Str("displaced", string(src)).
				Str("winner", string(source)).
				Msg("Failed to stop displaced playback source")
		}
	}
}

// Release clears focus if source still holds it
func (m *FocusMediator) Release(source FocusSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder == source {
		m.holder = ""
	}
}

// Holder returns the source currently holding focus, or "" when none does
func (m *FocusMediator) Holder() FocusSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}
