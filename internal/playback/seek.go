package playback

import (
	"math"
	"sync"
)

// Vertical drag distance slows horizontal scrubbing for fine-grained control.
// At verticalSlowPixels away from the bar the scrub rate is halved.
const verticalSlowPixels = 100.0

// ScrubController translates tap and drag gestures over a progress bar of
// known pixel width into seek targets, and debounces the asynchronous seek:
// while a seek is pending, Display keeps showing the target instead of the
// raw reported progress, until the report has stayed within epsilon of the
// target for stableTicks consecutive observations. Without the hold, seek
// latency makes the indicator jump back and then catch up.
type ScrubController struct {
	epsilon     float64
	stableTicks int
	trackWidth  float64
	seek        func(target float64)

	dragging     bool
	seeking      bool
	basePercent  float64
	dragProgress float64
	target       float64
	stableCount  int
	lastObserved float64
	mu           sync.Mutex
}

// NewScrubController creates a controller. seek is invoked exactly once per
// completed gesture (tap or drag release) with the target progress in [0,1].
func NewScrubController(epsilon float64, stableTicks int, seek func(target float64)) *ScrubController {
	if stableTicks < 1 {
		stableTicks = 1
	}
	return &ScrubController{
		epsilon:     epsilon,
		stableTicks: stableTicks,
		seek:        seek,
	}
}

// SetTrackWidth records the rendered pixel width of the progress bar
func (s *ScrubController) SetTrackWidth(width float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackWidth = width
}

// Tap requests a seek to the tapped position (x in track pixels)
func (s *ScrubController) Tap(x float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackWidth <= 0 {
		return
	}
	s.beginSeek(clamp01(x / s.trackWidth))
}

// DragStart captures the current progress as the drag base
func (s *ScrubController) DragStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = true
	s.basePercent = s.displayLocked(s.lastObserved)
	s.dragProgress = s.basePercent
}

// DragMove updates the visual drag position from the gesture delta. No seek
// is issued until the drag ends. dy grows as the finger moves away from the
// bar, slowing the horizontal translation.
func (s *ScrubController) DragMove(dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dragging || s.trackWidth <= 0 {
		return
	}
	slow := 1.0 / (1.0 + math.Abs(dy)/verticalSlowPixels)
	s.dragProgress = clamp01(s.basePercent + dx*slow/s.trackWidth)
}

// DragEnd issues exactly one seek for the final drag position
func (s *ScrubController) DragEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dragging {
		return
	}
	s.dragging = false
	s.beginSeek(s.dragProgress)
}

// Observe feeds one externally-reported progress reading (0..1). The seek
// settles once stableTicks consecutive readings land within epsilon of the
// target; a single stray reading resets the count.
func (s *ScrubController) Observe(progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastObserved = clamp01(progress)
	if !s.seeking {
		return
	}

	if math.Abs(s.lastObserved-s.target) <= s.epsilon {
		s.stableCount++
		if s.stableCount >= s.stableTicks {
			s.seeking = false
			s.stableCount = 0
		}
	} else {
		s.stableCount = 0
	}
}

// Display returns the progress the indicator should render for a given raw
// report: the drag position while dragging, the held target while seeking,
// the raw report otherwise.
func (s *ScrubController) Display(raw float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayLocked(raw)
}

// IsSeeking reports whether a seek is pending settlement
func (s *ScrubController) IsSeeking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeking
}

// IsDragging reports whether a drag gesture is in progress
func (s *ScrubController) IsDragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging
}

// Target returns the pending seek target
func (s *ScrubController) Target() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// beginSeek records the target, fires the seek callback, and arms the
// settle debounce. Callers must hold s.mu.
func (s *ScrubController) beginSeek(target float64) {
	s.target = target
	s.seeking = true
	s.stableCount = 0
	if s.seek != nil {
		s.seek(target)
	}
}

// displayLocked implements Display. Callers must hold s.mu.
func (s *ScrubController) displayLocked(raw float64) float64 {
	switch {
	case s.dragging:
		return s.dragProgress
	case s.seeking:
		return s.target
	default:
		return clamp01(raw)
	}
}
