package playback

import (
	"math/rand"
	"time"
)

// RepeatMode controls what happens at queue boundaries
type RepeatMode string

// Repeat modes
const (
	RepeatNone RepeatMode = "none"
	RepeatAll  RepeatMode = "all"
	RepeatOne  RepeatMode = "one"
)

// IsValid checks the repeat mode is a known value
func (m RepeatMode) IsValid() bool {
	switch m {
	case RepeatNone, RepeatAll, RepeatOne:
		return true
	default:
		return false
	}
}

// Queue is an ordered sequence of tracks with a cursor, repeat mode, and
// shuffle state. It is not internally synchronized: the audio coordinator
// owns it and serializes access under its own lock.
//
// Invariant: currentIndex is -1 exactly when the queue is empty, otherwise a
// valid index into the (possibly shuffled) order.
type Queue struct {
	tracks        []Track
	originalOrder []Track
	currentIndex  int
	repeatMode    RepeatMode
	shuffled      bool
	rng           *rand.Rand
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		currentIndex: -1,
		repeatMode:   RepeatNone,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetTracks replaces the queue contents and moves the cursor to startIndex
// (clamped into range; -1 on an empty list). Replacing the queue discards any
// shuffle state.
func (q *Queue) SetTracks(tracks []Track, startIndex int) {
	q.tracks = append([]Track(nil), tracks...)
	q.originalOrder = nil
	q.shuffled = false

	if len(q.tracks) == 0 {
		q.currentIndex = -1
		return
	}
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(q.tracks) {
		startIndex = len(q.tracks) - 1
	}
	q.currentIndex = startIndex
}

// Append adds a track to the end of the queue (and to the preserved original
// order when shuffled). An append to an empty queue does not move the cursor.
func (q *Queue) Append(track Track) {
	q.tracks = append(q.tracks, track)
	if q.shuffled {
		q.originalOrder = append(q.originalOrder, track)
	}
}

// Clear empties the queue
func (q *Queue) Clear() {
	q.tracks = nil
	q.originalOrder = nil
	q.currentIndex = -1
	q.shuffled = false
}

// Current returns the track under the cursor
func (q *Queue) Current() (Track, bool) {
	if q.currentIndex < 0 || q.currentIndex >= len(q.tracks) {
		return nil, false
	}
	return q.tracks[q.currentIndex], true
}

// Len returns the number of queued tracks
func (q *Queue) Len() int { return len(q.tracks) }

// IsEmpty reports whether the queue has no tracks
func (q *Queue) IsEmpty() bool { return len(q.tracks) == 0 }

// CurrentIndex returns the cursor position (-1 when empty)
func (q *Queue) CurrentIndex() int { return q.currentIndex }

// RepeatMode returns the active repeat mode
func (q *Queue) RepeatMode() RepeatMode { return q.repeatMode }

// SetRepeatMode sets the repeat mode; invalid values fall back to none
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	if !mode.IsValid() {
		mode = RepeatNone
	}
	q.repeatMode = mode
}

// IsShuffled reports whether the queue is currently shuffled
func (q *Queue) IsShuffled() bool { return q.shuffled }

// Tracks returns a copy of the queue in its current order
func (q *Queue) Tracks() []Track {
	return append([]Track(nil), q.tracks...)
}

// Next advances the cursor and returns the new current track.
//   - repeat one: the cursor stays put (restart current)
//   - repeat all: wraps past the last track to index 0
//   - repeat none: returns (nil, false) at the end of the queue
func (q *Queue) Next() (Track, bool) {
	if q.IsEmpty() || q.currentIndex < 0 {
		return nil, false
	}

	switch q.repeatMode {
	case RepeatOne:
		return q.tracks[q.currentIndex], true
	case RepeatAll:
		q.currentIndex = (q.currentIndex + 1) % len(q.tracks)
		return q.tracks[q.currentIndex], true
	default:
		if q.currentIndex+1 >= len(q.tracks) {
			return nil, false
		}
		q.currentIndex++
		return q.tracks[q.currentIndex], true
	}
}

// Previous moves the cursor back and returns the new current track. At index
// 0 (and under repeat one) it returns the current track, matching the
// "skip-back restarts the first track" expectation.
func (q *Queue) Previous() (Track, bool) {
	if q.IsEmpty() || q.currentIndex < 0 {
		return nil, false
	}

	if q.repeatMode == RepeatOne || q.currentIndex == 0 {
		return q.tracks[q.currentIndex], true
	}
	q.currentIndex--
	return q.tracks[q.currentIndex], true
}

// ToggleShuffle shuffles the queue, keeping the current track fixed at its
// position and fully randomizing the remainder (Fisher–Yates). Toggling again
// restores the preserved original order with the cursor following the current
// track to its original position.
func (q *Queue) ToggleShuffle() {
	if q.IsEmpty() {
		return
	}

	if q.shuffled {
		q.unshuffle()
		return
	}

	q.originalOrder = append([]Track(nil), q.tracks...)

	rest := make([]Track, 0, len(q.tracks)-1)
	for i, track := range q.tracks {
		if i != q.currentIndex {
			rest = append(rest, track)
		}
	}
	q.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})

	shuffledTracks := make([]Track, 0, len(q.tracks))
	shuffledTracks = append(shuffledTracks, rest[:q.currentIndex]...)
	shuffledTracks = append(shuffledTracks, q.tracks[q.currentIndex])
	shuffledTracks = append(shuffledTracks, rest[q.currentIndex:]...)

	q.tracks = shuffledTracks
	q.shuffled = true
}

// unshuffle restores the original order, re-seating the cursor on the track
// that was current in the shuffled order.
func (q *Queue) unshuffle() {
	currentID := ""
	if current, ok := q.Current(); ok {
		currentID = current.Info().ID
	}

	q.tracks = q.originalOrder
	q.originalOrder = nil
	q.shuffled = false

	for i, track := range q.tracks {
		if track.Info().ID == currentID {
			q.currentIndex = i
			return
		}
	}
	if q.currentIndex >= len(q.tracks) {
		q.currentIndex = len(q.tracks) - 1
	}
}
