package playback

import (
	"context"
	"sync"
)

// PlayerHandle is the imperative control surface a video player component
// registers on mount and removes on unmount. The registry holds non-owning
// references: the player owns itself and may vanish between a lookup and a
// command, so every consumer treats a missing handle as a silent no-op.
type PlayerHandle interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	ShowOverlay()
}

// Registry is the process-wide table of registered player handles, keyed by
// player id. Registration and unregistration race freely with coordinator
// commands.
type Registry struct {
	handles map[string]PlayerHandle
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]PlayerHandle),
	}
}

// Register stores a handle under id, replacing any previous registration
func (r *Registry) Register(id string, handle PlayerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[id] = handle
}

// Unregister removes the handle for id. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Get returns the handle for id, or (nil, false) when none is registered
func (r *Registry) Get(id string) (PlayerHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[id]
	return handle, ok
}

// ForEach visits every registered handle. The visit runs over a snapshot, so
// it is safe to register or unregister from within it.
func (r *Registry) ForEach(visit func(id string, handle PlayerHandle)) {
	r.mu.RLock()
	snapshot := make(map[string]PlayerHandle, len(r.handles))
	for id, handle := range r.handles {
		snapshot[id] = handle
	}
	r.mu.RUnlock()

	for id, handle := range snapshot {
		visit(id, handle)
	}
}

// Len returns the number of registered handles
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
