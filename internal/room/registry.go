package room

import (
	"log/slog"
	"sync"
)

// Registry tracks every live room, keyed by session ID. Rooms are created
// lazily on the first join and destroyed when their last listener leaves.
// Safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry. A nil logger falls back to
// slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// Join adds a new listener to the session's room, creating the room if this
// is the first join.
func (reg *Registry) Join(sessionID string, sendBuf int) *Listener {
	l := NewListener(sessionID, sendBuf)

	reg.mu.Lock()
	r, ok := reg.rooms[sessionID]
	if !ok {
		r = newRoom(sessionID, reg.logger)
		reg.rooms[sessionID] = r
		reg.logger.Info("room created", "session_id", sessionID)
	}
	reg.mu.Unlock()

	r.add(l)
	return l
}

// Leave removes a listener from its room and destroys the room if it became
// empty.
func (reg *Registry) Leave(l *Listener) {
	reg.mu.Lock()
	r, ok := reg.rooms[l.SessionID()]
	reg.mu.Unlock()
	if !ok {
		l.Close()
		return
	}

	if empty := r.remove(l.ID()); empty {
		reg.mu.Lock()
		// Re-check under the lock; a concurrent Join may have repopulated.
		if r.Len() == 0 {
			delete(reg.rooms, l.SessionID())
			reg.logger.Info("room destroyed", "session_id", l.SessionID())
		}
		reg.mu.Unlock()
	}
}

// Get returns the room for sessionID, if any.
func (reg *Registry) Get(sessionID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[sessionID]
	return r, ok
}

// Rooms returns the number of live rooms.
func (reg *Registry) Rooms() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Listeners returns the total number of connected listeners across all
// rooms.
func (reg *Registry) Listeners() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	total := 0
	for _, r := range reg.rooms {
		total += r.Len()
	}
	return total
}

// Sessions returns a snapshot of the session IDs with a live room.
func (reg *Registry) Sessions() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		out = append(out, id)
	}
	return out
}

// Broadcast serializes v once and delivers it to every listener of the
// session's room. A session without a room delivers to nobody; that is not
// an error, listeners may simply all have left.
func (reg *Registry) Broadcast(sessionID string, v any) (delivered, dropped int, err error) {
	r, ok := reg.Get(sessionID)
	if !ok {
		return 0, 0, nil
	}
	return r.Broadcast(v)
}

// CloseSession closes every listener of a session and removes its room, as
// on session end or expiry.
func (reg *Registry) CloseSession(sessionID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[sessionID]
	if ok {
		delete(reg.rooms, sessionID)
	}
	reg.mu.Unlock()

	if ok {
		r.closeAll()
		reg.logger.Info("room closed", "session_id", sessionID)
	}
}

// Shutdown closes every room, as on process exit.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for id, r := range reg.rooms {
		rooms = append(rooms, r)
		delete(reg.rooms, id)
	}
	reg.mu.Unlock()

	for _, r := range rooms {
		r.closeAll()
	}
}
