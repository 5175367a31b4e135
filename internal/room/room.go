// Package room implements the per-session broadcast fabric.
//
// A [Room] owns the set of listener connections for one session. Broadcast
// serializes a message once and enqueues the bytes onto every listener's
// bounded send queue; a listener whose queue is full loses that message
// rather than stalling the pipeline. The [Registry] creates rooms lazily on
// the first join and destroys them when the last listener leaves.
package room

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the per-listener outbound queue depth. Sized for a
// couple of seconds of events; a listener further behind than that is
// better served by dropping than by unbounded buffering.
const DefaultSendBuffer = 64

// Listener is one connected client's outbound half. The transport's writer
// task drains [Listener.Outbound]; the fabric enqueues onto it.
type Listener struct {
	id        string
	sessionID string

	send chan []byte

	once   sync.Once
	closed chan struct{}
}

// NewListener creates a listener bound to sessionID with the given send
// queue depth. Non-positive sendBuf falls back to DefaultSendBuffer.
func NewListener(sessionID string, sendBuf int) *Listener {
	if sendBuf <= 0 {
		sendBuf = DefaultSendBuffer
	}
	return &Listener{
		id:        uuid.NewString(),
		sessionID: sessionID,
		send:      make(chan []byte, sendBuf),
		closed:    make(chan struct{}),
	}
}

// ID returns the listener's unique identifier.
func (l *Listener) ID() string { return l.id }

// SessionID returns the session this listener joined.
func (l *Listener) SessionID() string { return l.sessionID }

// Outbound returns the queue of serialized messages to write to the client.
// The channel is never closed; consumers select on [Listener.Done] as well.
func (l *Listener) Outbound() <-chan []byte { return l.send }

// Done is closed when the listener is removed from its room.
func (l *Listener) Done() <-chan struct{} { return l.closed }

// Close marks the listener dead. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { close(l.closed) })
}

// enqueue offers msg to the listener. Reports false when the message was
// dropped, either because the queue is full or the listener is closed.
func (l *Listener) enqueue(msg []byte) bool {
	select {
	case <-l.closed:
		return false
	default:
	}
	select {
	case l.send <- msg:
		return true
	default:
		return false
	}
}

// Room owns the listeners of one session.
type Room struct {
	sessionID string
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[string]*Listener
}

func newRoom(sessionID string, logger *slog.Logger) *Room {
	return &Room{
		sessionID: sessionID,
		logger:    logger.With("session_id", sessionID),
		listeners: make(map[string]*Listener),
	}
}

// SessionID returns the session this room serves.
func (r *Room) SessionID() string { return r.sessionID }

// Len returns the current number of listeners.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// add registers a listener. Callers go through [Registry.Join].
func (r *Room) add(l *Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[l.id] = l
}

// remove unregisters and closes a listener, reporting whether the room is
// now empty.
func (r *Room) remove(listenerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.listeners[listenerID]; ok {
		l.Close()
		delete(r.listeners, listenerID)
	}
	return len(r.listeners) == 0
}

// Broadcast serializes v once and enqueues it to every listener. It returns
// the number of listeners that received the message and the number that
// dropped it.
func (r *Room) Broadcast(v any) (delivered, dropped int, err error) {
	msg, err := json.Marshal(v)
	if err != nil {
		return 0, 0, fmt.Errorf("room: marshal broadcast: %w", err)
	}

	r.mu.RLock()
	targets := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		targets = append(targets, l)
	}
	r.mu.RUnlock()

	for _, l := range targets {
		if l.enqueue(msg) {
			delivered++
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		r.logger.Debug("broadcast dropped for slow listeners",
			"delivered", delivered,
			"dropped", dropped)
	}
	return delivered, dropped, nil
}

// closeAll closes every listener and empties the room.
func (r *Room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, l := range r.listeners {
		l.Close()
		delete(r.listeners, id)
	}
}
