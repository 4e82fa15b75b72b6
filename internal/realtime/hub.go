package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Session is one live connection as seen by the hub and coordinator.
// *Client is the WebSocket implementation; tests substitute fakes.
type Session interface {
	// ID returns the ephemeral connection id.
	ID() string
	// Enqueue queues an envelope for delivery; returns false when the
	// session's buffer is full and the message was dropped.
	Enqueue(Envelope) bool
	// Terminate flushes queued envelopes and forcibly closes the session.
	Terminate()
}

// Hub maintains the set of connected sessions and performs fan-out. It has
// no opinion about what the events mean; ordering of fan-outs is the
// coordinator's concern.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string]Session),
		logger:   logger,
	}
}

// Register adds a session to the fan-out set.
func (h *Hub) Register(s Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
	h.logger.Debug("session registered", zap.String("session_id", s.ID()))
}

// Unregister removes a session. No-op if absent.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	h.logger.Debug("session unregistered", zap.String("session_id", sessionID))
}

// Broadcast sends an event to every connected session. Sessions with full
// buffers are skipped rather than blocking the fan-out.
func (h *Hub) Broadcast(event string, payload interface{}) {
	env, err := envelope(event, payload)
	if err != nil {
		h.logger.Error("marshal broadcast payload", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	sessions := make([]Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if !s.Enqueue(env) {
			h.logger.Warn("session buffer full, dropping event",
				zap.String("session_id", s.ID()), zap.String("event", event))
		}
	}
}

// SendTo sends an event to a single session. No-op if the session is gone.
func (h *Hub) SendTo(sessionID, event string, payload interface{}) {
	env, err := envelope(event, payload)
	if err != nil {
		h.logger.Error("marshal targeted payload", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if !s.Enqueue(env) {
		h.logger.Warn("session buffer full, dropping event",
			zap.String("session_id", sessionID), zap.String("event", event))
	}
}

// Terminate removes a session from the fan-out set and force-closes it.
func (h *Hub) Terminate(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()
	if ok {
		s.Terminate()
	}
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func envelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event, Data: json.RawMessage("null")}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
