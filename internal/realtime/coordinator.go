package realtime

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/apperr"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/polls"
	"github.com/classpulse/backend/internal/presence"
)

// Coordinator mediates between inbound connection intents and the poll
// lifecycle manager, presence registry and chat history, and fans resulting
// state out through the hub.
//
// A single mutex serializes every mutating intent together with its fan-out.
// That one sequence point yields the ordering guarantees: a createPoll
// fan-out completes before any queued vote intent for the new poll is
// processed, vote tallies reach observers monotonically, and a kicked
// identity is removed before the presence update the others see.
type Coordinator struct {
	mu       sync.Mutex
	hub      *Hub
	presence *presence.Registry
	polls    *polls.Manager
	history  *chat.History
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator wires the broadcast coordinator.
func NewCoordinator(hub *Hub, registry *presence.Registry, manager *polls.Manager, history *chat.History, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		hub:      hub,
		presence: registry,
		polls:    manager,
		history:  history,
		now:      time.Now,
		logger:   logger,
	}
}

// Connect registers a new session and sends it the current poll state and
// the recent chat backfill. Joining presence is a separate explicit intent.
//
// The register, snapshot read and initial send all run under the intent
// lock: a vote fanned out between them would otherwise reach the new
// session before a staler connect-time snapshot, and its tally would
// appear to go backwards.
func (c *Coordinator) Connect(ctx context.Context, s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hub.Register(s)

	snap, err := c.polls.Active(ctx)
	if err != nil {
		// The client copes with missing initial state; it will catch up on
		// the next fan-out.
		c.logger.Warn("initial poll state unavailable", zap.String("session_id", s.ID()), zap.Error(err))
	} else {
		c.hub.SendTo(s.ID(), EventPollState, snap)
	}

	if c.history != nil {
		if recent := c.history.Recent(ctx); len(recent) > 0 {
			c.hub.SendTo(s.ID(), EventChatHistory, recent)
		}
	}
}

// Join associates the session with a stable identity and fans the full
// online snapshot to all connections.
func (c *Coordinator) Join(ctx context.Context, sessionID string, payload JoinPayload) error {
	if payload.ParticipantID == "" {
		return apperr.Validation("participantId is required")
	}
	role := models.Role(payload.Role)
	if role != models.RolePresenter && role != models.RoleRespondent {
		return apperr.Validation("role must be presenter or respondent")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.presence.Join(sessionID, models.Member{ID: payload.ParticipantID, Name: payload.Name, Role: role})
	c.hub.Broadcast(EventPresenceUpdate, c.presence.Snapshot())
	c.logger.Info("participant joined",
		zap.String("session_id", sessionID),
		zap.String("participant_id", payload.ParticipantID),
		zap.String("role", payload.Role),
	)
	return nil
}

// Disconnect drops the session. The presence snapshot is re-broadcast only
// when the connection had actually joined; a kicked connection was already
// removed and announced.
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) {
	c.hub.Unregister(sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, joined := c.presence.Lookup(sessionID); !joined {
		return
	}
	c.presence.Leave(sessionID)
	c.hub.Broadcast(EventPresenceUpdate, c.presence.Snapshot())
}

// CreatePoll closes any active poll, activates a new one and fans its
// snapshot to all connections. Failures reach the caller only, with no
// fan-out.
func (c *Coordinator) CreatePoll(ctx context.Context, input polls.CreateInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.polls.Create(ctx, input)
	if err != nil {
		return err
	}
	c.hub.Broadcast(EventPollState, snap)
	return nil
}

// EndPoll closes the active poll and fans its final tallied snapshot to all
// connections. A no-op (and no fan-out) when nothing is active.
func (c *Coordinator) EndPoll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.polls.End(ctx)
	if err != nil {
		return err
	}
	if snap != nil {
		c.hub.Broadcast(EventPollState, snap)
	}
	return nil
}

// Vote records a participant's vote and fans the updated tally of the
// active poll to all connections, so every viewer's live results update.
// A duplicate submission fans out the unchanged tally.
func (c *Coordinator) Vote(ctx context.Context, input polls.VoteInput) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.polls.Vote(ctx, input)
	if err != nil {
		return err
	}
	c.hub.Broadcast(EventPollState, snap)
	return nil
}

// Kick delivers a targeted removal notice to every connection the identity
// holds, force-closes those connections, removes them from presence, and
// only then fans the updated online snapshot to the remaining connections.
func (c *Coordinator) Kick(ctx context.Context, payload KickPayload) error {
	if payload.ParticipantID == "" {
		return apperr.Validation("participantId is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conns := c.presence.ConnectionsFor(payload.ParticipantID)
	if len(conns) == 0 {
		return apperr.NotFound("participant has no live connection")
	}
	for _, connID := range conns {
		c.hub.SendTo(connID, EventKicked, KickedNotice{ParticipantID: payload.ParticipantID})
		c.hub.Terminate(connID)
		c.presence.Leave(connID)
	}
	c.hub.Broadcast(EventPresenceUpdate, c.presence.Snapshot())
	c.logger.Info("participant kicked",
		zap.String("participant_id", payload.ParticipantID),
		zap.Int("connections", len(conns)),
	)
	return nil
}

// SendChat resolves the sender from the connection's join, appends the
// message to the recent-history buffer and fans it to all connections.
func (c *Coordinator) SendChat(ctx context.Context, sessionID string, payload ChatPayload) error {
	if payload.Text == "" {
		return apperr.Validation("text is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.presence.Lookup(sessionID)
	if !ok {
		return apperr.UnknownSender("connection has not joined")
	}

	name := sender.Name
	if name == "" {
		if sender.Role == models.RolePresenter {
			name = "Presenter"
		} else {
			name = "Respondent"
		}
	}

	msg := models.ChatMessage{
		ID:         chatMessageID(c.now()),
		Text:       payload.Text,
		SenderID:   sender.ID,
		SenderName: name,
		Role:       sender.Role,
		Timestamp:  c.now().UTC(),
	}

	if c.history != nil {
		c.history.Append(ctx, msg)
	}
	c.hub.Broadcast(EventChatMessage, msg)
	return nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func chatMessageID(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = idAlphabet[rand.Intn(len(idAlphabet))]
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
