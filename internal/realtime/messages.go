package realtime

import "encoding/json"

// Envelope is the WebSocket message envelope, inbound and outbound.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound intents.
const (
	EventJoin       = "join"
	EventCreatePoll = "createPoll"
	EventEndPoll    = "endPoll"
	EventVote       = "vote"
	EventKick       = "kick"
	EventSendChat   = "sendChat"
)

// Outbound events.
const (
	EventPollState      = "pollState"
	EventPresenceUpdate = "presenceUpdate"
	EventKicked         = "kicked"
	EventChatMessage    = "chatMessage"
	EventChatHistory    = "chatHistory"
	EventAck            = "ack"
	EventError          = "error"
)

// JoinPayload carries the stable identity a connection joins with.
type JoinPayload struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name,omitempty"`
	Role          string `json:"role"`
}

// KickPayload names the identity to remove; KickedNotice is the targeted
// event delivered to each of that identity's connections.
type KickPayload struct {
	ParticipantID string `json:"participantId"`
}

type KickedNotice struct {
	ParticipantID string `json:"participantId"`
}

// ChatPayload is an inbound chat message; sender identity is resolved from
// the connection's join, never trusted from the payload.
type ChatPayload struct {
	Text string `json:"text"`
}

// AckNotice confirms an intent to its originator.
type AckNotice struct {
	Op string `json:"op"`
}

// ErrorNotice reports a rejected intent to its originator only.
type ErrorNotice struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
