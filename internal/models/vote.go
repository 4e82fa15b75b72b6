package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one participant's choice on one poll. The pair (PollID,
// ParticipantID) is unique; a repeated submission is a silent no-op.
type Vote struct {
	ID              uuid.UUID `json:"id"`
	PollID          uuid.UUID `json:"pollId"`
	OptionID        uuid.UUID `json:"optionId"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
