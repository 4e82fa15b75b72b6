package models

import (
	"time"

	"github.com/google/uuid"
)

// PollStatus is the lifecycle state of a poll. The only transition is
// active -> closed; a closed poll is immutable.
type PollStatus string

const (
	PollActive PollStatus = "active"
	PollClosed PollStatus = "closed"
)

// Poll represents one presenter-issued question with fixed options and a
// bounded answer window. Options are immutable once created and their order
// is significant.
type Poll struct {
	ID                   uuid.UUID  `json:"id"`
	Question             string     `json:"question"`
	Options              []Option   `json:"options"`
	DurationSeconds      int        `json:"durationSeconds"`
	AskedAt              time.Time  `json:"askedAt"`
	Status               PollStatus `json:"status"`
	ExpectedParticipants int        `json:"expectedParticipants,omitempty"`
}

// Option is one answer choice within a poll. IsCorrect is informational
// only and never enforced at vote time.
type Option struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	IsCorrect bool      `json:"isCorrect"`
}

// Votable reports whether the poll still accepts votes at the given
// instant: status must be active and the duration must not have elapsed.
// A poll can report status=active while already time-expired; reads keep
// showing it as active until explicitly closed or superseded.
func (p *Poll) Votable(now time.Time) bool {
	if p == nil || p.Status != PollActive {
		return false
	}
	return now.Before(p.AskedAt.Add(time.Duration(p.DurationSeconds) * time.Second))
}

// OptionResult is an option with its derived vote count.
type OptionResult struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label"`
	IsCorrect bool      `json:"isCorrect"`
	Votes     int       `json:"votes"`
}

// PollSnapshot is the tallied poll state fanned out to connections and
// returned by the read endpoints.
type PollSnapshot struct {
	ID                   uuid.UUID      `json:"id"`
	Question             string         `json:"question"`
	Options              []OptionResult `json:"options"`
	DurationSeconds      int            `json:"durationSeconds"`
	AskedAt              time.Time      `json:"askedAt"`
	Status               PollStatus     `json:"status"`
	ExpectedParticipants int            `json:"expectedParticipants,omitempty"`
}
