package polls

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/apperr"
	"github.com/classpulse/backend/internal/models"
)

const (
	// MinOptions is the smallest allowed option set.
	MinOptions = 2
	// MinDurationSeconds and MaxDurationSeconds bound the poll timer.
	MinDurationSeconds = 1
	MaxDurationSeconds = 600
)

// Store is the durable tally store consumed by the Manager. *Repository is
// the production implementation; tests substitute an in-memory fake.
type Store interface {
	CreatePoll(ctx context.Context, p *models.Poll) error
	CloseActivePoll(ctx context.Context) (*models.Poll, error)
	ActivePoll(ctx context.Context) (*models.Poll, error)
	GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	InsertVote(ctx context.Context, v *models.Vote) error
	CountVotes(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int, error)
	ListClosed(ctx context.Context, limit int) ([]*models.Poll, error)
}

// CreateInput is the payload for creating a poll.
type CreateInput struct {
	Question             string              `json:"question"`
	Options              []CreateOptionInput `json:"options"`
	DurationSeconds      int                 `json:"durationSeconds"`
	ExpectedParticipants int                 `json:"expectedParticipants,omitempty"`
}

// CreateOptionInput is one option in a create payload.
type CreateOptionInput struct {
	Label     string `json:"label"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// VoteInput is the payload for submitting a vote.
type VoteInput struct {
	PollID          uuid.UUID `json:"pollId"`
	OptionID        uuid.UUID `json:"optionId"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName,omitempty"`
}

// Manager owns the single-active-poll invariant. Every mutating operation
// and every "is this poll still votable" decision goes through its mutex, so
// the active-poll transition point is never decided from stale state. Expiry
// is evaluated lazily against the wall clock; no background timer closes
// polls, only an explicit End or a superseding Create does.
type Manager struct {
	mu           sync.Mutex
	store        Store
	storeTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewManager creates a poll lifecycle manager. storeTimeout bounds every
// durable-store wait so callers get a storage_timeout error instead of
// hanging on a slow store.
func NewManager(store Store, storeTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Manager{
		store:        store,
		storeTimeout: storeTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// Create validates the input, atomically closes any active poll and persists
// a new active one, returning its snapshot with zero counts.
func (m *Manager) Create(ctx context.Context, input CreateInput) (*models.PollSnapshot, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	poll := &models.Poll{
		Question:             strings.TrimSpace(input.Question),
		DurationSeconds:      input.DurationSeconds,
		ExpectedParticipants: input.ExpectedParticipants,
		Options:              make([]models.Option, len(input.Options)),
	}
	for i, opt := range input.Options {
		poll.Options[i] = models.Option{Label: strings.TrimSpace(opt.Label), IsCorrect: opt.IsCorrect}
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	if err := m.store.CreatePoll(storeCtx, poll); err != nil {
		return nil, m.storeErr("create poll", err)
	}

	m.logger.Info("poll created",
		zap.String("poll_id", poll.ID.String()),
		zap.Int("options", len(poll.Options)),
		zap.Int("duration_seconds", poll.DurationSeconds),
	)

	snap := snapshotOf(poll, nil)
	return &snap, nil
}

// End closes the active poll and returns its final tallied snapshot.
// Returns (nil, nil) when no poll is active; calling twice in a row is a
// no-op the second time.
func (m *Manager) End(ctx context.Context) (*models.PollSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	poll, err := m.store.CloseActivePoll(storeCtx)
	if err != nil {
		return nil, m.storeErr("end poll", err)
	}
	if poll == nil {
		return nil, nil
	}

	m.logger.Info("poll closed", zap.String("poll_id", poll.ID.String()))
	return m.tallied(storeCtx, poll)
}

// Active returns the tallied snapshot of the active poll, or (nil, nil).
// A time-expired poll still reports as active here until explicitly closed.
func (m *Manager) Active(ctx context.Context) (*models.PollSnapshot, error) {
	storeCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	poll, err := m.store.ActivePoll(storeCtx)
	if err != nil {
		return nil, m.storeErr("get active poll", err)
	}
	if poll == nil {
		return nil, nil
	}
	return m.tallied(storeCtx, poll)
}

// Vote records a participant's vote and returns the fresh tally of the
// active poll. The votable check and the insert happen under the manager
// lock so the decision is never made from stale state. Duplicate
// submissions by the same participant return the unchanged tally without
// error.
func (m *Manager) Vote(ctx context.Context, input VoteInput) (*models.PollSnapshot, error) {
	if input.ParticipantID == "" {
		return nil, apperr.Validation("participantId is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()

	poll, err := m.store.ActivePoll(storeCtx)
	if err != nil {
		return nil, m.storeErr("resolve active poll", err)
	}
	if poll == nil || poll.ID != input.PollID {
		return nil, apperr.PollClosed("poll is not active")
	}
	if !poll.Votable(m.now()) {
		return nil, apperr.PollClosed("poll time has expired")
	}
	if !hasOption(poll, input.OptionID) {
		return nil, apperr.InvalidReference("option does not belong to poll")
	}

	vote := &models.Vote{
		PollID:          input.PollID,
		OptionID:        input.OptionID,
		ParticipantID:   input.ParticipantID,
		ParticipantName: input.ParticipantName,
	}
	if err := m.store.InsertVote(storeCtx, vote); err != nil {
		return nil, m.storeErr("record vote", err)
	}

	return m.tallied(storeCtx, poll)
}

// History returns closed polls most-recent-first with tallies, capped at
// limit when limit > 0.
func (m *Manager) History(ctx context.Context, limit int) ([]models.PollSnapshot, error) {
	storeCtx, cancel := context.WithTimeout(ctx, m.storeTimeout)
	defer cancel()
	polls, err := m.store.ListClosed(storeCtx, limit)
	if err != nil {
		return nil, m.storeErr("list closed polls", err)
	}

	snapshots := make([]models.PollSnapshot, 0, len(polls))
	for _, p := range polls {
		snap, err := m.tallied(storeCtx, p)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (m *Manager) tallied(ctx context.Context, poll *models.Poll) (*models.PollSnapshot, error) {
	counts, err := m.store.CountVotes(ctx, poll.ID)
	if err != nil {
		return nil, m.storeErr("tally votes", err)
	}
	snap := snapshotOf(poll, counts)
	return &snap, nil
}

func (m *Manager) storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Warn("store operation timed out", zap.String("op", op))
		return apperr.StorageTimeout(op+" timed out", err)
	}
	m.logger.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Internal(op+" failed", err)
}

func validateCreate(input CreateInput) error {
	if strings.TrimSpace(input.Question) == "" {
		return apperr.Validation("question is required")
	}
	if len(input.Options) < MinOptions {
		return apperr.Validation("at least two options are required")
	}
	for _, opt := range input.Options {
		if strings.TrimSpace(opt.Label) == "" {
			return apperr.Validation("option labels must not be empty")
		}
	}
	if input.DurationSeconds < MinDurationSeconds || input.DurationSeconds > MaxDurationSeconds {
		return apperr.Validation("durationSeconds must be between 1 and 600")
	}
	if input.ExpectedParticipants < 0 {
		return apperr.Validation("expectedParticipants must not be negative")
	}
	return nil
}

func hasOption(poll *models.Poll, optionID uuid.UUID) bool {
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// snapshotOf maps a poll and its aggregated counts into a snapshot,
// preserving the declared option order.
func snapshotOf(poll *models.Poll, counts map[uuid.UUID]int) models.PollSnapshot {
	options := make([]models.OptionResult, len(poll.Options))
	for i, opt := range poll.Options {
		options[i] = models.OptionResult{
			ID:        opt.ID,
			Label:     opt.Label,
			IsCorrect: opt.IsCorrect,
			Votes:     counts[opt.ID],
		}
	}
	return models.PollSnapshot{
		ID:                   poll.ID,
		Question:             poll.Question,
		Options:              options,
		DurationSeconds:      poll.DurationSeconds,
		AskedAt:              poll.AskedAt,
		Status:               poll.Status,
		ExpectedParticipants: poll.ExpectedParticipants,
	}
}
