package polls

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/classpulse/backend/internal/apperr"
	"github.com/classpulse/backend/internal/models"
)

// memoryStore is an in-memory Store with the same insert-if-absent vote
// semantics as the Postgres repository.
type memoryStore struct {
	mu    sync.Mutex
	polls []*models.Poll
	votes map[string]*models.Vote // pollID/participantID -> vote
}

func newMemoryStore() *memoryStore {
	return &memoryStore{votes: make(map[string]*models.Vote)}
}

func (s *memoryStore) CreatePoll(ctx context.Context, p *models.Poll) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.polls {
		if existing.Status == models.PollActive {
			existing.Status = models.PollClosed
		}
	}
	p.ID = uuid.New()
	p.AskedAt = time.Now()
	p.Status = models.PollActive
	for i := range p.Options {
		p.Options[i].ID = uuid.New()
	}
	clone := clonePoll(p)
	s.polls = append(s.polls, clone)
	return nil
}

func (s *memoryStore) CloseActivePoll(ctx context.Context) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.polls {
		if p.Status == models.PollActive {
			p.Status = models.PollClosed
			return clonePoll(p), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ActivePoll(ctx context.Context) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.polls {
		if p.Status == models.PollActive {
			return clonePoll(p), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.polls {
		if p.ID == id {
			return clonePoll(p), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertVote(ctx context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := v.PollID.String() + "/" + v.ParticipantID
	if _, exists := s.votes[key]; exists {
		return nil
	}
	vote := *v
	vote.ID = uuid.New()
	vote.CreatedAt = time.Now()
	s.votes[key] = &vote
	return nil
}

func (s *memoryStore) CountVotes(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, v := range s.votes {
		if v.PollID == pollID {
			counts[v.OptionID]++
		}
	}
	return counts, nil
}

func (s *memoryStore) ListClosed(ctx context.Context, limit int) ([]*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Poll
	for i := len(s.polls) - 1; i >= 0; i-- {
		if s.polls[i].Status != models.PollClosed {
			continue
		}
		out = append(out, clonePoll(s.polls[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func clonePoll(p *models.Poll) *models.Poll {
	clone := *p
	clone.Options = make([]models.Option, len(p.Options))
	copy(clone.Options, p.Options)
	return &clone
}

func newTestManager(t *testing.T) (*Manager, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	return NewManager(store, time.Second, zaptest.NewLogger(t)), store
}

func marsVenusInput() CreateInput {
	return CreateInput{
		Question: "Which planet is closer to the sun?",
		Options: []CreateOptionInput{
			{Label: "Mars", IsCorrect: true},
			{Label: "Venus"},
		},
		DurationSeconds: 30,
	}
}

func TestCreateValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{
			name: "too few options",
			input: CreateInput{
				Question:        "q",
				Options:         []CreateOptionInput{{Label: "only one"}},
				DurationSeconds: 30,
			},
		},
		{
			name: "empty question",
			input: CreateInput{
				Options:         []CreateOptionInput{{Label: "a"}, {Label: "b"}},
				DurationSeconds: 30,
			},
		},
		{
			name: "blank option label",
			input: CreateInput{
				Question:        "q",
				Options:         []CreateOptionInput{{Label: "a"}, {Label: "   "}},
				DurationSeconds: 30,
			},
		},
		{
			name: "duration too short",
			input: CreateInput{
				Question:        "q",
				Options:         []CreateOptionInput{{Label: "a"}, {Label: "b"}},
				DurationSeconds: 0,
			},
		},
		{
			name: "duration too long",
			input: CreateInput{
				Question:        "q",
				Options:         []CreateOptionInput{{Label: "a"}, {Label: "b"}},
				DurationSeconds: 601,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.input)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeValidation, apperr.FromError(err).Code)
		})
	}
}

func TestCreateClosesPriorActive(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)
	assert.Equal(t, models.PollActive, first.Status)

	second, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	prior, err := store.GetPoll(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PollClosed, prior.Status)

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestConcurrentCreateSingleActive(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(ctx, marsVenusInput())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	active := 0
	for _, p := range store.polls {
		if p.Status == models.PollActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestEndIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)

	snap, err := m.End(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.PollClosed, snap.Status)

	snap, err = m.End(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestVoteTallyAndDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)
	mars, venus := snap.Options[0], snap.Options[1]

	_, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: mars.ID, ParticipantID: "alice"})
	require.NoError(t, err)
	tally, err := m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: venus.ID, ParticipantID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)

	// A duplicate submission by alice is a silent no-op returning the
	// unchanged tally, no matter which option she retries with.
	tally, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: mars.ID, ParticipantID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)

	tally, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: venus.ID, ParticipantID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Options[0].Votes)
	assert.Equal(t, 1, tally.Options[1].Votes)
}

func TestConcurrentDuplicateVotes(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)
	mars := snap.Options[0]

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: mars.ID, ParticipantID: "alice"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.votes, 1)
	tally, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Options[0].Votes)
}

func TestVoteExpiredPoll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)

	// Advance the manager clock past askedAt + duration; the poll still
	// reads as active but voting must be rejected.
	m.now = func() time.Time { return snap.AskedAt.Add(31 * time.Second) }

	_, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: snap.Options[0].ID, ParticipantID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePollClosed, apperr.FromError(err).Code)

	active, err := m.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.PollActive, active.Status)
}

func TestVoteExactlyAtExpiryBoundary(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)

	m.now = func() time.Time { return snap.AskedAt.Add(30 * time.Second) }

	_, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: snap.Options[0].ID, ParticipantID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePollClosed, apperr.FromError(err).Code)
}

func TestVoteSupersededPoll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)
	_, err = m.Create(ctx, marsVenusInput())
	require.NoError(t, err)

	_, err = m.Vote(ctx, VoteInput{PollID: first.ID, OptionID: first.Options[0].ID, ParticipantID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePollClosed, apperr.FromError(err).Code)
}

func TestVoteUnknownOption(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	snap, err := m.Create(ctx, marsVenusInput())
	require.NoError(t, err)

	_, err = m.Vote(ctx, VoteInput{PollID: snap.ID, OptionID: uuid.New(), ParticipantID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidRef, apperr.FromError(err).Code)
}

func TestVoteNoActivePoll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Vote(ctx, VoteInput{PollID: uuid.New(), OptionID: uuid.New(), ParticipantID: "alice"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePollClosed, apperr.FromError(err).Code)
}

func TestHistoryOrderAndLimit(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		snap, err := m.Create(ctx, marsVenusInput())
		require.NoError(t, err)
		ids = append(ids, snap.ID)
	}
	_, err := m.End(ctx)
	require.NoError(t, err)

	history, err := m.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// Most recent first.
	assert.Equal(t, ids[2], history[0].ID)
	assert.Equal(t, ids[0], history[2].ID)
	for _, snap := range history {
		assert.Equal(t, models.PollClosed, snap.Status)
	}

	capped, err := m.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

// slowStore simulates a durable store exceeding the bounded wait.
type slowStore struct {
	*memoryStore
}

func (s *slowStore) ActivePoll(ctx context.Context) (*models.Poll, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageTimeout(t *testing.T) {
	store := &slowStore{memoryStore: newMemoryStore()}
	m := NewManager(store, 20*time.Millisecond, zaptest.NewLogger(t))

	_, err := m.Active(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.CodeStorageTimeout, apperr.FromError(err).Code)
}
