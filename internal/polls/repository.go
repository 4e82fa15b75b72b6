package polls

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository is the durable record of polls, options and votes. Vote counts
// are always derived by aggregation over the vote log at read time, never
// cached on the option.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePoll closes any currently active poll and inserts p with its options
// in a single transaction, so two racing creates can never leave two polls
// active. p.ID, p.AskedAt and option IDs are filled in on return.
func (r *Repository) CreatePoll(ctx context.Context, p *models.Poll) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE polls SET status = 'closed' WHERE status = 'active'`); err != nil {
		return fmt.Errorf("close active polls: %w", err)
	}

	const insertPoll = `INSERT INTO polls (id, question, duration_seconds, expected_participants, asked_at, status)
		VALUES (gen_random_uuid(), $1, $2, $3, NOW(), 'active')
		RETURNING id, asked_at`
	if err := tx.QueryRow(ctx, insertPoll, p.Question, p.DurationSeconds, nullableInt(p.ExpectedParticipants)).
		Scan(&p.ID, &p.AskedAt); err != nil {
		return fmt.Errorf("insert poll: %w", err)
	}
	p.Status = models.PollActive

	const insertOption = `INSERT INTO poll_options (id, poll_id, label, is_correct, position)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id`
	for i := range p.Options {
		opt := &p.Options[i]
		if err := tx.QueryRow(ctx, insertOption, p.ID, opt.Label, opt.IsCorrect, i).Scan(&opt.ID); err != nil {
			return fmt.Errorf("insert option: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// CloseActivePoll transitions the active poll (if any) to closed and returns
// it. Returns (nil, nil) when no poll is active.
func (r *Repository) CloseActivePoll(ctx context.Context) (*models.Poll, error) {
	const query = `UPDATE polls SET status = 'closed' WHERE status = 'active'
		RETURNING id, question, duration_seconds, COALESCE(expected_participants, 0), asked_at, status`
	p, err := scanPoll(r.pool.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close active poll: %w", err)
	}
	if err := r.loadOptions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ActivePoll returns the active poll with its options, or (nil, nil).
func (r *Repository) ActivePoll(ctx context.Context) (*models.Poll, error) {
	const query = `SELECT id, question, duration_seconds, COALESCE(expected_participants, 0), asked_at, status
		FROM polls WHERE status = 'active' ORDER BY asked_at DESC LIMIT 1`
	p, err := scanPoll(r.pool.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active poll: %w", err)
	}
	if err := r.loadOptions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPoll returns a poll by id with its options, or (nil, nil) when absent.
func (r *Repository) GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	const query = `SELECT id, question, duration_seconds, COALESCE(expected_participants, 0), asked_at, status
		FROM polls WHERE id = $1`
	p, err := scanPoll(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select poll: %w", err)
	}
	if err := r.loadOptions(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// InsertVote records a vote. A second vote by the same participant on the
// same poll hits the (poll_id, participant_id) uniqueness constraint and is
// dropped without error: ON CONFLICT DO NOTHING closes the race between
// concurrent duplicate submissions without a prior read.
func (r *Repository) InsertVote(ctx context.Context, v *models.Vote) error {
	const query = `INSERT INTO votes (id, poll_id, option_id, participant_id, participant_name)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (poll_id, participant_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, query, v.PollID, v.OptionID, v.ParticipantID, v.ParticipantName); err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

// CountVotes aggregates the vote log for one poll into per-option counts.
func (r *Repository) CountVotes(ctx context.Context, pollID uuid.UUID) (map[uuid.UUID]int, error) {
	const query = `SELECT option_id, COUNT(*) FROM votes WHERE poll_id = $1 GROUP BY option_id`
	rows, err := r.pool.Query(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var optionID uuid.UUID
		var n int
		if err := rows.Scan(&optionID, &n); err != nil {
			return nil, fmt.Errorf("scan vote count: %w", err)
		}
		counts[optionID] = n
	}
	return counts, rows.Err()
}

// ListClosed returns closed polls most-recent-first with their options,
// capped at limit when limit > 0.
func (r *Repository) ListClosed(ctx context.Context, limit int) ([]*models.Poll, error) {
	query := `SELECT id, question, duration_seconds, COALESCE(expected_participants, 0), asked_at, status
		FROM polls WHERE status = 'closed' ORDER BY asked_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list closed polls: %w", err)
	}
	defer rows.Close()

	var polls []*models.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll: %w", err)
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range polls {
		if err := r.loadOptions(ctx, p); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

func (r *Repository) loadOptions(ctx context.Context, p *models.Poll) error {
	const query = `SELECT id, label, is_correct FROM poll_options WHERE poll_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, query, p.ID)
	if err != nil {
		return fmt.Errorf("select options: %w", err)
	}
	defer rows.Close()

	p.Options = p.Options[:0]
	for rows.Next() {
		var opt models.Option
		if err := rows.Scan(&opt.ID, &opt.Label, &opt.IsCorrect); err != nil {
			return fmt.Errorf("scan option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}
	return rows.Err()
}

func scanPoll(row pgx.Row) (*models.Poll, error) {
	var p models.Poll
	if err := row.Scan(&p.ID, &p.Question, &p.DurationSeconds, &p.ExpectedParticipants, &p.AskedAt, &p.Status); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullableInt(n int) any {
	if n <= 0 {
		return nil
	}
	return n
}
