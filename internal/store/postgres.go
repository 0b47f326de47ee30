package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InsertEvent assigns the next dense id inside the insert itself, so two
// concurrent creations cannot allocate the same id.
func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.Event) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, creator, description, options, deadline, state, winning_option, created_at)
		 SELECT COALESCE(MAX(id) + 1, 0), $1, $2, $3, $4, $5, $6, $7 FROM events
		 RETURNING id`,
		ev.Creator, ev.Description, ev.Options, ev.Deadline,
		model.StateOpen, model.NoWinner, ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var ev model.Event
	err := s.pool.QueryRow(ctx,
		`SELECT id, creator, description, options, deadline, state, winning_option, created_at
		 FROM events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Creator, &ev.Description, &ev.Options,
			&ev.Deadline, &ev.State, &ev.WinningOption, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", id, err)
	}

	if err := s.loadPools(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, creator, description, options, deadline, state, winning_option, created_at
		 FROM events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Creator, &ev.Description, &ev.Options,
			&ev.Deadline, &ev.State, &ev.WinningOption, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range events {
		if err := s.loadPools(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *PostgresStore) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (s *PostgresStore) InsertStake(ctx context.Context, st *model.Stake) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO stakes (id, event_id, bettor, option, amount, placed_at)
		 SELECT $1, $2, $3, $4, $5::NUMERIC, $6
		 WHERE EXISTS (SELECT 1 FROM events WHERE id = $2)`,
		st.ID, st.EventID, st.Bettor, st.Option, st.Amount.String(), st.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stake: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrEventNotFound, st.EventID)
	}
	return nil
}

func (s *PostgresStore) StakesByEvent(ctx context.Context, eventID int64) ([]model.Stake, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, bettor, option, amount::TEXT, placed_at
		 FROM stakes WHERE event_id = $1 ORDER BY placed_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stakes []model.Stake
	for rows.Next() {
		var st model.Stake
		var amountS string
		if err := rows.Scan(&st.ID, &st.EventID, &st.Bettor, &st.Option, &amountS, &st.PlacedAt); err != nil {
			return nil, err
		}
		st.Amount, _ = decimal.NewFromString(amountS)
		stakes = append(stakes, st)
	}
	return stakes, rows.Err()
}

// SettleEvent runs the close and every credit in one transaction.
func (s *PostgresStore) SettleEvent(ctx context.Context, eventID int64, winningOption int, credits map[string]decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE events SET state = $2, winning_option = $3
		 WHERE id = $1 AND state = $4`,
		eventID, model.StateClosed, winningOption, model.StateOpen,
	)
	if err != nil {
		return fmt.Errorf("settle event %d: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("settle event %d: not open", eventID)
	}

	// Deterministic order keeps concurrent settlements deadlock-free.
	participants := make([]string, 0, len(credits))
	for p := range credits {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	for _, p := range participants {
		if err := upsertBalance(ctx, tx, p, credits[p]); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Credit(ctx context.Context, participant string, amount decimal.Decimal) error {
	return upsertBalance(ctx, s.pool, participant, amount)
}

// WithdrawAll locks the balance row, zeroes it, and returns the amount
// held, all inside one transaction.
func (s *PostgresStore) WithdrawAll(ctx context.Context, participant string) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	var amountS string
	err = tx.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE participant = $1 FOR UPDATE`,
		participant).Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("withdraw %s: %w", participant, err)
	}

	amount, _ := decimal.NewFromString(amountS)
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE balances SET amount = 0, updated_at = NOW() WHERE participant = $1`,
		participant); err != nil {
		return decimal.Zero, fmt.Errorf("withdraw %s: %w", participant, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func (s *PostgresStore) Balance(ctx context.Context, participant string) (decimal.Decimal, error) {
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE participant = $1`, participant).Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	amount, _ := decimal.NewFromString(amountS)
	return amount, nil
}

// loadPools fills OptionPools and TotalPool from the stakes table.
func (s *PostgresStore) loadPools(ctx context.Context, ev *model.Event) error {
	ev.OptionPools = make([]decimal.Decimal, len(ev.Options))
	for i := range ev.OptionPools {
		ev.OptionPools[i] = decimal.Zero
	}
	ev.TotalPool = decimal.Zero

	rows, err := s.pool.Query(ctx,
		`SELECT option, COALESCE(SUM(amount), 0)::TEXT
		 FROM stakes WHERE event_id = $1 GROUP BY option`, ev.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var option int
		var poolS string
		if err := rows.Scan(&option, &poolS); err != nil {
			return err
		}
		pool, _ := decimal.NewFromString(poolS)
		if option >= 0 && option < len(ev.OptionPools) {
			ev.OptionPools[option] = pool
		}
		ev.TotalPool = ev.TotalPool.Add(pool)
	}
	return rows.Err()
}

// execer covers both *pgxpool.Pool and pgx.Tx for balance upserts.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertBalance(ctx context.Context, db execer, participant string, amount decimal.Decimal) error {
	_, err := db.Exec(ctx,
		`INSERT INTO balances (participant, amount, updated_at)
		 VALUES ($1, $2::NUMERIC, NOW())
		 ON CONFLICT (participant)
		 DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`,
		participant, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("credit %s: %w", participant, err)
	}
	return nil
}
