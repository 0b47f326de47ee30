// Package store defines the persistence interface for the wager engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
)

// ErrEventNotFound is returned when an event id is unknown.
var ErrEventNotFound = errors.New("store: event not found")

// Store is the persistence interface. Events form a dense append-only
// table keyed by sequential id; stakes are append-only per event;
// balances are a sparse table keyed by participant. Nothing is ever
// deleted.
type Store interface {
	// --- Events ---

	// InsertEvent persists a new event, assigns the next sequential id
	// (dense, starting at 0), and returns it.
	InsertEvent(ctx context.Context, ev *model.Event) (int64, error)

	// GetEvent retrieves an event snapshot, including option pools and
	// the total pool.
	GetEvent(ctx context.Context, id int64) (*model.Event, error)

	// ListEvents returns all events in creation order.
	ListEvents(ctx context.Context) ([]model.Event, error)

	// CountEvents returns the number of events ever created.
	CountEvents(ctx context.Context) (int64, error)

	// --- Stakes (append-only) ---

	// InsertStake appends a stake record and bumps the event's option
	// and total pools. Recording and escrow are one atomic step.
	InsertStake(ctx context.Context, st *model.Stake) error

	// StakesByEvent returns all stakes on an event in placement order.
	StakesByEvent(ctx context.Context, eventID int64) ([]model.Stake, error)

	// --- Settlement ---

	// SettleEvent atomically marks the event closed with the winning
	// option and applies every ledger credit. A concurrent reader must
	// never observe partially credited balances.
	SettleEvent(ctx context.Context, eventID int64, winningOption int, credits map[string]decimal.Decimal) error

	// --- Balances ---

	// Credit adds amount to the participant's withdrawable balance,
	// creating the entry if needed.
	Credit(ctx context.Context, participant string, amount decimal.Decimal) error

	// WithdrawAll zeroes the participant's balance and returns the
	// amount that was held. The zeroing is atomic: of two concurrent
	// calls, at most one observes a non-zero amount. Returns zero when
	// the balance is empty.
	WithdrawAll(ctx context.Context, participant string) (decimal.Decimal, error)

	// Balance returns the participant's current balance, zero if unknown.
	Balance(ctx context.Context, participant string) (decimal.Decimal, error)
}
