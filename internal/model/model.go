// Package model defines the core domain types shared across the wager engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event lifecycle states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// NoWinner marks an event whose winning option has not been declared.
const NoWinner = -1

// Event is a prediction market instance: mutually exclusive outcome
// options, a staking deadline, and a one-way open → closed lifecycle.
// IDs are dense and sequential, starting at 0.
type Event struct {
	ID            int64             `json:"id" db:"id"`
	Creator       string            `json:"creator" db:"creator"`
	Description   string            `json:"description" db:"description"`
	Options       []string          `json:"options" db:"options"`
	Deadline      time.Time         `json:"deadline" db:"deadline"`
	State         string            `json:"state" db:"state"`                   // "open" or "closed"
	WinningOption int               `json:"winning_option" db:"winning_option"` // NoWinner while open
	OptionPools   []decimal.Decimal `json:"option_pools"`
	TotalPool     decimal.Decimal   `json:"total_pool"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// Stake is an immutable record of funds escrowed on one option of an
// event. Stakes are never modified or deleted; after settlement they
// remain as an audit trail.
type Stake struct {
	ID       string          `json:"id" db:"id"`
	EventID  int64           `json:"event_id" db:"event_id"`
	Bettor   string          `json:"bettor" db:"bettor"`
	Option   int             `json:"option" db:"option"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	PlacedAt time.Time       `json:"placed_at" db:"placed_at"`
}

// BalanceEntry is a participant's withdrawable ledger balance. It grows
// on deposit and settlement credit and is zeroed in full on withdraw —
// never negative, never partially withdrawn.
type BalanceEntry struct {
	Participant string          `json:"participant" db:"participant"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}
