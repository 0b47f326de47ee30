// Package wager implements the escrow and settlement engine: event
// lifecycle, stake bookkeeping, pari-mutuel payout computation, and the
// withdrawable balance ledger, plus the HTTP handlers exposing them.
//
// All monetary values use shopspring/decimal — never float64 for money.
package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/clock"
	"github.com/bethouse/wager-engine/internal/metrics"
	"github.com/bethouse/wager-engine/internal/model"
	"github.com/bethouse/wager-engine/internal/policy"
	"github.com/bethouse/wager-engine/internal/store"
)

// payoutScale is the ledger precision for settlement credits. A winner's
// share a*T/W is truncated toward zero at this scale; the truncation
// remainder stays unallocated in the pool.
const payoutScale = 8

// Engine orchestrates event lifecycle, staking, settlement, and the
// balance ledger. Stake and close on the same event are serialized by a
// per-event mutex; operations on different events run in parallel.
// Per-participant atomicity of deposit/withdraw lives in the store.
type Engine struct {
	store  store.Store
	clock  clock.Clock
	policy policy.Policy
	hub    *Hub // optional hub for real-time broadcasts

	// grace is the tolerance past the deadline during which stakes are
	// still accepted. Defaults to zero (hard cutoff at the deadline).
	grace time.Duration

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	// createMu serializes creations so sequential id assignment never
	// races in a single-instance deployment.
	createMu sync.Mutex
}

// NewEngine creates an engine over the given store, clock, and policy.
// Pass nil for hub if broadcasting is not needed.
func NewEngine(st store.Store, clk clock.Clock, pol policy.Policy, hub *Hub) *Engine {
	return &Engine{
		store:  st,
		clock:  clk,
		policy: pol,
		hub:    hub,
		locks:  make(map[int64]*sync.Mutex),
	}
}

// SetStakeGrace configures the deadline tolerance for placeStake.
func (e *Engine) SetStakeGrace(d time.Duration) {
	if d > 0 {
		e.grace = d
	}
}

// eventLock returns the mutex serializing stake/close on one event.
func (e *Engine) eventLock(id int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// CreateEvent registers a new event and returns its id. Options must be
// at least two distinct labels and the deadline strictly in the future.
func (e *Engine) CreateEvent(ctx context.Context, creator, description string, options []string, deadline time.Time) (int64, error) {
	if !e.policy.CanCreateEvent(creator) {
		return 0, fmt.Errorf("%w: %s may not create events", ErrUnauthorized, creator)
	}
	if len(options) < 2 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidOptions, len(options))
	}
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		if seen[opt] {
			return 0, fmt.Errorf("%w: duplicate option %q", ErrInvalidOptions, opt)
		}
		seen[opt] = true
	}

	now := e.clock.Now()
	if !deadline.After(now) {
		return 0, fmt.Errorf("%w: %s is not after %s", ErrInvalidDeadline,
			deadline.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	ev := &model.Event{
		Creator:     creator,
		Description: description,
		Options:     options,
		Deadline:    deadline.UTC(),
		CreatedAt:   now,
	}
	e.createMu.Lock()
	id, err := e.store.InsertEvent(ctx, ev)
	e.createMu.Unlock()
	if err != nil {
		return 0, err
	}

	metrics.EventsCreated.Inc()
	slog.Info("event created",
		"id", id,
		"creator", creator,
		"options", len(options),
		"deadline", deadline.UTC().Format(time.RFC3339),
	)

	if e.hub != nil {
		e.hub.Broadcast(Message{
			Type:        "event_created",
			EventID:     id,
			Description: description,
			Deadline:    deadline.UTC().Format(time.RFC3339),
		})
	}
	return id, nil
}

// PlaceStake escrows amount on one option of an open event. The stake
// record and the pool update commit as one atomic step.
func (e *Engine) PlaceStake(ctx context.Context, eventID int64, bettor string, option int, amount decimal.Decimal) (*model.Stake, error) {
	lock := e.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	// Single clock read per validation episode.
	now := e.clock.Now()

	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, eventID)
	}
	if ev.State != model.StateOpen {
		return nil, fmt.Errorf("%w: %d", ErrEventClosed, eventID)
	}
	if now.After(ev.Deadline.Add(e.grace)) {
		return nil, fmt.Errorf("%w: event %d closed at %s", ErrDeadlinePassed,
			eventID, ev.Deadline.Format(time.RFC3339))
	}
	if option < 0 || option >= len(ev.Options) {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidOption, option, len(ev.Options))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: %s", ErrZeroAmount, amount)
	}

	st := &model.Stake{
		ID:       uuid.New().String(),
		EventID:  eventID,
		Bettor:   bettor,
		Option:   option,
		Amount:   amount,
		PlacedAt: now,
	}
	if err := e.store.InsertStake(ctx, st); err != nil {
		return nil, err
	}

	metrics.StakesPlaced.Inc()
	metrics.StakeVolume.Add(amount.InexactFloat64())
	slog.Info("stake placed",
		"stake_id", st.ID,
		"event_id", eventID,
		"bettor", bettor,
		"option", ev.Options[option],
		"amount", amount.String(),
	)

	if e.hub != nil {
		e.hub.Broadcast(Message{
			Type:    "stake_placed",
			EventID: eventID,
			Bettor:  bettor,
			Option:  option,
			Amount:  amount.String(),
		})
	}
	return st, nil
}

// CloseEvent declares the winning option after the deadline and settles
// the event: each winning stake of amount a is credited a*T/W, where T
// is the total pool and W the winning option's pool. Losing stakes are
// forfeited into the multiplier. If nobody backed the winning option,
// every stake is refunded to its bettor instead. The state flip and all
// credits commit atomically.
func (e *Engine) CloseEvent(ctx context.Context, eventID int64, caller string, winningOption int) error {
	lock := e.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()

	ev, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return notFoundOr(err, eventID)
	}
	// Deadline gates settlement for everyone, authorized or not.
	if !now.After(ev.Deadline) {
		return fmt.Errorf("%w: event %d open until %s", ErrDeadlineNotReached,
			eventID, ev.Deadline.Format(time.RFC3339))
	}
	if !e.policy.CanCloseEvent(caller, ev) {
		return fmt.Errorf("%w: %s may not close event %d", ErrUnauthorized, caller, eventID)
	}
	if ev.State == model.StateClosed {
		return fmt.Errorf("%w: %d", ErrAlreadyClosed, eventID)
	}
	if winningOption < 0 || winningOption >= len(ev.Options) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidOption, winningOption, len(ev.Options))
	}

	stakes, err := e.store.StakesByEvent(ctx, eventID)
	if err != nil {
		return err
	}
	credits, refunded := computePayouts(stakes, winningOption)

	if err := e.store.SettleEvent(ctx, eventID, winningOption, credits); err != nil {
		return err
	}

	paid := decimal.Zero
	for _, amount := range credits {
		paid = paid.Add(amount)
	}
	metrics.EventsSettled.Inc()
	metrics.PayoutVolume.Add(paid.InexactFloat64())
	slog.Info("event settled",
		"event_id", eventID,
		"caller", caller,
		"winning_option", ev.Options[winningOption],
		"pool", ev.TotalPool.String(),
		"paid", paid.String(),
		"winners", len(credits),
		"refunded", refunded,
	)

	if e.hub != nil {
		e.hub.Broadcast(Message{
			Type:          "event_settled",
			EventID:       eventID,
			WinningOption: winningOption,
			Amount:        paid.String(),
		})
	}
	return nil
}

// computePayouts builds the ledger credits for settlement. With a
// non-empty winning pool each winning stake earns a*T/W truncated at
// payoutScale; with an empty winning pool all stakes are refunded.
func computePayouts(stakes []model.Stake, winningOption int) (map[string]decimal.Decimal, bool) {
	total := decimal.Zero
	winPool := decimal.Zero
	for _, st := range stakes {
		total = total.Add(st.Amount)
		if st.Option == winningOption {
			winPool = winPool.Add(st.Amount)
		}
	}

	credits := make(map[string]decimal.Decimal)
	add := func(participant string, amount decimal.Decimal) {
		if cur, ok := credits[participant]; ok {
			credits[participant] = cur.Add(amount)
		} else {
			credits[participant] = amount
		}
	}

	if winPool.IsZero() {
		// Nobody backed the winner: refund everyone in full.
		for _, st := range stakes {
			add(st.Bettor, st.Amount)
		}
		return credits, true
	}

	for _, st := range stakes {
		if st.Option != winningOption {
			continue
		}
		share, _ := st.Amount.Mul(total).QuoRem(winPool, payoutScale)
		add(st.Bettor, share)
	}
	return credits, false
}

// Deposit credits amount to the participant's withdrawable balance.
func (e *Engine) Deposit(ctx context.Context, participant string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: %s", ErrZeroAmount, amount)
	}
	if err := e.store.Credit(ctx, participant, amount); err != nil {
		return err
	}
	slog.Info("deposit", "participant", participant, "amount", amount.String())
	return nil
}

// Withdraw transfers the participant's entire balance out and returns
// the amount. The balance is zeroed before the amount is released, so a
// concurrent withdraw observes an empty balance.
func (e *Engine) Withdraw(ctx context.Context, participant string) (decimal.Decimal, error) {
	amount, err := e.store.WithdrawAll(ctx, participant)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrZeroBalance, participant)
	}
	slog.Info("withdrawal", "participant", participant, "amount", amount.String())
	return amount, nil
}

// GetEvent returns an event snapshot including pools.
func (e *Engine) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, id)
	}
	return ev, nil
}

// ListEvents returns all events in creation order.
func (e *Engine) ListEvents(ctx context.Context) ([]model.Event, error) {
	return e.store.ListEvents(ctx)
}

// CountEvents returns how many events were ever created. Ids are dense,
// so events can be enumerated as 0..count-1.
func (e *Engine) CountEvents(ctx context.Context) (int64, error) {
	return e.store.CountEvents(ctx)
}

// StakesByEvent returns the append-only stake audit trail of an event.
func (e *Engine) StakesByEvent(ctx context.Context, eventID int64) ([]model.Stake, error) {
	stakes, err := e.store.StakesByEvent(ctx, eventID)
	if err != nil {
		return nil, notFoundOr(err, eventID)
	}
	return stakes, nil
}

// notFoundOr maps a store lookup miss onto ErrNotFound and passes any
// other storage failure through unchanged.
func notFoundOr(err error, id int64) error {
	if errors.Is(err, store.ErrEventNotFound) {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return err
}

// BalanceOf returns the participant's ledger balance, zero if unknown.
func (e *Engine) BalanceOf(ctx context.Context, participant string) (decimal.Decimal, error) {
	return e.store.Balance(ctx, participant)
}
