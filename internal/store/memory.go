package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
)

// MemoryStore implements Store with in-memory tables. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	events   []*model.Event          // index == event id (dense, from 0)
	stakes   map[int64][]model.Stake // event id → append-only stakes
	balances map[string]decimal.Decimal
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stakes:   make(map[int64][]model.Stake),
		balances: make(map[string]decimal.Decimal),
	}
}

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := int64(len(s.events))
	stored := copyEvent(ev)
	stored.ID = id
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.State = model.StateOpen
	stored.WinningOption = model.NoWinner
	stored.OptionPools = make([]decimal.Decimal, len(ev.Options))
	for i := range stored.OptionPools {
		stored.OptionPools[i] = decimal.Zero
	}
	stored.TotalPool = decimal.Zero

	s.events = append(s.events, stored)
	return id, nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id int64) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, err := s.eventLocked(id)
	if err != nil {
		return nil, err
	}
	return copyEvent(ev), nil
}

func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		events = append(events, *copyEvent(ev))
	}
	return events, nil
}

func (s *MemoryStore) CountEvents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *MemoryStore) InsertStake(_ context.Context, st *model.Stake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.eventLocked(st.EventID)
	if err != nil {
		return err
	}
	if st.Option < 0 || st.Option >= len(ev.Options) {
		return fmt.Errorf("store: option %d out of range for event %d", st.Option, st.EventID)
	}

	s.stakes[st.EventID] = append(s.stakes[st.EventID], *st)
	ev.OptionPools[st.Option] = ev.OptionPools[st.Option].Add(st.Amount)
	ev.TotalPool = ev.TotalPool.Add(st.Amount)
	return nil
}

func (s *MemoryStore) StakesByEvent(_ context.Context, eventID int64) ([]model.Stake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.eventLocked(eventID); err != nil {
		return nil, err
	}
	stakes := make([]model.Stake, len(s.stakes[eventID]))
	copy(stakes, s.stakes[eventID])
	return stakes, nil
}

// SettleEvent flips the event to closed and applies all credits under a
// single lock acquisition, so no reader sees a partial settlement.
func (s *MemoryStore) SettleEvent(_ context.Context, eventID int64, winningOption int, credits map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.eventLocked(eventID)
	if err != nil {
		return err
	}
	if ev.State == model.StateClosed {
		return fmt.Errorf("store: event %d already settled", eventID)
	}

	ev.State = model.StateClosed
	ev.WinningOption = winningOption
	for participant, amount := range credits {
		s.balances[participant] = s.balance(participant).Add(amount)
	}
	return nil
}

func (s *MemoryStore) Credit(_ context.Context, participant string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[participant] = s.balance(participant).Add(amount)
	return nil
}

func (s *MemoryStore) WithdrawAll(_ context.Context, participant string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	amount := s.balance(participant)
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	// Zero before returning: a concurrent withdraw sees an empty balance.
	s.balances[participant] = decimal.Zero
	return amount, nil
}

func (s *MemoryStore) Balance(_ context.Context, participant string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance(participant), nil
}

// --- helpers (callers hold s.mu) ---

func (s *MemoryStore) eventLocked(id int64) (*model.Event, error) {
	if id < 0 || id >= int64(len(s.events)) {
		return nil, fmt.Errorf("%w: %d", ErrEventNotFound, id)
	}
	return s.events[id], nil
}

func (s *MemoryStore) balance(participant string) decimal.Decimal {
	if b, ok := s.balances[participant]; ok {
		return b
	}
	return decimal.Zero
}

// copyEvent returns a deep copy so callers cannot mutate stored state.
func copyEvent(ev *model.Event) *model.Event {
	out := *ev
	out.Options = append([]string(nil), ev.Options...)
	out.OptionPools = append([]decimal.Decimal(nil), ev.OptionPools...)
	return &out
}
