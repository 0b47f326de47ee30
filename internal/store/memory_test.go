package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
	"github.com/bethouse/wager-engine/internal/store"
)

func testEvent() *model.Event {
	return &model.Event{
		Creator:     "alice",
		Description: "Coin flip",
		Options:     []string{"heads", "tails"},
		Deadline:    time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore_InsertEventAssignsDenseIDs(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for want := int64(0); want < 3; want++ {
		id, err := ms.InsertEvent(ctx, testEvent())
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}

	n, _ := ms.CountEvents(ctx)
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}
}

func TestMemoryStore_GetEventReturnsCopy(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	id, _ := ms.InsertEvent(ctx, testEvent())

	ev, _ := ms.GetEvent(ctx, id)
	ev.Options[0] = "mutated"
	ev.State = model.StateClosed

	fresh, _ := ms.GetEvent(ctx, id)
	if fresh.Options[0] != "heads" || fresh.State != model.StateOpen {
		t.Error("stored event was mutated through a returned snapshot")
	}
}

func TestMemoryStore_GetEventUnknown(t *testing.T) {
	ms := store.NewMemoryStore()

	_, err := ms.GetEvent(context.Background(), 7)
	if !errors.Is(err, store.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestMemoryStore_InsertStakeUpdatesPools(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	id, _ := ms.InsertEvent(ctx, testEvent())

	stakes := []model.Stake{
		{ID: "s1", EventID: id, Bettor: "a", Option: 0, Amount: decimal.NewFromInt(1)},
		{ID: "s2", EventID: id, Bettor: "b", Option: 1, Amount: decimal.NewFromInt(2)},
		{ID: "s3", EventID: id, Bettor: "a", Option: 1, Amount: decimal.NewFromInt(4)},
	}
	for i := range stakes {
		if err := ms.InsertStake(ctx, &stakes[i]); err != nil {
			t.Fatalf("insert stake: %v", err)
		}
	}

	ev, _ := ms.GetEvent(ctx, id)
	if !ev.OptionPools[0].Equal(decimal.NewFromInt(1)) {
		t.Errorf("pool 0: expected 1, got %s", ev.OptionPools[0])
	}
	if !ev.OptionPools[1].Equal(decimal.NewFromInt(6)) {
		t.Errorf("pool 1: expected 6, got %s", ev.OptionPools[1])
	}
	if !ev.TotalPool.Equal(decimal.NewFromInt(7)) {
		t.Errorf("total: expected 7, got %s", ev.TotalPool)
	}

	got, _ := ms.StakesByEvent(ctx, id)
	if len(got) != 3 {
		t.Errorf("expected 3 stakes, got %d", len(got))
	}
}

func TestMemoryStore_SettleEventAppliesCreditsAtomically(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	id, _ := ms.InsertEvent(ctx, testEvent())

	credits := map[string]decimal.Decimal{
		"a": decimal.NewFromInt(3),
		"b": decimal.RequireFromString("1.5"),
	}
	if err := ms.SettleEvent(ctx, id, 1, credits); err != nil {
		t.Fatalf("settle: %v", err)
	}

	ev, _ := ms.GetEvent(ctx, id)
	if ev.State != model.StateClosed || ev.WinningOption != 1 {
		t.Errorf("event not settled: %s/%d", ev.State, ev.WinningOption)
	}
	if bal, _ := ms.Balance(ctx, "a"); !bal.Equal(decimal.NewFromInt(3)) {
		t.Errorf("a: expected 3, got %s", bal)
	}
	if bal, _ := ms.Balance(ctx, "b"); !bal.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("b: expected 1.5, got %s", bal)
	}

	// Settling twice is a store-level error.
	if err := ms.SettleEvent(ctx, id, 0, nil); err == nil {
		t.Error("expected error settling an already settled event")
	}
}

func TestMemoryStore_WithdrawAllZeroesBeforeReturning(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	ms.Credit(ctx, "bob", decimal.NewFromInt(10))

	const attempts = 8
	amounts := make(chan decimal.Decimal, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount, err := ms.WithdrawAll(ctx, "bob")
			if err != nil {
				t.Errorf("withdraw: %v", err)
				return
			}
			amounts <- amount
		}()
	}
	wg.Wait()
	close(amounts)

	var nonZero int
	for amount := range amounts {
		if !amount.IsZero() {
			nonZero++
			if !amount.Equal(decimal.NewFromInt(10)) {
				t.Errorf("expected 10, got %s", amount)
			}
		}
	}
	if nonZero != 1 {
		t.Errorf("expected exactly 1 non-zero withdrawal, got %d", nonZero)
	}

	if bal, _ := ms.Balance(ctx, "bob"); !bal.IsZero() {
		t.Errorf("balance should be zero, got %s", bal)
	}
}

func TestMemoryStore_BalanceUnknownIsZero(t *testing.T) {
	ms := store.NewMemoryStore()

	bal, err := ms.Balance(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.IsZero() {
		t.Errorf("expected 0, got %s", bal)
	}
}

func TestMemoryStore_ListEventsCreationOrder(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	first := testEvent()
	first.Description = "first"
	second := testEvent()
	second.Description = "second"
	ms.InsertEvent(ctx, first)
	ms.InsertEvent(ctx, second)

	events, _ := ms.ListEvents(ctx)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Description != "first" || events[1].Description != "second" {
		t.Errorf("events out of creation order: %q, %q", events[0].Description, events[1].Description)
	}
}
