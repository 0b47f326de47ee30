package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/bethouse/wager-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertEvent(ctx context.Context, ev *model.Event) (int64, error) {
	return s.primary.InsertEvent(ctx, ev)
}

func (s *CachedStore) InsertStake(ctx context.Context, st *model.Stake) error {
	if err := s.primary.InsertStake(ctx, st); err != nil {
		return err
	}
	// Pools changed; next read re-populates.
	s.rdb.Del(ctx, eventKey(st.EventID))
	return nil
}

func (s *CachedStore) SettleEvent(ctx context.Context, eventID int64, winningOption int, credits map[string]decimal.Decimal) error {
	if err := s.primary.SettleEvent(ctx, eventID, winningOption, credits); err != nil {
		return err
	}
	keys := []string{eventKey(eventID)}
	for participant := range credits {
		keys = append(keys, balanceKey(participant))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

func (s *CachedStore) Credit(ctx context.Context, participant string, amount decimal.Decimal) error {
	if err := s.primary.Credit(ctx, participant, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(participant))
	return nil
}

func (s *CachedStore) WithdrawAll(ctx context.Context, participant string) (decimal.Decimal, error) {
	amount, err := s.primary.WithdrawAll(ctx, participant)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Del(ctx, balanceKey(participant))
	return amount, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err == nil {
		var ev model.Event
		if json.Unmarshal(data, &ev) == nil {
			return &ev, nil
		}
	}

	ev, err := s.primary.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheEvent(ctx, ev)
	return ev, nil
}

func (s *CachedStore) Balance(ctx context.Context, participant string) (decimal.Decimal, error) {
	cached, err := s.rdb.Get(ctx, balanceKey(participant)).Result()
	if err == nil {
		if amount, derr := decimal.NewFromString(cached); derr == nil {
			return amount, nil
		}
	}

	amount, err := s.primary.Balance(ctx, participant)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, balanceKey(participant), amount.String(), s.ttl)
	return amount, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.primary.ListEvents(ctx)
}

func (s *CachedStore) CountEvents(ctx context.Context) (int64, error) {
	return s.primary.CountEvents(ctx)
}

func (s *CachedStore) StakesByEvent(ctx context.Context, eventID int64) ([]model.Stake, error) {
	return s.primary.StakesByEvent(ctx, eventID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheEvent(ctx context.Context, ev *model.Event) {
	if data, err := json.Marshal(ev); err == nil {
		s.rdb.Set(ctx, eventKey(ev.ID), data, s.ttl)
	}
}

func eventKey(id int64) string { return fmt.Sprintf("event:%d", id) }

func balanceKey(participant string) string { return fmt.Sprintf("balance:%s", participant) }
