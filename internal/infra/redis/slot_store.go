package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"quiz-leaderboard-service/internal/domain"
)

// SlotStore keeps each book's slots in one Redis hash:
//
//	HSET leaderboard:{bookID}:slots {submitterID} {slot JSON}
//
// Writes WATCH the hash and run in MULTI/EXEC, so a concurrent writer from
// any process turns into domain.ErrConflict instead of a lost update.
type SlotStore struct {
	client *redis.Client
}

func NewSlotStore(client *redis.Client) *SlotStore {
	return &SlotStore{client: client}
}

func (s *SlotStore) ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error) {
	raw, err := s.client.HGetAll(ctx, s.slotsKey(bookID)).Result()
	if err != nil {
		return nil, unavailable("list slots", err)
	}
	return decodeSlots(raw)
}

func (s *SlotStore) GetSlot(ctx context.Context, bookID, submitterID string) (domain.Slot, bool, error) {
	raw, err := s.client.HGet(ctx, s.slotsKey(bookID), submitterID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Slot{}, false, nil
	}
	if err != nil {
		return domain.Slot{}, false, unavailable("get slot", err)
	}
	var slot domain.Slot
	if err := json.Unmarshal([]byte(raw), &slot); err != nil {
		return domain.Slot{}, false, fmt.Errorf("decode slot: %w", err)
	}
	return slot, true, nil
}

func (s *SlotStore) ReplaceSlots(ctx context.Context, bookID string, prev, next []domain.Slot) error {
	if err := domain.CheckInvariants(next); err != nil {
		return err
	}
	values := make([]interface{}, 0, 2*len(next))
	for _, slot := range next {
		data, err := json.Marshal(slot)
		if err != nil {
			return fmt.Errorf("encode slot: %w", err)
		}
		values = append(values, slot.SubmitterID, string(data))
	}

	key := s.slotsKey(bookID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		current, err := decodeSlots(raw)
		if err != nil {
			return err
		}
		if !domain.SameSlots(current, prev) {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) > 0 {
				pipe.HSet(ctx, key, values...)
			}
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrConflict
	default:
		return unavailable("replace slots", err)
	}
}

func (s *SlotStore) slotsKey(bookID string) string {
	return "leaderboard:" + bookID + ":slots"
}

func decodeSlots(raw map[string]string) ([]domain.Slot, error) {
	slots := make([]domain.Slot, 0, len(raw))
	for submitterID, data := range raw {
		var slot domain.Slot
		if err := json.Unmarshal([]byte(data), &slot); err != nil {
			return nil, fmt.Errorf("decode slot %s: %w", submitterID, err)
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Rank < slots[j].Rank
	})
	return slots, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
