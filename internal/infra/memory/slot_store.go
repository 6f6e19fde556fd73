package memory

import (
	"context"
	"sync"

	"quiz-leaderboard-service/internal/domain"
)

// SlotStore is an in-memory implementation of app.SlotStore.
// Writes are compare-and-swap against the slots the writer read, so several
// services sharing one SlotStore still detect each other's commits.
type SlotStore struct {
	mu    sync.RWMutex
	books map[string][]domain.Slot
}

func NewSlotStore() *SlotStore {
	return &SlotStore{books: make(map[string][]domain.Slot)}
}

func (s *SlotStore) ListSlots(_ context.Context, bookID string) ([]domain.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSlots(s.books[bookID]), nil
}

func (s *SlotStore) GetSlot(_ context.Context, bookID, submitterID string) (domain.Slot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := domain.FindSubmitter(s.books[bookID], submitterID)
	return slot, ok, nil
}

func (s *SlotStore) ReplaceSlots(_ context.Context, bookID string, prev, next []domain.Slot) error {
	if err := domain.CheckInvariants(next); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !domain.SameSlots(s.books[bookID], prev) {
		return domain.ErrConflict
	}
	if len(next) == 0 {
		delete(s.books, bookID)
		return nil
	}
	s.books[bookID] = cloneSlots(next)
	return nil
}

func cloneSlots(slots []domain.Slot) []domain.Slot {
	if len(slots) == 0 {
		return []domain.Slot{}
	}
	out := make([]domain.Slot, len(slots))
	copy(out, slots)
	return out
}
