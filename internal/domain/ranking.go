package domain

import (
	"sort"
	"strings"
)

// Compare orders entries best first: tier, then difficulty, then earliest
// submission, then submitter id. It returns -1 when a ranks ahead of b.
func Compare(a, b Entry) int {
	if a.Tier != b.Tier {
		return sign(int(a.Tier) - int(b.Tier))
	}
	if a.Difficulty != b.Difficulty {
		return sign(int(a.Difficulty) - int(b.Difficulty))
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		if a.SubmittedAt.Before(b.SubmittedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.SubmitterID, b.SubmitterID)
}

// Better reports whether a ranks strictly ahead of b.
func Better(a, b Entry) bool {
	return Compare(a, b) < 0
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}

// AssignRanks keeps the best entry per submitter, orders the rest with
// Compare, drops everything past Capacity and numbers the survivors 1..n.
func AssignRanks(bookID string, entries []Entry) []Slot {
	best := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if cur, ok := best[e.SubmitterID]; !ok || Better(e, cur) {
			best[e.SubmitterID] = e
		}
	}

	ordered := make([]Entry, 0, len(best))
	for _, e := range best {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return Better(ordered[i], ordered[j])
	})
	if len(ordered) > Capacity {
		ordered = ordered[:Capacity]
	}

	slots := make([]Slot, len(ordered))
	for i, e := range ordered {
		e.BookID = bookID
		slots[i] = Slot{Rank: i + 1, Entry: e}
	}
	return slots
}

// Entries strips ranks from slots.
func Entries(slots []Slot) []Entry {
	out := make([]Entry, len(slots))
	for i := range slots {
		out[i] = slots[i].Entry
	}
	return out
}

// FindSubmitter returns the slot held by submitterID, if any.
func FindSubmitter(slots []Slot, submitterID string) (Slot, bool) {
	for _, s := range slots {
		if s.SubmitterID == submitterID {
			return s, true
		}
	}
	return Slot{}, false
}

// SameSlots reports whether two slot lists hold identical content in the same order.
func SameSlots(a, b []Slot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameSlot(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameSlot(a, b Slot) bool {
	return a.Rank == b.Rank &&
		a.BookID == b.BookID &&
		a.SubmitterID == b.SubmitterID &&
		a.DisplayName == b.DisplayName &&
		a.Tier == b.Tier &&
		a.Difficulty == b.Difficulty &&
		a.RawScore == b.RawScore &&
		a.SubmittedAt.Equal(b.SubmittedAt)
}

// CheckInvariants verifies the at-rest shape of one book's slots.
func CheckInvariants(slots []Slot) error {
	if len(slots) > Capacity {
		return invalid("slots", "more slots than capacity")
	}
	seen := make(map[string]struct{}, len(slots))
	for i, s := range slots {
		if s.Rank != i+1 {
			return invalid("slots", "ranks are not contiguous")
		}
		if _, dup := seen[s.SubmitterID]; dup {
			return invalid("slots", "duplicate submitter "+s.SubmitterID)
		}
		seen[s.SubmitterID] = struct{}{}
		if i > 0 && Better(s.Entry, slots[i-1].Entry) {
			return invalid("slots", "ranks out of order")
		}
	}
	return nil
}
