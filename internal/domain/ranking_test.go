package domain_test

import (
	"fmt"
	"testing"
	"time"

	"quiz-leaderboard-service/internal/domain"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func entry(submitter string, tier domain.Tier, diff domain.Difficulty, offset time.Duration) domain.Entry {
	return domain.Entry{
		BookID:      "book-1",
		SubmitterID: submitter,
		DisplayName: submitter,
		Tier:        tier,
		Difficulty:  diff,
		SubmittedAt: base.Add(offset),
	}
}

func TestCompareKeyOrder(t *testing.T) {
	cases := []struct {
		name   string
		better domain.Entry
		worse  domain.Entry
	}{
		{"tier wins over everything", entry("z", domain.TierA, domain.DifficultyBeginner, time.Hour), entry("a", domain.TierB, domain.DifficultyAdvanced, 0)},
		{"advanced beats beginner", entry("z", domain.TierA, domain.DifficultyAdvanced, time.Hour), entry("a", domain.TierA, domain.DifficultyBeginner, 0)},
		{"earlier wins", entry("z", domain.TierA, domain.DifficultyAdvanced, 0), entry("a", domain.TierA, domain.DifficultyAdvanced, time.Second)},
		{"submitter id breaks exact ties", entry("a", domain.TierA, domain.DifficultyAdvanced, 0), entry("b", domain.TierA, domain.DifficultyAdvanced, 0)},
	}
	for _, tc := range cases {
		if got := domain.Compare(tc.better, tc.worse); got != -1 {
			t.Fatalf("%s: expected -1, got %d", tc.name, got)
		}
		if got := domain.Compare(tc.worse, tc.better); got != 1 {
			t.Fatalf("%s: expected 1 when reversed, got %d", tc.name, got)
		}
	}
}

func TestCompareIsTotalOverDistinctEntries(t *testing.T) {
	var all []domain.Entry
	tiers := []domain.Tier{domain.TierS, domain.TierAPlus, domain.TierA, domain.TierBPlus, domain.TierB, domain.TierCPlus, domain.TierF}
	diffs := []domain.Difficulty{domain.DifficultyAdvanced, domain.DifficultyBeginner}
	for _, tier := range tiers {
		for _, diff := range diffs {
			for off := 0; off < 2; off++ {
				for _, id := range []string{"u1", "u2"} {
					all = append(all, entry(id, tier, diff, time.Duration(off)*time.Minute))
				}
			}
		}
	}
	for i := range all {
		if domain.Compare(all[i], all[i]) != 0 {
			t.Fatalf("entry %d not equal to itself", i)
		}
		for j := range all {
			if i == j {
				continue
			}
			ab, ba := domain.Compare(all[i], all[j]), domain.Compare(all[j], all[i])
			if ab == 0 || ab != -ba {
				t.Fatalf("entries %d and %d: compare=%d reverse=%d", i, j, ab, ba)
			}
			for k := range all {
				if domain.Better(all[i], all[j]) && domain.Better(all[j], all[k]) && !domain.Better(all[i], all[k]) {
					t.Fatalf("not transitive over %d, %d, %d", i, j, k)
				}
			}
		}
	}
}

func TestAssignRanksDedupesSortsAndTruncates(t *testing.T) {
	entries := []domain.Entry{
		entry("u1", domain.TierF, domain.DifficultyBeginner, 0),
		entry("u1", domain.TierA, domain.DifficultyBeginner, time.Minute),
	}
	for i := 2; i <= 7; i++ {
		entries = append(entries, entry(fmt.Sprintf("u%d", i), domain.TierB, domain.DifficultyBeginner, time.Duration(i)*time.Minute))
	}

	slots := domain.AssignRanks("book-9", entries)
	if len(slots) != domain.Capacity {
		t.Fatalf("expected %d slots, got %d", domain.Capacity, len(slots))
	}
	if err := domain.CheckInvariants(slots); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if slots[0].SubmitterID != "u1" || slots[0].Tier != domain.TierA {
		t.Fatalf("expected u1's best attempt first, got %+v", slots[0])
	}
	for i, want := range []string{"u2", "u3", "u4", "u5"} {
		if slots[i+1].SubmitterID != want {
			t.Fatalf("rank %d: expected %s, got %s", i+2, want, slots[i+1].SubmitterID)
		}
	}
	for _, s := range slots {
		if s.BookID != "book-9" {
			t.Fatalf("expected slots stamped with book id, got %q", s.BookID)
		}
	}
}

func TestCheckInvariantsDetectsBrokenShapes(t *testing.T) {
	good := domain.AssignRanks("b", []domain.Entry{
		entry("u1", domain.TierA, domain.DifficultyAdvanced, 0),
		entry("u2", domain.TierB, domain.DifficultyAdvanced, 0),
	})
	gap := []domain.Slot{good[0], {Rank: 3, Entry: good[1].Entry}}
	if err := domain.CheckInvariants(gap); err == nil {
		t.Fatalf("expected gap to be rejected")
	}
	swapped := []domain.Slot{{Rank: 1, Entry: good[1].Entry}, {Rank: 2, Entry: good[0].Entry}}
	if err := domain.CheckInvariants(swapped); err == nil {
		t.Fatalf("expected ordering violation")
	}
	dup := []domain.Slot{good[0], {Rank: 2, Entry: good[0].Entry}}
	if err := domain.CheckInvariants(dup); err == nil {
		t.Fatalf("expected duplicate submitter to be rejected")
	}
}

func TestValidateForCommit(t *testing.T) {
	e := domain.Entry{
		BookID:      " book-1 ",
		SubmitterID: "u1",
		DisplayName: "  Alice ",
		Difficulty:  domain.DifficultyAdvanced,
		RawScore:    85,
		SubmittedAt: time.Date(2026, 1, 1, 0, 0, 0, 1234567, time.FixedZone("x", 3600)),
	}
	got, err := e.ValidateForCommit()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.Tier != domain.TierA || got.BookID != "book-1" || got.DisplayName != "Alice" {
		t.Fatalf("unexpected normalized entry %+v", got)
	}
	if got.SubmittedAt.Location() != time.UTC || got.SubmittedAt.Nanosecond() != 1234000 {
		t.Fatalf("expected utc microsecond timestamp, got %v", got.SubmittedAt)
	}

	e.Tier = domain.TierS
	if _, err := e.ValidateForCommit(); !domain.IsValidation(err) {
		t.Fatalf("expected tier mismatch to be rejected, got %v", err)
	}
	e.Tier = domain.TierUnknown
	e.DisplayName = ""
	if _, err := e.ValidateForCommit(); !domain.IsValidation(err) {
		t.Fatalf("expected empty display name to be rejected, got %v", err)
	}
}

func TestValidateForCheckRequiresIdentifiers(t *testing.T) {
	e := entry("", domain.TierA, domain.DifficultyAdvanced, 0)
	if _, err := e.ValidateForCheck(); !domain.IsValidation(err) {
		t.Fatalf("expected empty submitter to be rejected, got %v", err)
	}
	e = entry("u1", domain.TierA, domain.DifficultyUnknown, 0)
	if _, err := e.ValidateForCheck(); !domain.IsValidation(err) {
		t.Fatalf("expected unknown difficulty to be rejected, got %v", err)
	}
}
