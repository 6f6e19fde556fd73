package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Capacity is the number of slots a book's leaderboard holds.
const Capacity = 5

// MaxDisplayNameLength bounds display names in runes.
const MaxDisplayNameLength = 32

// Entry is one finished, graded attempt competing for a slot.
// DisplayName is only required when the entry is committed.
type Entry struct {
	BookID      string     `json:"bookId" yaml:"bookId"`
	SubmitterID string     `json:"submitterId" yaml:"submitterId"`
	DisplayName string     `json:"displayName" yaml:"displayName"`
	Tier        Tier       `json:"tier" yaml:"tier"`
	Difficulty  Difficulty `json:"difficulty" yaml:"difficulty"`
	RawScore    int        `json:"rawScore" yaml:"rawScore"`
	SubmittedAt time.Time  `json:"submittedAt" yaml:"submittedAt"`
}

// Slot is a persisted, ranked leaderboard entry.
type Slot struct {
	Rank int `json:"rank"`
	Entry
}

// CheckReason explains a qualification answer.
type CheckReason string

const (
	ReasonExistingBetterOrEqual CheckReason = "EXISTING_BETTER_OR_EQUAL"
	ReasonDirectEntry           CheckReason = "DIRECT_ENTRY"
	ReasonReplacesLast          CheckReason = "REPLACES_LAST"
	ReasonBelowThreshold        CheckReason = "BELOW_THRESHOLD"
)

// CheckResult is the advisory answer of a qualification check. Rank is provisional.
type CheckResult struct {
	Qualified bool        `json:"qualified"`
	Rank      int         `json:"rank,omitempty"`
	Reason    CheckReason `json:"reason"`
}

// CommitResult reports where a committed entry ended up.
// Placed is false when the entry did not make the top Capacity.
type CommitResult struct {
	Placed bool
	Rank   int
	// Changed is false when the stored leaderboard was left untouched.
	Changed bool
	Slots   []Slot
}

// Leaderboard is the ordered slot list of one book.
type Leaderboard struct {
	BookID    string    `json:"bookId"`
	Entries   []Slot    `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeTime puts timestamps in the form every store round-trips exactly.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ValidateForCheck normalizes the fields a qualification check needs.
func (e Entry) ValidateForCheck() (Entry, error) {
	e.BookID = strings.TrimSpace(e.BookID)
	e.SubmitterID = strings.TrimSpace(e.SubmitterID)
	if e.BookID == "" {
		return e, invalid("bookId", "must not be empty")
	}
	if e.SubmitterID == "" {
		return e, invalid("submitterId", "must not be empty")
	}
	if !e.Tier.Valid() {
		return e, invalid("tier", "must be one of S, A+, A, B+, B, C+, F")
	}
	if !e.Difficulty.Valid() {
		return e, invalid("difficulty", "must be advanced or beginner")
	}
	if e.SubmittedAt.IsZero() {
		return e, invalid("submittedAt", "must be set")
	}
	e.SubmittedAt = NormalizeTime(e.SubmittedAt)
	return e, nil
}

// ValidateForCommit normalizes a committed entry. An unset tier is derived
// from the raw score; a set tier must agree with it.
func (e Entry) ValidateForCommit() (Entry, error) {
	derived, err := Classify(e.RawScore)
	if err != nil {
		return e, err
	}
	if e.Tier == TierUnknown {
		e.Tier = derived
	} else if e.Tier != derived {
		return e, invalid("tier", "does not match score")
	}
	e.DisplayName = strings.TrimSpace(e.DisplayName)
	if e.DisplayName == "" {
		return e, invalid("displayName", "must not be empty")
	}
	if utf8.RuneCountInString(e.DisplayName) > MaxDisplayNameLength {
		return e, invalid("displayName", "too long")
	}
	return e.ValidateForCheck()
}
