package domain

import "strings"

// Tier is the ordinal quality grade derived from a raw score. Lower is better.
type Tier int

const (
	TierUnknown Tier = iota
	TierS
	TierAPlus
	TierA
	TierBPlus
	TierB
	TierCPlus
	TierF
)

var tierNames = map[Tier]string{
	TierS:     "S",
	TierAPlus: "A+",
	TierA:     "A",
	TierBPlus: "B+",
	TierB:     "B",
	TierCPlus: "C+",
	TierF:     "F",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is one of the seven grades.
func (t Tier) Valid() bool {
	return t >= TierS && t <= TierF
}

// MaxScore and MinScore bound the raw score accepted by Classify.
const (
	MinScore = 0
	MaxScore = 100
)

// Classify maps a 0..100 score to its tier.
func Classify(score int) (Tier, error) {
	switch {
	case score < MinScore || score > MaxScore:
		return TierUnknown, invalid("score", "must be between 0 and 100")
	case score == 100:
		return TierS, nil
	case score >= 90:
		return TierAPlus, nil
	case score >= 80:
		return TierA, nil
	case score >= 70:
		return TierBPlus, nil
	case score >= 60:
		return TierB, nil
	case score >= 50:
		return TierCPlus, nil
	default:
		return TierF, nil
	}
}

// ParseTier parses the display form of a tier ("S", "A+", ...).
func ParseTier(raw string) (Tier, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for t, n := range tierNames {
		if n == name {
			return t, nil
		}
	}
	return TierUnknown, invalid("tier", "unknown tier "+raw)
}

// Difficulty is the difficulty an attempt was played at. It only breaks ties.
type Difficulty int

const (
	DifficultyUnknown Difficulty = iota
	DifficultyAdvanced
	DifficultyBeginner
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyAdvanced:
		return "advanced"
	case DifficultyBeginner:
		return "beginner"
	default:
		return "unknown"
	}
}

func (d Difficulty) Valid() bool {
	return d == DifficultyAdvanced || d == DifficultyBeginner
}

// ParseDifficulty normalizes a difficulty label.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "advanced":
		return DifficultyAdvanced, nil
	case "beginner":
		return DifficultyBeginner, nil
	default:
		return DifficultyUnknown, invalid("difficulty", "unknown difficulty "+raw)
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, invalid("tier", "unknown tier")
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, invalid("difficulty", "unknown difficulty")
	}
	return []byte(d.String()), nil
}

func (d *Difficulty) UnmarshalText(text []byte) error {
	parsed, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
