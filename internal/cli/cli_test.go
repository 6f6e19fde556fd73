package cli

import (
	"os"
	"path/filepath"
	"testing"

	"quiz-leaderboard-service/internal/config"
	"quiz-leaderboard-service/internal/domain"
)

func TestLoadReseedEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entries.yaml")
	doc := `entries:
  - submitterId: u1
    displayName: Alice
    rawScore: 91
    tier: A+
    difficulty: advanced
    submittedAt: 2026-05-01T09:00:00Z
  - submitterId: u2
    displayName: Bob
    rawScore: 40
    difficulty: beginner
    submittedAt: 2026-05-01T09:05:00Z
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := loadReseedEntries(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tier != domain.TierAPlus || entries[0].Difficulty != domain.DifficultyAdvanced {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Tier != domain.TierUnknown || entries[1].SubmittedAt.IsZero() {
		t.Fatalf("expected derived tier and parsed time, got %+v", entries[1])
	}
}

func TestLoadReseedEntriesRejectsUnknownDifficulty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.yaml")
	doc := "entries:\n  - submitterId: u1\n    difficulty: expert\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadReseedEntries(path); err == nil {
		t.Fatalf("expected parse error for unknown difficulty")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	cfg := config.Config{}
	cfg.Log.Level = "chatty"
	if _, err := newLogger(cfg); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
	cfg.Log.Level = "debug"
	cfg.Log.Development = true
	if _, err := newLogger(cfg); err != nil {
		t.Fatalf("debug logger: %v", err)
	}
}
