package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-leaderboard-service/internal/domain"
)

const selectSlots = `SELECT book_id, rank, submitter_id, display_name, tier, difficulty, raw_score, submitted_at
FROM leaderboard_slots`

// SQLSTATE codes treated as a lost race against another writer.
var conflictCodes = map[string]struct{}{
	"23505": {}, // unique_violation on (book_id, rank) or (book_id, submitter_id)
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
}

// SlotStore persists slots in the leaderboard_slots table.
type SlotStore struct {
	pool *pgxpool.Pool
}

func NewSlotStore(pool *pgxpool.Pool) *SlotStore {
	return &SlotStore{pool: pool}
}

func (s *SlotStore) ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error) {
	rows, err := s.pool.Query(ctx, selectSlots+` WHERE book_id=$1 ORDER BY rank`, bookID)
	if err != nil {
		return nil, classify("list slots", err)
	}
	return collectSlots(rows)
}

func (s *SlotStore) GetSlot(ctx context.Context, bookID, submitterID string) (domain.Slot, bool, error) {
	row := s.pool.QueryRow(ctx, selectSlots+` WHERE book_id=$1 AND submitter_id=$2`, bookID, submitterID)
	slot, err := scanSlot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Slot{}, false, nil
	}
	if err != nil {
		return domain.Slot{}, false, classify("get slot", err)
	}
	return slot, true, nil
}

// ReplaceSlots locks the book's rows, verifies they still equal prev and
// rewrites them. Two writers racing on an empty or shrinking book have no
// rows to lock, so the primary key on (book_id, rank) decides the loser.
func (s *SlotStore) ReplaceSlots(ctx context.Context, bookID string, prev, next []domain.Slot) error {
	if err := domain.CheckInvariants(next); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, selectSlots+` WHERE book_id=$1 ORDER BY rank FOR UPDATE`, bookID)
	if err != nil {
		return classify("lock slots", err)
	}
	current, err := collectSlots(rows)
	if err != nil {
		return err
	}
	if !domain.SameSlots(current, prev) {
		return domain.ErrConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM leaderboard_slots WHERE book_id=$1`, bookID); err != nil {
		return classify("delete slots", err)
	}
	batch := &pgx.Batch{}
	for _, slot := range next {
		batch.Queue(`INSERT INTO leaderboard_slots
			(book_id, rank, submitter_id, display_name, tier, difficulty, raw_score, submitted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			bookID, slot.Rank, slot.SubmitterID, slot.DisplayName,
			slot.Tier.String(), slot.Difficulty.String(), slot.RawScore, slot.SubmittedAt)
	}
	br := tx.SendBatch(ctx, batch)
	for range next {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return classify("insert slot", err)
		}
	}
	if err := br.Close(); err != nil {
		return classify("insert slots", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSlot(row scanner) (domain.Slot, error) {
	var (
		slot       domain.Slot
		tier, diff string
	)
	if err := row.Scan(&slot.BookID, &slot.Rank, &slot.SubmitterID, &slot.DisplayName, &tier, &diff, &slot.RawScore, &slot.SubmittedAt); err != nil {
		return domain.Slot{}, err
	}
	var err error
	if slot.Tier, err = domain.ParseTier(tier); err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot: %w", err)
	}
	if slot.Difficulty, err = domain.ParseDifficulty(diff); err != nil {
		return domain.Slot{}, fmt.Errorf("decode slot: %w", err)
	}
	slot.SubmittedAt = slot.SubmittedAt.UTC()
	return slot, nil
}

func collectSlots(rows pgx.Rows) ([]domain.Slot, error) {
	defer rows.Close()
	slots := make([]domain.Slot, 0, domain.Capacity)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read slots", err)
	}
	return slots, nil
}

// classify maps driver errors onto the engine's error taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := conflictCodes[pgErr.Code]; ok {
			return domain.ErrConflict
		}
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
