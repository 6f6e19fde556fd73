package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-leaderboard-service/internal/domain"
)

// SlotStore abstracts where leaderboard slots live (in-memory, Redis, Postgres).
//
// ReplaceSlots must apply next atomically and only if the stored slots still
// equal prev; otherwise it returns domain.ErrConflict and writes nothing.
// Infrastructure failures wrap domain.ErrStoreUnavailable.
type SlotStore interface {
	ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error)
	GetSlot(ctx context.Context, bookID, submitterID string) (domain.Slot, bool, error)
	ReplaceSlots(ctx context.Context, bookID string, prev, next []domain.Slot) error
}

// SlotReader serves display reads. It may lag behind in-flight commits.
type SlotReader interface {
	ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error)
}

// invalidator is implemented by caching readers that must drop a book after a write.
type invalidator interface {
	Invalidate(bookID string)
}

// Recorder receives engine outcomes; internal/metrics provides the prometheus one.
type Recorder interface {
	ObserveCheck(reason domain.CheckReason)
	ObserveCommit(outcome string, elapsed time.Duration)
	ObserveConflict()
}

// Commit outcomes reported to the Recorder.
const (
	OutcomePlaced    = "placed"
	OutcomeUnchanged = "unchanged"
	OutcomeRejected  = "not_placed"
	OutcomeInvalid   = "invalid"
	OutcomeExhausted = "exhausted"
	OutcomeError     = "error"
)

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = 10 * time.Millisecond
	defaultMaxBackoff     = 250 * time.Millisecond
	fanOutLimit           = 8
)

// RetryPolicy bounds the commit retry loop.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// LeaderboardService is the only component allowed to change stored slots.
type LeaderboardService struct {
	store    SlotStore
	reader   SlotReader
	hub      *Hub
	locks    *partitionLocks
	logger   *zap.Logger
	recorder Recorder
	retry    RetryPolicy
	now      func() time.Time
}

// Option configures a LeaderboardService.
type Option func(*LeaderboardService)

func WithLogger(logger *zap.Logger) Option {
	return func(s *LeaderboardService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *LeaderboardService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithReader routes display reads through r (typically a cache in front of the store).
func WithReader(r SlotReader) Option {
	return func(s *LeaderboardService) {
		if r != nil {
			s.reader = r
		}
	}
}

func WithHub(h *Hub) Option {
	return func(s *LeaderboardService) {
		if h != nil {
			s.hub = h
		}
	}
}

// WithRetryPolicy overrides the commit retry bounds; zero fields keep defaults.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *LeaderboardService) {
		if p.MaxAttempts > 0 {
			s.retry.MaxAttempts = p.MaxAttempts
		}
		if p.InitialBackoff > 0 {
			s.retry.InitialBackoff = p.InitialBackoff
		}
		if p.MaxBackoff > 0 {
			s.retry.MaxBackoff = p.MaxBackoff
		}
	}
}

// WithClock is used by tests for deterministic UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *LeaderboardService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewLeaderboardService(store SlotStore, opts ...Option) *LeaderboardService {
	s := &LeaderboardService{
		store:    store,
		reader:   store,
		hub:      NewHub(),
		locks:    newPartitionLocks(),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		retry: RetryPolicy{
			MaxAttempts:    defaultMaxAttempts,
			InitialBackoff: defaultInitialBackoff,
			MaxBackoff:     defaultMaxBackoff,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckQualification estimates whether candidate would earn a slot right now.
// It never writes and its answer is not binding for Commit.
func (s *LeaderboardService) CheckQualification(ctx context.Context, candidate domain.Entry) (domain.CheckResult, error) {
	candidate, err := candidate.ValidateForCheck()
	if err != nil {
		return domain.CheckResult{}, err
	}

	own, ok, err := s.store.GetSlot(ctx, candidate.BookID, candidate.SubmitterID)
	if err != nil {
		return domain.CheckResult{}, err
	}
	if ok && !domain.Better(candidate, own.Entry) {
		return s.checked(domain.CheckResult{Reason: domain.ReasonExistingBetterOrEqual}), nil
	}

	current, err := s.store.ListSlots(ctx, candidate.BookID)
	if err != nil {
		return domain.CheckResult{}, err
	}
	if len(current) < domain.Capacity {
		return s.checked(domain.CheckResult{Qualified: true, Rank: len(current) + 1, Reason: domain.ReasonDirectEntry}), nil
	}
	if domain.Better(candidate, current[len(current)-1].Entry) {
		return s.checked(domain.CheckResult{Qualified: true, Rank: domain.Capacity, Reason: domain.ReasonReplacesLast}), nil
	}
	return s.checked(domain.CheckResult{Reason: domain.ReasonBelowThreshold}), nil
}

func (s *LeaderboardService) checked(r domain.CheckResult) domain.CheckResult {
	s.recorder.ObserveCheck(r.Reason)
	return r
}

// Commit merges candidate into its book's top slots and persists the result.
// A candidate that does not make the cut is not an error: Placed is false.
func (s *LeaderboardService) Commit(ctx context.Context, candidate domain.Entry) (domain.CommitResult, error) {
	start := s.now()
	candidate, err := candidate.ValidateForCommit()
	if err != nil {
		s.recorder.ObserveCommit(OutcomeInvalid, 0)
		return domain.CommitResult{}, err
	}

	release, err := s.locks.acquire(ctx, candidate.BookID)
	if err != nil {
		s.recorder.ObserveCommit(OutcomeError, s.now().Sub(start))
		return domain.CommitResult{}, err
	}
	defer release()

	result, err := s.withRetry(ctx, candidate.BookID, func() (domain.CommitResult, error) {
		return s.commitOnce(ctx, candidate)
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		if errors.Is(err, domain.ErrRetryBudgetExhausted) {
			s.recorder.ObserveCommit(OutcomeExhausted, elapsed)
		} else {
			s.recorder.ObserveCommit(OutcomeError, elapsed)
		}
		return domain.CommitResult{}, err
	}

	switch {
	case !result.Placed:
		s.recorder.ObserveCommit(OutcomeRejected, elapsed)
	case !result.Changed:
		s.recorder.ObserveCommit(OutcomeUnchanged, elapsed)
	default:
		s.recorder.ObserveCommit(OutcomePlaced, elapsed)
		s.afterWrite(candidate.BookID, result.Slots)
	}
	s.logger.Debug("leaderboard commit",
		zap.String("book_id", candidate.BookID),
		zap.String("submitter_id", candidate.SubmitterID),
		zap.Bool("placed", result.Placed),
		zap.Int("rank", result.Rank),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// commitOnce runs one read-merge-write pass over fresh state.
func (s *LeaderboardService) commitOnce(ctx context.Context, candidate domain.Entry) (domain.CommitResult, error) {
	current, err := s.store.ListSlots(ctx, candidate.BookID)
	if err != nil {
		return domain.CommitResult{}, err
	}

	// a submitter never regresses their own record
	if own, ok := domain.FindSubmitter(current, candidate.SubmitterID); ok && !domain.Better(candidate, own.Entry) {
		return domain.CommitResult{Placed: true, Rank: own.Rank, Slots: current}, nil
	}

	pool := make([]domain.Entry, 0, len(current)+1)
	for _, slot := range current {
		if slot.SubmitterID != candidate.SubmitterID {
			pool = append(pool, slot.Entry)
		}
	}
	pool = append(pool, candidate)
	next := domain.AssignRanks(candidate.BookID, pool)

	placed, ok := domain.FindSubmitter(next, candidate.SubmitterID)
	if !ok {
		// evicted at once, so next is exactly current
		return domain.CommitResult{Slots: current}, nil
	}
	if err := s.store.ReplaceSlots(ctx, candidate.BookID, current, next); err != nil {
		return domain.CommitResult{}, err
	}
	return domain.CommitResult{Placed: true, Rank: placed.Rank, Changed: true, Slots: next}, nil
}

// Reseed replaces a book's slots from entries, bypassing incremental commits.
// Entries are deduplicated per submitter and ranked with the same comparator.
func (s *LeaderboardService) Reseed(ctx context.Context, bookID string, entries []domain.Entry) ([]domain.Slot, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, &domain.ValidationError{Field: "bookId", Reason: "must not be empty"}
	}
	normalized := make([]domain.Entry, 0, len(entries))
	for i, e := range entries {
		e.BookID = bookID
		v, err := e.ValidateForCommit()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		normalized = append(normalized, v)
	}
	target := domain.AssignRanks(bookID, normalized)

	release, err := s.locks.acquire(ctx, bookID)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := s.withRetry(ctx, bookID, func() (domain.CommitResult, error) {
		current, err := s.store.ListSlots(ctx, bookID)
		if err != nil {
			return domain.CommitResult{}, err
		}
		if domain.SameSlots(current, target) {
			return domain.CommitResult{Slots: current}, nil
		}
		if err := s.store.ReplaceSlots(ctx, bookID, current, target); err != nil {
			return domain.CommitResult{}, err
		}
		return domain.CommitResult{Changed: true, Slots: target}, nil
	})
	if err != nil {
		return nil, err
	}
	if result.Changed {
		s.afterWrite(bookID, result.Slots)
	}
	s.logger.Info("leaderboard reseeded",
		zap.String("book_id", bookID),
		zap.Int("entries", len(entries)),
		zap.Int("slots", len(result.Slots)),
		zap.Bool("changed", result.Changed),
	)
	return result.Slots, nil
}

// withRetry reruns op on domain.ErrConflict with bounded exponential backoff.
func (s *LeaderboardService) withRetry(ctx context.Context, bookID string, op func() (domain.CommitResult, error)) (domain.CommitResult, error) {
	var (
		result   domain.CommitResult
		attempts int
	)
	err := backoff.Retry(func() error {
		attempts++
		r, err := op()
		if err == nil {
			result = r
			return nil
		}
		if errors.Is(err, domain.ErrConflict) {
			s.recorder.ObserveConflict()
			s.logger.Warn("leaderboard write conflict, retrying",
				zap.String("book_id", bookID),
				zap.Int("attempt", attempts),
			)
			return err
		}
		return backoff.Permanent(err)
	}, s.newBackOff(ctx))
	if errors.Is(err, domain.ErrConflict) {
		return domain.CommitResult{}, fmt.Errorf("%w: book %s after %d attempts", domain.ErrRetryBudgetExhausted, bookID, attempts)
	}
	return result, err
}

func (s *LeaderboardService) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialBackoff
	exp.MaxInterval = s.retry.MaxBackoff
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.retry.MaxAttempts-1)), ctx)
}

func (s *LeaderboardService) afterWrite(bookID string, slots []domain.Slot) {
	if inv, ok := s.reader.(invalidator); ok {
		inv.Invalidate(bookID)
	}
	s.hub.Publish(domain.Leaderboard{BookID: bookID, Entries: slots, UpdatedAt: s.now()})
}

// GetPartitionLeaderboard returns a book's slots in rank order; unknown books are empty.
func (s *LeaderboardService) GetPartitionLeaderboard(ctx context.Context, bookID string) ([]domain.Slot, error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, &domain.ValidationError{Field: "bookId", Reason: "must not be empty"}
	}
	slots, err := s.reader.ListSlots(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	return slots, nil
}

// GetAllLeaderboards reads several books concurrently. The result is not a
// consistent snapshot across books.
func (s *LeaderboardService) GetAllLeaderboards(ctx context.Context, bookIDs []string) (map[string][]domain.Slot, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]domain.Slot, len(bookIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	seen := make(map[string]struct{}, len(bookIDs))
	for _, raw := range bookIDs {
		bookID := strings.TrimSpace(raw)
		if _, dup := seen[bookID]; dup {
			continue
		}
		seen[bookID] = struct{}{}
		g.Go(func() error {
			slots, err := s.GetPartitionLeaderboard(gctx, bookID)
			if err != nil {
				return err
			}
			mu.Lock()
			out[bookID] = slots
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe streams a book's leaderboard, starting with its current state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *LeaderboardService) Subscribe(ctx context.Context, bookID string) (<-chan domain.Leaderboard, func(), error) {
	bookID = strings.TrimSpace(bookID)
	if bookID == "" {
		return nil, nil, &domain.ValidationError{Field: "bookId", Reason: "must not be empty"}
	}
	// holding the book lock orders the initial snapshot before later publishes
	release, err := s.locks.acquire(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	slots, err := s.store.ListSlots(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	if slots == nil {
		slots = []domain.Slot{}
	}
	ch, cancel := s.hub.Subscribe(bookID, domain.Leaderboard{BookID: bookID, Entries: slots, UpdatedAt: s.now()})
	return ch, cancel, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveCheck(domain.CheckReason)     {}
func (nopRecorder) ObserveCommit(string, time.Duration) {}
func (nopRecorder) ObserveConflict()                    {}
