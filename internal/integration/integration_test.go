package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-leaderboard-service/internal/app"
	"quiz-leaderboard-service/internal/domain"
	"quiz-leaderboard-service/internal/infra/postgres"
	pgmigrations "quiz-leaderboard-service/internal/infra/postgres/migrations"
	infraredis "quiz-leaderboard-service/internal/infra/redis"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestPostgresSlotStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()
	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	store := postgres.NewSlotStore(pool)
	runScenario(t, ctx, store)
	runSharedStoreRace(t, ctx, store)
}

func TestRedisSlotStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, cleanup := startRedis(t, ctx)
	defer cleanup()

	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	store := infraredis.NewSlotStore(client)
	runScenario(t, ctx, store)
	runSharedStoreRace(t, ctx, store)
}

// runScenario fills a book, evicts the last slot with a better tier and
// then replays the evicting attempt, which must leave the book untouched.
func runScenario(t *testing.T, ctx context.Context, store app.SlotStore) {
	t.Helper()
	service := app.NewLeaderboardService(store)
	const book = "scenario"

	for i := 1; i <= domain.Capacity; i++ {
		res, err := service.Commit(ctx, entry(book, fmt.Sprintf("u%d", i), 60, domain.DifficultyBeginner, time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("commit u%d: %v", i, err)
		}
		if !res.Placed || res.Rank != i {
			t.Fatalf("u%d: expected rank %d, got %+v", i, i, res)
		}
	}

	check, err := service.CheckQualification(ctx, entry(book, "late", 95, domain.DifficultyAdvanced, time.Hour))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.Qualified || check.Reason != domain.ReasonReplacesLast {
		t.Fatalf("expected REPLACES_LAST, got %+v", check)
	}

	late := entry(book, "late", 95, domain.DifficultyAdvanced, time.Hour)
	res, err := service.Commit(ctx, late)
	if err != nil {
		t.Fatalf("commit late: %v", err)
	}
	if !res.Placed || res.Rank != 1 {
		t.Fatalf("expected late at rank 1, got %+v", res)
	}

	slots, err := service.GetPartitionLeaderboard(ctx, book)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if err := domain.CheckInvariants(slots); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	want := []string{"late", "u1", "u2", "u3", "u4"}
	for i, id := range want {
		if slots[i].SubmitterID != id {
			t.Fatalf("rank %d: expected %s, got %s", i+1, id, slots[i].SubmitterID)
		}
	}
	if !slots[0].SubmittedAt.Equal(late.SubmittedAt) || slots[0].Tier != domain.TierAPlus {
		t.Fatalf("slot did not round-trip: %+v", slots[0])
	}

	again, err := service.Commit(ctx, late)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.Changed || again.Rank != 1 {
		t.Fatalf("expected unchanged rank 1 on replay, got %+v", again)
	}

	empty, err := service.GetPartitionLeaderboard(ctx, "no-such-book")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty unknown book, got %v %v", empty, err)
	}
}

// runSharedStoreRace runs two services with separate locks against one
// store, the way two processes would, and checks the book stays consistent.
func runSharedStoreRace(t *testing.T, ctx context.Context, store app.SlotStore) {
	t.Helper()
	policy := app.WithRetryPolicy(app.RetryPolicy{MaxAttempts: 50, InitialBackoff: 2 * time.Millisecond, MaxBackoff: 20 * time.Millisecond})
	services := []*app.LeaderboardService{
		app.NewLeaderboardService(store, policy),
		app.NewLeaderboardService(store, policy),
	}
	const book = "race"

	var wg sync.WaitGroup
	errs := make(chan error, 12)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry(book, fmt.Sprintf("r%02d", i), 50+i*4, domain.DifficultyAdvanced, time.Duration(i)*time.Second)
			if _, err := services[i%2].Commit(ctx, e); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("commit: %v", err)
	}

	slots, err := store.ListSlots(ctx, book)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := domain.CheckInvariants(slots); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	// scores 94, 90 (A+), 86, 82 (A), 78 (B+)
	for i, id := range []string{"r10", "r11", "r08", "r09", "r07"} {
		if slots[i].SubmitterID != id {
			t.Fatalf("rank %d: expected %s, got %s", i+1, id, slots[i].SubmitterID)
		}
	}
}

func entry(book, submitter string, score int, difficulty domain.Difficulty, offset time.Duration) domain.Entry {
	return domain.Entry{
		BookID:      book,
		SubmitterID: submitter,
		DisplayName: "name-" + submitter,
		Difficulty:  difficulty,
		RawScore:    score,
		SubmittedAt: t0.Add(offset),
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
