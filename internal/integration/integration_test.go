package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"classroom-live/internal/app"
	"classroom-live/internal/app/apptest"
	"classroom-live/internal/domain"
	"classroom-live/internal/infra/postgres"
	pgmigrations "classroom-live/internal/infra/postgres/migrations"
	infraredis "classroom-live/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestLiveAnswersArchivedAndServedAsHistory(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateArchive(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	archive := postgres.NewAnswerArchive(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	transport := apptest.NewTransport()
	session := app.NewRoomSession(app.SessionConfig{RoomID: "room-1", UserID: "t1", Role: domain.RoleTeacher}, transport, zerolog.Nop())
	session.OnAnswer(func(view domain.AnswerViewModel) {
		if err := archive.Save(ctx, view); err != nil {
			t.Errorf("archive: %v", err)
		}
	})
	if err := session.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer session.Close()

	transport.Deliver(domain.AnswersTopic("room-1"), []byte(`{"id":"a1","studentId":"s1","studentName":"Ana","questionId":"q1","selectedOptionText":"A","correct":true,"elapsedMillis":900,"answeredAt":"2026-03-01T09:30:00.000Z"}`))
	transport.Deliver(domain.AnswersTopic("room-1"), []byte(`{"id":"a2","studentId":"s2","questionId":"q1","selectedOptionText":"B","isCorrect":false}`))
	// Redelivery of an archived id is ignored.
	transport.Deliver(domain.AnswersTopic("room-1"), []byte(`{"id":"a1","studentId":"s1","questionId":"q1","selectedOptionText":"A","correct":true}`))

	cache := infraredis.NewHistoryCache(redisClient, archive, time.Minute)
	views, err := app.NewHistoryFetcher(cache).Prefetch(ctx, "room-1", domain.AnswerFilters{})
	if err != nil {
		t.Fatalf("prefetch: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 archived answers, got %d", len(views))
	}
	byID := map[string]domain.AnswerViewModel{}
	for _, v := range views {
		byID[v.ID] = v
	}
	if a1 := byID["a1"]; a1.Correct == nil || !*a1.Correct || !*a1.IsCorrect || a1.ElapsedMs != 900 || a1.StudentName != "Ana" {
		t.Fatalf("unexpected a1 %+v", a1)
	}
	if a2 := byID["a2"]; a2.Correct == nil || *a2.Correct || a2.StudentName != "s2" {
		t.Fatalf("unexpected a2 %+v", a2)
	}

	exists, err := redisClient.Exists(ctx, infraredis.HistoryKey("room-1", "", "")).Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected history cached in redis, exists=%d err=%v", exists, err)
	}

	filtered, err := archive.FetchRoomAnswers(ctx, "room-1", domain.AnswerFilters{StudentID: "s2"})
	if err != nil {
		t.Fatalf("filtered fetch: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "a2" {
		t.Fatalf("expected only a2, got %+v", filtered)
	}
}

func TestSnapshotStoreOnRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := infraredis.NewSnapshotStore(redisClient, time.Minute)
	snap := domain.RoomMonitoringSnapshotDto{
		RoomID:      "room-1",
		GlobalStats: domain.GlobalMonitoringStatsDto{TotalAnsweredAll: 2, TotalCorrectAll: 1},
		Timestamp:   domain.Timestamp{Time: time.Now().UTC().Truncate(time.Millisecond)},
	}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Latest(ctx, "room-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.GlobalStats != snap.GlobalStats || !got.Timestamp.Equal(snap.Timestamp.Time) {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func migrateArchive(t *testing.T, ctx context.Context, dsn string) {
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

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "live", "POSTGRES_PASSWORD": "livepass", "POSTGRES_DB": "livedb"},
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
	dsn := fmt.Sprintf("postgres://live:livepass@%s:%s/livedb?sslmode=disable", host, port.Port())
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
