package repo

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	dom "github.com/like-Ocean/TODOs/internal/domain"
	"github.com/like-Ocean/TODOs/internal/utils"
	"github.com/like-Ocean/TODOs/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	os.Exit(runWithPostgres(m))
}

func runWithPostgres(m *testing.M) int {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start postgres container: %v\n", err)
		return 1
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to terminate postgres container: %v\n", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get connection string: %v\n", err)
		return 1
	}
	if err := migrations.Up(dsn); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to run migrations: %v\n", err)
		return 1
	}

	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to test database: %v\n", err)
		return 1
	}
	defer testPool.Close()

	return m.Run()
}

func setupTestRepo(t *testing.T) *PGTaskRepo {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	t.Cleanup(func() {
		if _, err := testPool.Exec(context.Background(), "TRUNCATE tasks RESTART IDENTITY"); err != nil {
			t.Logf("Failed to truncate tasks: %v", err)
		}
	})
	return NewPGTaskRepo(testPool)
}

func ptr[T any](v T) *T { return &v }

func TestPGTaskRepo_CreateAndGet(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, dom.Task{Title: "Buy milk", Description: ptr("2%"), ExternalID: ptr(int64(7))})
	require.NoError(t, err)
	assert.Positive(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.UpdatedAt)

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Title, got.Title)
	assert.Equal(t, "2%", *got.Description)

	byExt, err := r.GetByExternalID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byExt.ID)
}

func TestPGTaskRepo_MissingRows(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	_, err := r.GetByID(ctx, 999)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	_, err = r.GetByExternalID(ctx, 999)
	assert.True(t, errors.Is(err, pgx.ErrNoRows))
	_, err = r.Update(ctx, 999, dom.TaskPatch{Completed: ptr(true)})
	assert.True(t, errors.Is(err, pgx.ErrNoRows))

	ok, err := r.Delete(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPGTaskRepo_DuplicateExternalID(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	_, err := r.Create(ctx, dom.Task{Title: "first", ExternalID: ptr(int64(1))})
	require.NoError(t, err)
	_, err = r.Create(ctx, dom.Task{Title: "second", ExternalID: ptr(int64(1))})
	require.Error(t, err)
	assert.True(t, utils.IsPGUniqueViolation(err, "tasks_external_id_key"))

	// NULL external ids never collide.
	_, err = r.Create(ctx, dom.Task{Title: "manual a"})
	require.NoError(t, err)
	_, err = r.Create(ctx, dom.Task{Title: "manual b"})
	require.NoError(t, err)
}

func TestPGTaskRepo_UpdatePartial(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, dom.Task{Title: "draft", Description: ptr("keep me")})
	require.NoError(t, err)

	updated, err := r.Update(ctx, created.ID, dom.TaskPatch{Completed: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "draft", updated.Title)
	assert.Equal(t, "keep me", *updated.Description)
	require.NotNil(t, updated.UpdatedAt)

	updated, err = r.Update(ctx, created.ID, dom.TaskPatch{Title: ptr("final")})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.True(t, updated.Completed)
}

func TestPGTaskRepo_UpdateClearsDescription(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, dom.Task{Title: "t", Description: ptr("old")})
	require.NoError(t, err)

	kept, err := r.Update(ctx, created.ID, dom.TaskPatch{Completed: ptr(true)})
	require.NoError(t, err)
	require.NotNil(t, kept.Description)
	assert.Equal(t, "old", *kept.Description)

	cleared, err := r.Update(ctx, created.ID, dom.TaskPatch{DescriptionSet: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.Description)

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Description)
	assert.True(t, got.Completed)
}

func TestPGTaskRepo_ListAndDelete(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c", "d"} {
		_, err := r.Create(ctx, dom.Task{Title: title})
		require.NoError(t, err)
	}

	page, err := r.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Title)
	assert.Equal(t, "c", page[1].Title)

	ok, err := r.Delete(ctx, page[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	all, err := r.List(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty, err := r.List(ctx, 100, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
