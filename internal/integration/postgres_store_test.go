//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/geo-index-service/internal/adapter/postgres"
	"github.com/couchcryptid/geo-index-service/internal/domain"
)

// startPostgres launches a disposable Postgres container and returns its DSN.
func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("geoindex"),
		tcpostgres.WithUsername("geoindex"),
		tcpostgres.WithPassword("geoindex"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "postgres connection string")
	return dsn
}

func newStore(ctx context.Context, t *testing.T, clock clockwork.Clock) *postgres.Store {
	t.Helper()

	dsn := startPostgres(ctx, t)
	store, err := postgres.NewStore(ctx, dsn, clock, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.EnsureSchema(ctx))
	// EnsureSchema is idempotent.
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func fptr(v float64) *float64 { return &v }

func sampleResult(ndvi float64) domain.CalculationResult {
	return domain.CalculationResult{
		2021: {
			domain.IndexNDVI: fptr(ndvi),
			domain.IndexNDMI: fptr(0.11),
			domain.IndexNDSI: nil,
			domain.IndexGCI:  fptr(1.4),
			domain.IndexEVI:  fptr(0.3),
			domain.IndexAWEI: fptr(-0.2),
			domain.IndexLST:  fptr(297.2),
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newStore(ctx, t, clock)

	geometry := json.RawMessage(`{"type": "Polygon", "coordinates": [[[30.1, 50.2], [30.3, 50.2], [30.3, 50.4], [30.1, 50.2]]]}`)

	older, err := store.Create(ctx, "owner-a", geometry, []int{2021}, sampleResult(0.41))
	require.NoError(t, err)
	require.NotEmpty(t, older.ID)

	clock.Advance(time.Hour)
	newer, err := store.Create(ctx, "owner-a", geometry, []int{2021}, sampleResult(0.52))
	require.NoError(t, err)

	records, err := store.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, older.ID, records[1].ID)
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))

	got := records[0]
	assert.Equal(t, "owner-a", got.OwnerID)
	assert.JSONEq(t, string(geometry), string(got.Geometry))
	assert.Equal(t, []int{2021}, got.Years)
	require.Contains(t, got.Result, 2021)
	assert.InDelta(t, 0.52, *got.Result[2021][domain.IndexNDVI], 1e-9)
	assert.Nil(t, got.Result[2021][domain.IndexNDSI], "null index values survive the round trip")
}

func TestStoreOwnerIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := newStore(ctx, t, clockwork.NewRealClock())
	geometry := json.RawMessage(`{"type": "Point", "coordinates": [30.5, 50.4]}`)

	_, err := store.Create(ctx, "owner-a", geometry, []int{2021}, sampleResult(0.4))
	require.NoError(t, err)
	_, err = store.Create(ctx, "owner-b", geometry, []int{2021}, sampleResult(0.5))
	require.NoError(t, err)

	records, err := store.ListByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "owner-a", records[0].OwnerID)

	none, err := store.ListByOwner(ctx, "owner-c")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestStoreConcurrentCreates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := newStore(ctx, t, clockwork.NewRealClock())
	geometry := json.RawMessage(`{"type": "Point", "coordinates": [30.5, 50.4]}`)

	const n = 10
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", i%2)
			_, err := store.Create(ctx, owner, geometry, []int{2020, 2021}, sampleResult(float64(i)/10))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, owner := range []string{"owner-0", "owner-1"} {
		records, err := store.ListByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Len(t, records, n/2)
	}
}
