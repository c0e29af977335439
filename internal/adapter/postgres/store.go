// Package postgres persists calculation records. Records are append-only:
// the schema has no UPDATE or DELETE path and the store exposes none.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"

	"github.com/couchcryptid/geo-index-service/internal/domain"
)

// Store implements the calculation store on PostgreSQL.
type Store struct {
	db     *sql.DB
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewStore opens a connection pool and verifies it with a ping.
func NewStore(ctx context.Context, databaseURL string, clock clockwork.Clock, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db, clock: clock, logger: logger}, nil
}

// NewStoreWithDB wraps an existing connection, for tests.
func NewStoreWithDB(db *sql.DB, clock clockwork.Clock, logger *slog.Logger) *Store {
	return &Store{db: db, clock: clock, logger: logger}
}

// EnsureSchema creates the calculations table if it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS calculations (
			id         UUID PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			geometry   JSONB NOT NULL,
			years      INTEGER[] NOT NULL,
			result     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS calculations_owner_created_idx
			ON calculations (owner_id, created_at DESC);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create persists one calculation record in a single INSERT. The id and
// creation timestamp are assigned here; on any storage error the record
// does not exist and the failure kind is PersistenceFailure.
func (s *Store) Create(ctx context.Context, ownerID string, geometry json.RawMessage, years []int, result domain.CalculationResult) (domain.CalculationRecord, error) {
	record := domain.CalculationRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Geometry:  geometry,
		Years:     years,
		Result:    result,
		CreatedAt: s.clock.Now().UTC(),
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return domain.CalculationRecord{}, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("encode result: %v", err))
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calculations (id, owner_id, geometry, years, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.OwnerID, []byte(record.Geometry), pq.Array(toInt64(years)), resultJSON, record.CreatedAt,
	)
	if err != nil {
		s.logger.Error("insert calculation failed", "owner_id", ownerID, "error", err)
		return domain.CalculationRecord{}, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("insert calculation: %v", err))
	}

	return record, nil
}

// ListByOwner returns all records owned by the given identity, newest
// first. Ownership isolation is enforced here, in the WHERE clause, never
// by filtering on the client side.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.CalculationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, geometry, years, result, created_at
		 FROM calculations
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("query calculations: %v", err))
	}
	defer rows.Close()

	records := []domain.CalculationRecord{}
	for rows.Next() {
		var (
			rec        domain.CalculationRecord
			geometry   []byte
			years      pq.Int64Array
			resultJSON []byte
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &geometry, &years, &resultJSON, &rec.CreatedAt); err != nil {
			return nil, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("scan calculation: %v", err))
		}
		rec.Geometry = json.RawMessage(geometry)
		rec.Years = toInt(years)
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("decode stored result: %v", err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewFailure(domain.KindPersistenceFailure, fmt.Sprintf("iterate calculations: %v", err))
	}

	return records, nil
}

// Ping reports store health for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func toInt64(years []int) []int64 {
	out := make([]int64, len(years))
	for i, y := range years {
		out[i] = int64(y)
	}
	return out
}

func toInt(years []int64) []int {
	out := make([]int, len(years))
	for i, y := range years {
		out[i] = int(y)
	}
	return out
}
