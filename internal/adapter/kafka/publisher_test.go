package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-index-service/internal/domain"
)

func TestSerializeRecord(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := domain.CalculationRecord{
		ID:        "calc-1",
		OwnerID:   "user-42",
		Years:     []int{2020, 2021},
		CreatedAt: createdAt,
	}

	msg, err := serializeRecord(record)
	require.NoError(t, err)

	assert.Equal(t, []byte("calc-1"), msg.Key)
	assert.JSONEq(t,
		`{"id":"calc-1","owner_id":"user-42","years":[2020,2021],"created_at":"2026-03-01T12:00:00Z"}`,
		string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("calculation_completed"), msg.Headers[0].Value)
	assert.Equal(t, "created_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-03-01T12:00:00Z"), msg.Headers[1].Value)
}

// The event intentionally excludes geometry and result payloads; consumers
// needing those read the store by id.
func TestSerializeRecord_OmitsPayloads(t *testing.T) {
	record := domain.CalculationRecord{
		ID:       "calc-2",
		OwnerID:  "user-42",
		Geometry: []byte(`{"type":"Polygon"}`),
		Result:   domain.CalculationResult{2020: {}},
	}

	msg, err := serializeRecord(record)
	require.NoError(t, err)
	assert.NotContains(t, string(msg.Value), "Polygon")
	assert.NotContains(t, string(msg.Value), "result")
}
