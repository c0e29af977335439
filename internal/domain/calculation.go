package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Index identifies one of the spectral indices the engine computes.
type Index string

const (
	IndexNDVI Index = "NDVI"
	IndexNDMI Index = "NDMI"
	IndexNDSI Index = "NDSI"
	IndexGCI  Index = "GCI"
	IndexEVI  Index = "EVI"
	IndexAWEI Index = "AWEI"
	IndexLST  Index = "LST"
)

// KnownIndices is the closed set of index names accepted from the engine.
// Keys outside this set are dropped during normalization.
var KnownIndices = []Index{
	IndexNDVI, IndexNDMI, IndexNDSI, IndexGCI, IndexEVI, IndexAWEI, IndexLST,
}

// IndexValueSet maps index names to computed values. A nil value means the
// engine could not compute that index for the year and area (cloud cover,
// missing imagery); it is persisted and served as JSON null.
type IndexValueSet map[Index]*float64

// CalculationResult is the canonical year → index-values mapping. Its key
// set always equals the requested year set exactly.
type CalculationResult map[int]IndexValueSet

// CalculationRecord is one persisted calculation. Records are immutable and
// append-only; there is no update or delete.
type CalculationRecord struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"ownerId"`
	Geometry  json.RawMessage   `json:"geometry"`
	Years     []int             `json:"years"`
	Result    CalculationResult `json:"results"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewYearRange validates, deduplicates, and sorts the requested years.
// The returned slice is strictly the years sent to the engine; start and end
// are derived from it, never supplied independently.
func NewYearRange(years []int) ([]int, error) {
	if len(years) == 0 {
		return nil, fmt.Errorf("at least one year is required")
	}

	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Ints(out)
	return out, nil
}

// ExpandYearSpan converts an inclusive start/end span into an explicit year
// list. Callers that submit startYear/endYear instead of a year array are
// normalized through this before anything else sees the request.
func ExpandYearSpan(start, end int) ([]int, error) {
	if start > end {
		return nil, fmt.Errorf("startYear %d is after endYear %d", start, end)
	}
	if end-start >= 100 {
		return nil, fmt.Errorf("year span %d-%d exceeds 100 years", start, end)
	}
	years := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		years = append(years, y)
	}
	return years, nil
}

// Years returns the sorted year keys of the result.
func (r CalculationResult) Years() []int {
	years := make([]int, 0, len(r))
	for y := range r {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
