package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Normalize parses raw engine output and converts it into the canonical
// CalculationResult. It accepts both historical output shapes (see the
// package doc), verifies that every requested year is present, and trims
// any year the caller did not ask for.
//
// Failure kinds: MalformedOutput (unparsable bytes, non-year keys,
// non-numeric index values), EngineReportedError (the engine understood the
// request and explicitly declined), IncompleteResult (a requested year is
// missing). Raw bytes ride along on every failure for diagnostics.
func Normalize(raw []byte, requestedYears []int) (CalculationResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, NewFailureRaw(KindMalformedOutput, "empty engine output", raw)
	}

	var (
		result CalculationResult
		err    error
	)
	switch trimmed[0] {
	case '{':
		result, err = parseYearKeyedMap(trimmed, raw)
	case '[':
		result, err = parseYearRecordSequence(trimmed, raw)
	default:
		return nil, NewFailureRaw(KindMalformedOutput, "engine output is neither an object nor an array", raw)
	}
	if err != nil {
		return nil, err
	}

	return trimToRequested(result, requestedYears, raw)
}

// parseYearKeyedMap handles shape A: {"2020": {"NDVI": 0.55, ...}, ...}.
// A top-level {"error": "..."} payload is the engine's structured refusal.
func parseYearKeyedMap(trimmed, raw []byte) (CalculationResult, error) {
	var byYear map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &byYear); err != nil {
		return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("parse engine output: %v", err), raw)
	}

	if msg, ok := engineError(byYear); ok {
		return nil, NewFailureRaw(KindEngineReportedError, msg, raw)
	}

	result := make(CalculationResult, len(byYear))
	for key, value := range byYear {
		year, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("non-year key %q in engine output", key), raw)
		}
		values, err := parseValueSet(value, raw)
		if err != nil {
			return nil, err
		}
		result[year] = values
	}
	return result, nil
}

// parseYearRecordSequence handles shape B: [{"year": 2020, "NDVI": 0.55, ...}, ...].
func parseYearRecordSequence(trimmed, raw []byte) (CalculationResult, error) {
	var records []map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("parse engine output: %v", err), raw)
	}

	result := make(CalculationResult, len(records))
	for i, rec := range records {
		yearRaw, ok := rec["year"]
		if !ok {
			return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("record %d has no year field", i), raw)
		}
		var year int
		if err := json.Unmarshal(yearRaw, &year); err != nil {
			return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("record %d has non-integer year", i), raw)
		}

		values := make(IndexValueSet, len(KnownIndices))
		for _, idx := range KnownIndices {
			valueRaw, ok := rec[string(idx)]
			if !ok {
				continue
			}
			v, err := parseIndexValue(idx, valueRaw, raw)
			if err != nil {
				return nil, err
			}
			values[idx] = v
		}
		result[year] = values
	}
	return result, nil
}

// parseValueSet decodes one year's index object, keeping known indices only.
func parseValueSet(value json.RawMessage, raw []byte) (IndexValueSet, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, NewFailureRaw(KindMalformedOutput, "year value is not an object", raw)
	}

	values := make(IndexValueSet, len(KnownIndices))
	for _, idx := range KnownIndices {
		valueRaw, ok := fields[string(idx)]
		if !ok {
			continue
		}
		v, err := parseIndexValue(idx, valueRaw, raw)
		if err != nil {
			return nil, err
		}
		values[idx] = v
	}
	return values, nil
}

// parseIndexValue type-checks a single index value: number or null only.
// Range plausibility (e.g. NDVI within [-1, 1]) is not validated.
func parseIndexValue(idx Index, valueRaw json.RawMessage, raw []byte) (*float64, error) {
	var v *float64
	if err := json.Unmarshal(valueRaw, &v); err != nil {
		return nil, NewFailureRaw(KindMalformedOutput, fmt.Sprintf("index %s has non-numeric value %s", idx, valueRaw), raw)
	}
	return v, nil
}

// trimToRequested enforces the completeness contract: every requested year
// must be present, and years nobody asked for never reach the store.
func trimToRequested(parsed CalculationResult, requestedYears []int, raw []byte) (CalculationResult, error) {
	result := make(CalculationResult, len(requestedYears))
	var missing []string
	for _, year := range requestedYears {
		values, ok := parsed[year]
		if !ok {
			missing = append(missing, strconv.Itoa(year))
			continue
		}
		result[year] = values
	}
	if len(missing) > 0 {
		return nil, NewFailureRaw(KindIncompleteResult,
			fmt.Sprintf("engine output missing requested years: %s", strings.Join(missing, ", ")), raw)
	}
	return result, nil
}

// engineError reports whether a shape-A payload is actually the engine's
// structured error indicator.
func engineError(byYear map[string]json.RawMessage) (string, bool) {
	errRaw, ok := byYear["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(errRaw, &msg); err != nil {
		return "", false
	}
	return msg, true
}
