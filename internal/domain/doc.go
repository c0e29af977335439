// Package domain models remote-sensing index calculations over user-drawn
// geographic areas.
//
// # Indices
//
// The external computation engine derives per-year area means of seven
// spectral indices from Sentinel-2 and Landsat-8 imagery:
//
//	NDVI: Normalized Difference Vegetation Index (B8, B4)
//	NDMI: Normalized Difference Moisture Index (B8, B11)
//	NDSI: Normalized Difference Snow Index (B3, B11)
//	GCI:  Green Chlorophyll Index (B8 / B3 - 1)
//	EVI:  Enhanced Vegetation Index (B8, B4, B2)
//	AWEI: Automated Water Extraction Index (B3, B8, B11, B12)
//	LST:  Land Surface Temperature (Landsat-8 thermal)
//
// A null value for an index means the engine could not compute it for that
// year and area, typically cloud cover above the filter threshold or no
// imagery coverage. Null is a valid result, not an error.
//
// # Engine Output Shapes
//
// The engine's output format drifted over time without versioning. Two
// shapes exist in the wild and both must be accepted:
//
//	Shape A (year-keyed map):
//	  {"2020": {"NDVI": 0.55, "NDMI": 0.21, ...}, "2021": {...}}
//
//	Shape B (per-year record sequence):
//	  [{"year": 2020, "NDVI": 0.55, "NDMI": 0.21, ...}, {"year": 2021, ...}]
//
// [Normalize] is the single point where that drift is absorbed; everything
// downstream consumes one canonical [CalculationResult]. An engine that
// understood the request but declined to compute reports
// {"error": "<reason>"} instead of either shape.
//
// # Geometry
//
// Geometry is an opaque GeoJSON payload. This service forwards it to the
// engine and persists it unmodified; it never inspects coordinates.
package domain
