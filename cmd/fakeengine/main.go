// Command fakeengine stands in for the index-computation engine during
// local development. It reads the invocation payload from its last
// argument and prints a plausible result document to stdout, in either
// of the two historical output shapes.
//
// Usage (as the configured engine):
//
//	ENGINE_COMMAND=go ENGINE_ARGS="run ./cmd/fakeengine -shape b"
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type payload struct {
	Geometry json.RawMessage `json:"geometry"`
	Years    []int           `json:"years"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	shape := flag.String("shape", "a", `output shape: "a" (year-keyed map) or "b" (record sequence)`)
	fail := flag.String("fail", "", "emit an engine error document with this message and exit")
	delay := flag.Duration("delay", 0, "sleep before responding, to exercise timeouts")
	flag.Parse()

	if *delay > 0 {
		time.Sleep(*delay)
	}
	if *fail != "" {
		return json.NewEncoder(os.Stdout).Encode(map[string]string{"error": *fail})
	}

	if flag.NArg() != 1 {
		return fmt.Errorf("expected exactly one payload argument, got %d", flag.NArg())
	}
	var req payload
	if err := json.Unmarshal([]byte(flag.Arg(0)), &req); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(req.Years) == 0 {
		return fmt.Errorf("payload has no years")
	}

	switch *shape {
	case "a":
		doc := make(map[string]map[string]*float64, len(req.Years))
		for _, year := range req.Years {
			doc[strconv.Itoa(year)] = valuesFor(year)
		}
		return json.NewEncoder(os.Stdout).Encode(doc)
	case "b":
		docs := make([]map[string]any, 0, len(req.Years))
		for _, year := range req.Years {
			doc := map[string]any{"year": year}
			for name, v := range valuesFor(year) {
				doc[name] = v
			}
			docs = append(docs, doc)
		}
		return json.NewEncoder(os.Stdout).Encode(docs)
	default:
		return fmt.Errorf("unknown shape %q", *shape)
	}
}

// valuesFor derives deterministic per-year values so repeated runs for the
// same request are comparable. AWEI is null every fourth year to exercise
// null handling downstream.
func valuesFor(year int) map[string]*float64 {
	f := func(v float64) *float64 { return &v }
	spread := float64(year%7) / 10

	values := map[string]*float64{
		"NDVI": f(0.35 + spread),
		"NDMI": f(0.05 + spread/2),
		"NDSI": f(-0.2 + spread),
		"GCI":  f(1.1 + spread),
		"EVI":  f(0.25 + spread/3),
		"AWEI": f(-0.5 + spread),
		"LST":  f(290 + float64(year%10)),
	}
	if year%4 == 0 {
		values["AWEI"] = nil
	}
	return values
}
