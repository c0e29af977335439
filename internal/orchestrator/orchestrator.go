// Package orchestrator composes the calculation pipeline: invoke the
// engine, normalize its output, persist the record, respond. Each stage
// returns a tagged failure; no stage relies on panics or implicit state.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/observability"
)

// sideEffectTimeout bounds best-effort event publishing and archiving so a
// slow broker cannot delay the response indefinitely.
const sideEffectTimeout = 5 * time.Second

// Engine invokes one external index computation.
type Engine interface {
	Invoke(ctx context.Context, geometry json.RawMessage, years []int) ([]byte, error)
}

// Store persists and lists calculation records.
type Store interface {
	Create(ctx context.Context, ownerID string, geometry json.RawMessage, years []int, result domain.CalculationResult) (domain.CalculationRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.CalculationRecord, error)
}

// EventPublisher announces persisted calculations to downstream consumers.
type EventPublisher interface {
	PublishCalculation(ctx context.Context, record domain.CalculationRecord) error
}

// Archiver keeps raw engine output for audit and re-normalization.
type Archiver interface {
	Archive(ctx context.Context, record domain.CalculationRecord, raw []byte) error
}

// Outcome is the result of a calculation request. Persisted is false only
// when the computation succeeded but the store rejected the record; Record
// then carries the computed result without id or timestamp so the caller
// still receives what was computed.
type Outcome struct {
	Record    domain.CalculationRecord
	Persisted bool
}

// Orchestrator runs the calculation state machine. Authentication happens
// upstream in the HTTP layer; the orchestrator receives an already-verified
// owner id.
type Orchestrator struct {
	engine    Engine
	store     Store
	publisher EventPublisher // nil = disabled
	archiver  Archiver       // nil = disabled
	sem       *semaphore.Weighted
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates an Orchestrator. maxConcurrentEngines bounds simultaneous
// engine processes across all requests; 0 disables the bound.
func New(engine Engine, store Store, maxConcurrentEngines int, logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	var sem *semaphore.Weighted
	if maxConcurrentEngines > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrentEngines))
	}
	return &Orchestrator{
		engine:  engine,
		store:   store,
		sem:     sem,
		logger:  logger,
		metrics: metrics,
	}
}

// AttachPublisher enables best-effort calculation events.
func (o *Orchestrator) AttachPublisher(p EventPublisher) { o.publisher = p }

// AttachArchiver enables best-effort raw output archiving.
func (o *Orchestrator) AttachArchiver(a Archiver) { o.archiver = a }

// Calculate runs one submission through invoke → normalize → persist.
// years must already be validated, deduplicated, and sorted. Failures
// before the persist stage never create a record; a persist failure
// returns the computed result alongside the PersistenceFailure error.
func (o *Orchestrator) Calculate(ctx context.Context, ownerID string, geometry json.RawMessage, years []int) (Outcome, error) {
	raw, err := o.invoke(ctx, geometry, years)
	if err != nil {
		o.countFailure(err)
		return Outcome{}, err
	}

	result, err := domain.Normalize(raw, years)
	if err != nil {
		o.logger.Warn("engine output failed normalization", "owner_id", ownerID, "error", err)
		o.countFailure(err)
		return Outcome{}, err
	}

	record, err := o.store.Create(ctx, ownerID, geometry, years, result)
	if err != nil {
		// The computation itself succeeded; hand its result back so the
		// caller can retry the save without paying for a recompute.
		o.logger.Error("persisting calculation failed", "owner_id", ownerID, "error", err)
		o.countFailure(err)
		unsaved := domain.CalculationRecord{
			OwnerID:  ownerID,
			Geometry: geometry,
			Years:    years,
			Result:   result,
		}
		return Outcome{Record: unsaved, Persisted: false}, err
	}

	o.metrics.CalculationsTotal.WithLabelValues("success").Inc()
	o.metrics.RecordsPersisted.Inc()
	o.runSideEffects(ctx, record, raw)

	return Outcome{Record: record, Persisted: true}, nil
}

// History returns the caller's records, newest first.
func (o *Orchestrator) History(ctx context.Context, ownerID string) ([]domain.CalculationRecord, error) {
	o.metrics.HistoryRequests.Inc()
	return o.store.ListByOwner(ctx, ownerID)
}

// invoke runs the engine under the concurrency bound.
func (o *Orchestrator) invoke(ctx context.Context, geometry json.RawMessage, years []int) ([]byte, error) {
	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer o.sem.Release(1)
	}
	return o.engine.Invoke(ctx, geometry, years)
}

// runSideEffects publishes and archives after a successful persist. Both
// are best-effort and detached from the request's cancellation: a client
// that disconnects after the record exists should not suppress the event.
func (o *Orchestrator) runSideEffects(ctx context.Context, record domain.CalculationRecord, raw []byte) {
	if o.publisher == nil && o.archiver == nil {
		return
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if o.publisher != nil {
		if err := o.publisher.PublishCalculation(detached, record); err != nil {
			o.logger.Warn("publish calculation event failed", "calculation_id", record.ID, "error", err)
		}
	}
	if o.archiver != nil {
		if err := o.archiver.Archive(detached, record, raw); err != nil {
			o.logger.Warn("archive engine output failed", "calculation_id", record.ID, "error", err)
		}
	}
}

// countFailure records the outcome metric using the failure kind as the
// label, or "cancelled" for plain context errors.
func (o *Orchestrator) countFailure(err error) {
	var f *domain.Failure
	if errors.As(err, &f) {
		o.metrics.CalculationsTotal.WithLabelValues(string(f.Kind)).Inc()
		return
	}
	o.metrics.CalculationsTotal.WithLabelValues("cancelled").Inc()
}
