// Package engine launches the external index-computation engine as an
// isolated out-of-process job and collects its output.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/geo-index-service/internal/config"
	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/observability"
)

// waitDelay bounds how long Wait blocks on pipe teardown after the process
// is killed, so a grandchild holding the pipes open cannot wedge a request.
const waitDelay = 5 * time.Second

// Runner invokes the engine process. One invocation per calculation
// request; there is no pooling and no automatic retry.
type Runner struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a Runner from the engine configuration.
func NewRunner(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		command: cfg.EngineCommand,
		args:    cfg.EngineArgs,
		timeout: cfg.EngineTimeout,
		logger:  logger,
		metrics: metrics,
	}
}

// request is the single structured payload handed to the engine as its last
// argument. The geometry rides through untouched.
type request struct {
	Geometry json.RawMessage `json:"geometry"`
	Years    []int           `json:"years"`
}

// Invoke runs one engine computation and returns its raw standard output.
//
// Standard output and standard error are drained concurrently with waiting
// for process exit, so the engine can never deadlock against a full pipe
// buffer. If the engine outlives the configured timeout it is killed and
// the failure kind is EngineTimeout. Cancellation of ctx (client
// disconnect) also kills the process; the context error is returned as-is.
func (r *Runner) Invoke(ctx context.Context, geometry json.RawMessage, years []int) ([]byte, error) {
	payload, err := json.Marshal(request{Geometry: geometry, Years: years})
	if err != nil {
		return nil, domain.NewFailure(domain.KindEngineExecutionFailed, fmt.Sprintf("encode engine payload: %v", err))
	}

	invokeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, 0, len(r.args)+1)
	args = append(args, r.args...)
	args = append(args, string(payload))

	cmd := exec.CommandContext(invokeCtx, r.command, args...)
	cmd.WaitDelay = waitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, domain.NewFailure(domain.KindEngineExecutionFailed, fmt.Sprintf("open stdout pipe: %v", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, domain.NewFailure(domain.KindEngineExecutionFailed, fmt.Sprintf("open stderr pipe: %v", err))
	}

	r.logger.Info("engine invocation starting", "command", r.command, "years", len(years), "timeout", r.timeout)
	start := time.Now()
	r.metrics.EngineActive.Inc()
	defer r.metrics.EngineActive.Dec()

	if err := cmd.Start(); err != nil {
		r.metrics.EngineInvocations.WithLabelValues("execution_failed").Inc()
		return nil, domain.NewFailure(domain.KindEngineExecutionFailed, fmt.Sprintf("start engine: %v", err))
	}

	var stdout, stderr bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, copyErr := io.Copy(&stdout, stdoutPipe)
		return copyErr
	})
	g.Go(func() error {
		_, copyErr := io.Copy(&stderr, stderrPipe)
		return copyErr
	})

	drainErr := g.Wait()
	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	r.metrics.EngineDuration.Observe(elapsed.Seconds())

	return r.classify(ctx, invokeCtx, waitErr, drainErr, stdout.Bytes(), stderr.Bytes(), elapsed)
}

// classify maps process outcome to the failure taxonomy: timeout, non-zero
// exit, empty output, or success.
func (r *Runner) classify(ctx, invokeCtx context.Context, waitErr, drainErr error, stdout, stderr []byte, elapsed time.Duration) ([]byte, error) {
	// Caller went away: surface the cancellation, not an engine failure.
	if ctx.Err() != nil {
		r.logger.Info("engine invocation cancelled", "elapsed", elapsed)
		r.metrics.EngineInvocations.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	}

	if errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
		r.logger.Warn("engine invocation timed out", "timeout", r.timeout, "elapsed", elapsed)
		r.metrics.EngineInvocations.WithLabelValues("timeout").Inc()
		return nil, domain.NewFailureRaw(domain.KindEngineTimeout,
			fmt.Sprintf("engine did not finish within %s", r.timeout), stderr)
	}

	if waitErr != nil {
		detail := string(bytes.TrimSpace(stderr))
		if detail == "" {
			detail = waitErr.Error()
		}
		r.logger.Warn("engine invocation failed", "error", waitErr, "elapsed", elapsed)
		r.metrics.EngineInvocations.WithLabelValues("execution_failed").Inc()
		return nil, domain.NewFailureRaw(domain.KindEngineExecutionFailed, detail, stderr)
	}

	if drainErr != nil {
		r.metrics.EngineInvocations.WithLabelValues("execution_failed").Inc()
		return nil, domain.NewFailure(domain.KindEngineExecutionFailed, fmt.Sprintf("read engine output: %v", drainErr))
	}

	if len(bytes.TrimSpace(stdout)) == 0 {
		r.logger.Warn("engine produced no output", "elapsed", elapsed)
		r.metrics.EngineInvocations.WithLabelValues("empty_output").Inc()
		return nil, domain.NewFailureRaw(domain.KindEngineEmptyOutput,
			"engine exited cleanly without producing output", stderr)
	}

	r.logger.Info("engine invocation finished", "elapsed", elapsed, "output_bytes", len(stdout))
	r.metrics.EngineInvocations.WithLabelValues("success").Inc()
	return stdout, nil
}
