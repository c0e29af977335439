package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/observability"
)

var testGeometry = json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`)

// testRunner builds a Runner around a shell one-liner standing in for the
// engine. The JSON payload arrives as $0 of the -c script.
func testRunner(script string, timeout time.Duration) *Runner {
	return &Runner{
		command: "sh",
		args:    []string{"-c", script},
		timeout: timeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.NewMetricsForTesting(),
	}
}

func requireKind(t *testing.T, err error, kind domain.FailureKind) *domain.Failure {
	t.Helper()
	var f *domain.Failure
	require.True(t, errors.As(err, &f), "expected *domain.Failure, got %T: %v", err, err)
	assert.Equal(t, kind, f.Kind)
	return f
}

func TestInvoke_Success(t *testing.T) {
	r := testRunner(`echo '{"2020": {"NDVI": 0.55}}'`, 5*time.Second)

	out, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	require.NoError(t, err)
	assert.JSONEq(t, `{"2020": {"NDVI": 0.55}}`, string(out))
}

func TestInvoke_PayloadForwarded(t *testing.T) {
	// Echo the payload argument back so we can verify what the engine sees.
	r := testRunner(`printf '%s' "$0"`, 5*time.Second)

	out, err := r.Invoke(context.Background(), testGeometry, []int{2021, 2020})
	require.NoError(t, err)

	var req struct {
		Geometry json.RawMessage `json:"geometry"`
		Years    []int           `json:"years"`
	}
	require.NoError(t, json.Unmarshal(out, &req))
	assert.JSONEq(t, string(testGeometry), string(req.Geometry))
	assert.Equal(t, []int{2021, 2020}, req.Years)
}

func TestInvoke_NonZeroExit(t *testing.T) {
	r := testRunner(`echo "imagery unavailable" >&2; exit 1`, 5*time.Second)

	_, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	f := requireKind(t, err, domain.KindEngineExecutionFailed)
	assert.Equal(t, "imagery unavailable", f.Detail)
	assert.Contains(t, string(f.Raw), "imagery unavailable")
}

func TestInvoke_NonZeroExitWithoutStderr(t *testing.T) {
	r := testRunner(`exit 3`, 5*time.Second)

	_, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	f := requireKind(t, err, domain.KindEngineExecutionFailed)
	assert.Contains(t, f.Detail, "exit status 3")
}

func TestInvoke_EmptyOutput(t *testing.T) {
	r := testRunner(`true`, 5*time.Second)

	_, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	requireKind(t, err, domain.KindEngineEmptyOutput)
}

func TestInvoke_Timeout(t *testing.T) {
	r := testRunner(`sleep 30`, 200*time.Millisecond)

	start := time.Now()
	_, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	elapsed := time.Since(start)

	requireKind(t, err, domain.KindEngineTimeout)
	assert.Less(t, elapsed, 10*time.Second, "timed-out invocation must not hang")
}

func TestInvoke_CallerCancellation(t *testing.T) {
	r := testRunner(`sleep 30`, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Invoke(ctx, testGeometry, []int{2020})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 10*time.Second, "cancellation must kill the process")
}

// Both streams emit well past the 64 KiB pipe buffer; if either were drained
// serially the engine would block writing and the invocation would hang.
func TestInvoke_LargeInterleavedStreamsDoNotDeadlock(t *testing.T) {
	script := `dd if=/dev/zero bs=1024 count=256 2>/dev/null | tr '\0' 'e' >&2; ` +
		`dd if=/dev/zero bs=1024 count=256 2>/dev/null | tr '\0' 'o'`
	r := testRunner(script, 30*time.Second)

	out, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	require.NoError(t, err)
	assert.Len(t, out, 256*1024)
}

func TestInvoke_CommandNotFound(t *testing.T) {
	r := &Runner{
		command: "/nonexistent/engine-binary",
		timeout: time.Second,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: observability.NewMetricsForTesting(),
	}

	_, err := r.Invoke(context.Background(), testGeometry, []int{2020})
	requireKind(t, err, domain.KindEngineExecutionFailed)
}
