package mqtt

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerwiz/orchestrator/internal/adapter/observability"
	"github.com/brokerwiz/orchestrator/internal/domain"
)

type scriptedHandler struct {
	results []scriptedResult
	calls   *atomic.Int32
}

type scriptedResult struct {
	ok  bool
	err error
}

func (h *scriptedHandler) Setup(context.Context) error { return nil }

func (h *scriptedHandler) Run(context.Context) (bool, error) {
	i := int(h.calls.Add(1)) - 1
	if i >= len(h.results) {
		i = len(h.results) - 1
	}
	return h.results[i].ok, h.results[i].err
}

func (h *scriptedHandler) Teardown(context.Context) {}

func scriptedFactory(calls *atomic.Int32, results ...scriptedResult) domain.HandlerFactory {
	return func(string, map[string]any) domain.Handler {
		return &scriptedHandler{results: results, calls: calls}
	}
}

type fakeAdmission struct {
	err      error
	acquired atomic.Int32
}

func (f *fakeAdmission) Acquire(context.Context, domain.Vendor, string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acquired.Add(1)
	return func() {}, nil
}

type runnerFixture struct {
	runner    *Runner
	rm        *RetryManager
	pub       *capturePublisher
	admission *fakeAdmission
	registry  *domain.Registry
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	activity, err := observability.NewActivityLog(filepath.Join(t.TempDir(), "worker.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = activity.Close() })

	pub := &capturePublisher{}
	registry := domain.NewRegistry()
	admission := &fakeAdmission{}
	cfg := RunnerConfig{
		Addr:       "localhost:1883",
		WorkerID:   "worker-test",
		Group:      "workers",
		QoS:        1,
		JobTimeout: 5 * time.Second,
	}
	return &runnerFixture{
		runner:    NewRunner(cfg, NewTopics("bots"), registry, admission, activity, slog.Default()),
		rm:        newTestRetryManager(pub),
		pub:       pub,
		admission: admission,
		registry:  registry,
	}
}

func TestRunnerProcess_Success(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls, scriptedResult{ok: true}))

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.True(t, ack)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, f.pub.all())
}

func TestRunnerProcess_MissingHandlerDrops(t *testing.T) {
	f := newRunnerFixture(t)
	ack := f.runner.process(context.Background(), f.rm, domain.VendorRUNT, domain.NewJobMessage(nil))
	assert.True(t, ack)
	assert.Empty(t, f.pub.all())
	assert.Equal(t, int32(0), f.admission.acquired.Load())
}

func TestRunnerProcess_AdmissionRejectedLeavesUnacked(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls, scriptedResult{ok: true}))
	f.admission.err = domain.ErrResourceUnavailable

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.False(t, ack)
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, f.pub.all())
}

func TestRunnerProcess_TransientRetriesInPlace(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls,
		scriptedResult{err: domain.Transient("STALE_ELEMENT", "stale element reference")},
		scriptedResult{ok: true},
	))

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.True(t, ack)
	assert.Equal(t, int32(2), calls.Load())
	// Success on the in-place retry leaves nothing on the wire.
	assert.Empty(t, f.pub.all())
}

func TestRunnerProcess_TransientTwiceRequeues(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls,
		scriptedResult{err: domain.Transient("STALE_ELEMENT", "stale element reference")},
		scriptedResult{err: domain.Transient("STALE_ELEMENT", "stale element reference")},
	))

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.True(t, ack)
	assert.Equal(t, int32(2), calls.Load())

	pubs := f.pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/queue/hdi", pubs[0].topic)
	out := decodePublished(t, pubs[0].payload)
	assert.Equal(t, 1, out.RetryCount)
	require.Len(t, out.ErrorHistory, 1)
	assert.Equal(t, "STALE_ELEMENT", out.ErrorHistory[0].ErrorCode)
}

func TestRunnerProcess_PermanentDeadLetters(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorSura, scriptedFactory(&calls,
		scriptedResult{err: domain.NewAuthenticationError("portal login failed")},
	))

	ack := f.runner.process(context.Background(), f.rm, domain.VendorSura, domain.NewJobMessage(nil))
	assert.True(t, ack)
	// No in-place retry for permanent failures.
	assert.Equal(t, int32(1), calls.Load())

	pubs := f.pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/dlq/sura", pubs[0].topic)
	out := decodePublished(t, pubs[0].payload)
	require.Len(t, out.ErrorHistory, 1)
	assert.Equal(t, "AUTH_001", out.ErrorHistory[0].ErrorCode)
}

func TestRunnerProcess_SoftFailureRequeues(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls, scriptedResult{ok: false}))

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.True(t, ack)

	pubs := f.pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/queue/hdi", pubs[0].topic)
	out := decodePublished(t, pubs[0].payload)
	assert.Equal(t, 1, out.RetryCount)
}

func TestRunnerProcess_BudgetExhaustedDeadLetters(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls,
		scriptedResult{err: domain.NewRateLimitError("throttled")},
	))

	msg := domain.NewJobMessage(nil)
	msg.RetryCount = msg.MaxRetries
	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, msg)
	assert.True(t, ack)

	pubs := f.pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/dlq/hdi", pubs[0].topic)
}

func TestRunnerProcess_RetryPublishFailureLeavesUnacked(t *testing.T) {
	f := newRunnerFixture(t)
	var calls atomic.Int32
	f.registry.Register(domain.VendorHDI, scriptedFactory(&calls,
		scriptedResult{err: domain.NewRateLimitError("throttled")},
	))
	f.pub.errs = []error{domain.ErrNotConnected}

	ack := f.runner.process(context.Background(), f.rm, domain.VendorHDI, domain.NewJobMessage(nil))
	assert.False(t, ack)
}
