package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"pollwatch/internal/apiclient"
	"pollwatch/internal/auth"
	"pollwatch/internal/pkg"
	"pollwatch/internal/storage"
)

type fakeProber struct {
	calls atomic.Int64
	fail  bool

	// firstCallDelay makes the first probe overrun its interval.
	firstCallDelay time.Duration
}

func (p *fakeProber) Probe(_ context.Context, _ apiclient.Request) (*apiclient.Result, error) {
	n := p.calls.Add(1)
	if p.firstCallDelay > 0 && n == 1 {
		time.Sleep(p.firstCallDelay)
	}
	if p.fail {
		return nil, fmt.Errorf("%w: request error: connection refused", pkg.ErrTransport)
	}
	return &apiclient.Result{
		StatusCode: 200,
		Data:       json.RawMessage(fmt.Sprintf(`{"seq": %d}`, n)),
	}, nil
}

func newTestScheduler(t *testing.T, prober apiclient.Prober) (SchedulerService, storage.Storer) {
	t.Helper()
	store, err := storage.NewSQLite(context.Background(), ":memory:")
	assert.NoError(t, err)

	verifier := auth.NewStaticVerifier([]string{"owner-key"})
	svc := NewSchedulerService(verifier, prober, store, NewNoopMetrics(), 4, zap.NewNop().Sugar())
	t.Cleanup(func() {
		svc.Stop()
		store.Close()
	})
	return svc, store
}

func insertSchedule(t *testing.T, store storage.Storer, id string, interval, lifetime time.Duration) *pkg.Configuration {
	t.Helper()
	now := time.Now()
	cfg := &pkg.Configuration{
		ID:        id,
		OwnerKey:  "owner-key",
		Name:      "short schedule",
		Method:    "GET",
		BaseURL:   "https://api.example.com",
		Endpoint:  "ping",
		Params:    map[string]pkg.Scalar{},
		Headers:   map[string]pkg.Scalar{},
		ExtraBody: map[string]any{},
		Interval:  interval,
		StartAt:   now,
		StopAt:    now.Add(lifetime),
		CreatedAt: now,
	}
	assert.NoError(t, store.InsertConfiguration(context.Background(), cfg))
	return cfg
}

// A lifetime of two intervals yields exactly two recorded calls: the first
// tick marks the configuration active, the terminal tick marks it finished.
func TestScheduleRunsToCompletion(t *testing.T) {
	prober := &fakeProber{}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", 50*time.Millisecond, 100*time.Millisecond)

	result, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)
	assert.True(t, result.Success)

	time.Sleep(400 * time.Millisecond)

	results, err := store.ListCallResults(ctx, "cfg-1", 0)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.IsSuccessful)
		assert.NotNil(t, r.ResponseData)
		assert.Empty(t, r.ErrorMessage)
	}

	loaded, err := store.GetConfigurationByID(ctx, "cfg-1")
	assert.NoError(t, err)
	assert.False(t, loaded.IsActive)
	assert.NotNil(t, loaded.ActivatedAt)
}

func TestFirstSuccessfulTickFlipsActive(t *testing.T) {
	prober := &fakeProber{}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", 50*time.Millisecond, 500*time.Millisecond)

	_, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)

	// after the first tick, before the window closes
	time.Sleep(150 * time.Millisecond)

	loaded, err := store.GetConfigurationByID(ctx, "cfg-1")
	assert.NoError(t, err)
	assert.True(t, loaded.IsActive)
}

func TestActivateIsIdempotent(t *testing.T) {
	prober := &fakeProber{}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", 50*time.Millisecond, 100*time.Millisecond)

	first, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)
	second, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Contains(t, second.Message, "already active")

	time.Sleep(400 * time.Millisecond)

	// a duplicate job would have recorded duplicate results
	results, err := store.ListCallResults(ctx, "cfg-1", 0)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFailingProbeIsRecordedAndScheduleContinues(t *testing.T) {
	prober := &fakeProber{fail: true}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", 50*time.Millisecond, 100*time.Millisecond)

	_, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	results, err := store.ListCallResults(ctx, "cfg-1", 0)
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.IsSuccessful)
		assert.Nil(t, r.ResponseData)
		assert.Contains(t, r.ErrorMessage, "request error")
	}

	loaded, err := store.GetConfigurationByID(ctx, "cfg-1")
	assert.NoError(t, err)
	assert.False(t, loaded.IsActive)
}

// A probe that overruns its interval must not mark the configuration active
// again after the terminal tick has closed the schedule.
func TestSlowProbeCannotReactivateFinishedSchedule(t *testing.T) {
	prober := &fakeProber{firstCallDelay: 150 * time.Millisecond}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", 60*time.Millisecond, 120*time.Millisecond)

	_, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.NoError(t, err)

	// first tick at 60ms runs until ~210ms; the terminal tick at 120ms is
	// skipped while it is in flight
	time.Sleep(500 * time.Millisecond)

	loaded, err := store.GetConfigurationByID(ctx, "cfg-1")
	assert.NoError(t, err)
	assert.False(t, loaded.IsActive)

	results, err := store.ListCallResults(ctx, "cfg-1", 0)
	assert.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestActivateRejectsUnknownConfiguration(t *testing.T) {
	svc, _ := newTestScheduler(t, &fakeProber{})

	_, err := svc.Activate(context.Background(), "missing", "owner-key")

	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestActivateRejectsWrongOwner(t *testing.T) {
	svc, store := newTestScheduler(t, &fakeProber{})
	ctx := context.Background()
	insertSchedule(t, store, "cfg-1", time.Minute, time.Hour)

	verifier := auth.NewStaticVerifier(nil) // accept any key
	open := NewSchedulerService(verifier, &fakeProber{}, store, NewNoopMetrics(), 1, zap.NewNop().Sugar())
	defer open.Stop()

	_, err := open.Activate(ctx, "cfg-1", "someone-else")
	assert.ErrorIs(t, err, pkg.ErrAuth)

	_, err = svc.Activate(ctx, "cfg-1", "unverifiable")
	assert.ErrorIs(t, err, pkg.ErrAuth)
}

func TestActivateRejectsMissingKey(t *testing.T) {
	svc, _ := newTestScheduler(t, &fakeProber{})

	_, err := svc.Activate(context.Background(), "cfg-1", "")

	assert.ErrorIs(t, err, pkg.ErrAuth)
}

func TestActivateRejectsFinishedConfiguration(t *testing.T) {
	svc, store := newTestScheduler(t, &fakeProber{})
	ctx := context.Background()

	now := time.Now()
	cfg := &pkg.Configuration{
		ID:        "cfg-1",
		OwnerKey:  "owner-key",
		Name:      "expired schedule",
		Method:    "GET",
		BaseURL:   "https://api.example.com",
		Endpoint:  "ping",
		Interval:  time.Minute,
		StartAt:   now.Add(-2 * time.Hour),
		StopAt:    now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	assert.NoError(t, store.InsertConfiguration(ctx, cfg))

	_, err := svc.Activate(ctx, "cfg-1", "owner-key")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
	assert.Contains(t, err.Error(), "finished")
}

func TestReconcileRestoresActivatedJobs(t *testing.T) {
	prober := &fakeProber{}
	svc, store := newTestScheduler(t, prober)
	ctx := context.Background()

	insertSchedule(t, store, "cfg-1", 50*time.Millisecond, 300*time.Millisecond)
	assert.NoError(t, store.MarkActivated(ctx, "cfg-1", time.Now()))

	insertSchedule(t, store, "cfg-2", time.Minute, time.Hour) // never activated

	restored, err := svc.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 1, restored)

	// already-registered jobs are not registered twice
	restored, err = svc.Reconcile(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 0, restored)

	time.Sleep(500 * time.Millisecond)

	results, err := store.ListCallResults(ctx, "cfg-1", 0)
	assert.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestNextFireAfter(t *testing.T) {
	start := time.Now()
	cfg := &pkg.Configuration{
		StartAt:  start,
		Interval: 30 * time.Minute,
	}

	assert.Equal(t, start.Add(30*time.Minute), nextFireAfter(cfg, start))
	assert.Equal(t, start.Add(60*time.Minute), nextFireAfter(cfg, start.Add(30*time.Minute)))
	assert.Equal(t, start.Add(90*time.Minute), nextFireAfter(cfg, start.Add(45*time.Minute)))
}
