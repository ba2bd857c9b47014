package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pollwatch/internal/apiclient"
	"pollwatch/internal/auth"
	"pollwatch/internal/pkg"
	"pollwatch/internal/storage"
)

// ActivationResult reports the registered schedule for a configuration.
type ActivationResult struct {
	Success         bool      `json:"success"`
	ConfigID        string    `json:"config_id"`
	Message         string    `json:"message"`
	IntervalMinutes float64   `json:"interval_minutes"`
	StopAt          time.Time `json:"stop_at"`
	NextCallAt      time.Time `json:"next_call_at"`
}

// SchedulerService owns the set of recurring monitoring jobs. Each
// activated configuration gets one job that probes its endpoint on the
// configured interval between start_at and stop_at, recording every
// outcome.
type SchedulerService interface {
	Activate(ctx context.Context, configID, ownerKey string) (*ActivationResult, error)
	// Reconcile re-registers jobs for configurations that were activated
	// before a restart and whose window is still open. Returns how many
	// jobs were registered.
	Reconcile(ctx context.Context) (int, error)
	// Stop cancels all jobs and waits for in-flight ticks.
	Stop()
}

type schedulerService struct {
	verifier auth.KeyVerifier
	prober   apiclient.Prober
	store    storage.Storer
	metrics  MetricsRecorder
	logger   *zap.SugaredLogger

	registry *JobRegistry
	inflight *JobRegistry
	pool     *workerPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSchedulerService(
	verifier auth.KeyVerifier,
	prober apiclient.Prober,
	store storage.Storer,
	metrics MetricsRecorder,
	workers int,
	logger *zap.SugaredLogger,
) SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &schedulerService{
		verifier: verifier,
		prober:   prober,
		store:    store,
		metrics:  metrics,
		logger:   logger,
		registry: NewJobRegistry(),
		inflight: NewJobRegistry(),
		pool:     newWorkerPool(workers, logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *schedulerService) Activate(ctx context.Context, configID, ownerKey string) (*ActivationResult, error) {
	if strings.TrimSpace(ownerKey) == "" {
		return nil, fmt.Errorf("%w: owner key is required", pkg.ErrAuth)
	}
	if !s.verifier.VerifyCaller(ctx, ownerKey) {
		return nil, fmt.Errorf("%w: owner key verification failed", pkg.ErrAuth)
	}

	cfg, err := s.store.GetConfigurationByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.OwnerKey != ownerKey {
		return nil, fmt.Errorf("%w: owner key does not match configuration", pkg.ErrAuth)
	}

	now := time.Now()
	if cfg.IsFinished(now) {
		return nil, fmt.Errorf("%w: cannot activate a finished configuration", pkg.ErrNotFound)
	}

	// Registration is keyed by id: a concurrent or repeated Activate must
	// not start a second recurring job.
	if !s.registry.Acquire(cfg.ID) {
		return &ActivationResult{
			Success:         true,
			ConfigID:        cfg.ID,
			Message:         fmt.Sprintf("monitoring already active for %q", cfg.Name),
			IntervalMinutes: cfg.Interval.Minutes(),
			StopAt:          cfg.StopAt,
			NextCallAt:      nextFireAfter(cfg, now),
		}, nil
	}

	if err := s.store.MarkActivated(ctx, cfg.ID, now); err != nil {
		s.registry.Release(cfg.ID)
		return nil, err
	}

	s.wg.Add(1)
	go s.runJob(cfg)

	s.logger.Infow("monitoring activated",
		"config_id", cfg.ID,
		"name", cfg.Name,
		"interval", cfg.Interval,
		"stop_at", cfg.StopAt,
	)

	return &ActivationResult{
		Success:         true,
		ConfigID:        cfg.ID,
		Message:         fmt.Sprintf("scheduler activated for %q", cfg.Name),
		IntervalMinutes: cfg.Interval.Minutes(),
		StopAt:          cfg.StopAt,
		NextCallAt:      nextFireAfter(cfg, now),
	}, nil
}

func (s *schedulerService) Reconcile(ctx context.Context) (int, error) {
	configs, err := s.store.ListActivatedUnfinished(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, cfg := range configs {
		if !s.registry.Acquire(cfg.ID) {
			continue
		}
		s.wg.Add(1)
		go s.runJob(cfg)
		registered++
	}

	if registered > 0 {
		s.logger.Infof("reconciled %d active monitoring job(s) from storage", registered)
	}
	return registered, nil
}

func (s *schedulerService) Stop() {
	s.cancel()
	s.wg.Wait()
	s.pool.Stop()
}

// nextFireAfter returns the first scheduled tick strictly after now. Ticks
// fire at start_at + k*interval for k >= 1.
func nextFireAfter(cfg *pkg.Configuration, now time.Time) time.Time {
	next := cfg.StartAt.Add(cfg.Interval)
	for !next.After(now) {
		next = next.Add(cfg.Interval)
	}
	return next
}
