package recorder

import (
	"time"

	"github.com/google/uuid"

	"pollwatch/internal/apiclient"
	"pollwatch/internal/pkg"
)

// runJob drives the recurring schedule for one configuration. Ticks fire at
// start_at + k*interval; no tick fires after stop_at. The tick whose
// successor would fall past stop_at is the terminal tick: it records its
// result and clears is_active in one store transaction.
func (s *schedulerService) runJob(cfg *pkg.Configuration) {
	defer s.wg.Done()
	defer s.registry.Release(cfg.ID)

	next := nextFireAfter(cfg, time.Now())

	for {
		if next.After(cfg.StopAt) {
			// No tick left to run (restart caught up past the window, or
			// the interval exceeds the lifetime). Converge the flag.
			s.deactivate(cfg.ID)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		terminal := next.Add(cfg.Interval).After(cfg.StopAt)
		submitted := s.pool.Submit(tickJob{
			id:  cfg.ID,
			run: func() { s.executeTick(cfg, terminal) },
		})
		if terminal {
			if !submitted {
				s.deactivate(cfg.ID)
			}
			return
		}
		next = next.Add(cfg.Interval)
	}
}

// executeTick performs one probe and persists its outcome. Errors are
// recorded, never propagated: a failing tick must not cancel the schedule.
func (s *schedulerService) executeTick(cfg *pkg.Configuration, terminal bool) {
	if !s.inflight.Acquire(cfg.ID) {
		// Previous tick still running; skip rather than queue so one slow
		// probe delays the schedule by at most one interval.
		s.logger.Warnf("previous tick still in flight for configuration %s, skipping", cfg.ID)
		if terminal {
			// The overrunning tick may still flip is_active on success.
			// Deactivate only once it has fully finished, so the flag
			// cannot be set again after the schedule is over.
			s.inflight.Wait(cfg.ID)
			s.deactivate(cfg.ID)
		}
		return
	}
	defer s.inflight.Release(cfg.ID)

	result := &pkg.CallResult{
		ID:       uuid.NewString(),
		ConfigID: cfg.ID,
		CalledAt: time.Now(),
	}

	started := time.Now()
	sample, err := s.prober.Probe(s.ctx, apiclient.Request{
		Method:   cfg.Method,
		BaseURL:  cfg.BaseURL,
		Endpoint: cfg.Endpoint,
		Params:   cfg.Params,
		Headers:  cfg.Headers,
		Body:     cfg.ExtraBody,
	})
	latencyMS := float64(time.Since(started).Milliseconds())

	statusCode := 0
	if err != nil {
		result.IsSuccessful = false
		result.ErrorMessage = err.Error()
		s.logger.Warnf("probe failed for configuration %s: %v", cfg.ID, err)
	} else {
		result.IsSuccessful = true
		result.ResponseData = sample.Encode()
		statusCode = sample.StatusCode
	}

	if err := s.metrics.WriteTickSample(s.ctx, cfg.ID, statusCode, latencyMS); err != nil {
		s.logger.Warnf("writing tick sample for configuration %s: %v", cfg.ID, err)
	}

	if result.IsSuccessful && !terminal && !cfg.IsFinished(time.Now()) {
		if changed, err := s.store.SetActive(s.ctx, cfg.ID, true); err != nil {
			s.logger.Errorf("flipping is_active for configuration %s: %v", cfg.ID, err)
		} else if changed {
			s.logger.Infof("configuration %s is now active", cfg.ID)
		}
	}

	var storeErr error
	if terminal {
		storeErr = s.store.InsertFinalCallResult(s.ctx, result)
		s.logger.Infof("configuration %s finished after its last call", cfg.ID)
	} else {
		storeErr = s.store.InsertCallResult(s.ctx, result)
	}
	if storeErr != nil {
		// Best effort: the tick is logged and skipped, the job continues.
		s.logger.Errorf("recording tick for configuration %s: %v", cfg.ID, storeErr)
		if terminal {
			s.deactivate(cfg.ID)
		}
	}
}

func (s *schedulerService) deactivate(configID string) {
	if _, err := s.store.SetActive(s.ctx, configID, false); err != nil {
		s.logger.Errorf("clearing is_active for configuration %s: %v", configID, err)
	}
}
