package exposer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"pollwatch/internal/auth"
	"pollwatch/internal/pkg"
	"pollwatch/internal/recorder"
	"pollwatch/internal/storage"
)

// Mode selects the output shape of a retrieval. It is a read-side
// projection choice only; the underlying view is computed once.
type Mode int

const (
	ModeSummary Mode = iota
	ModeDetails
	ModeFull
)

const (
	summaryResultLimit = 5
	detailsResultLimit = 10
	previewLimit       = 150
)

// ParseMode resolves the caller-supplied mode string. Empty means summary.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "summary":
		return ModeSummary, nil
	case "details":
		return ModeDetails, nil
	case "full":
		return ModeFull, nil
	default:
		return ModeSummary, fmt.Errorf("%w: unknown mode %q (want summary, details or full)", pkg.ErrInput, s)
	}
}

func (m Mode) String() string {
	switch m {
	case ModeDetails:
		return "details"
	case ModeFull:
		return "full"
	default:
		return "summary"
	}
}

// ResultView is one call result shaped for output. Summary mode carries a
// truncated preview, the other modes the full response document.
type ResultView struct {
	CalledAt        time.Time       `json:"called_at"`
	IsSuccessful    bool            `json:"is_successful"`
	ResponsePreview string          `json:"response_preview,omitempty"`
	ResponseData    json.RawMessage `json:"response_data,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
}

// RetrievalResult is the projected health/history view of one
// configuration.
type RetrievalResult struct {
	Success         bool                  `json:"success"`
	ConfigID        string                `json:"config_id"`
	Name            string                `json:"name"`
	Mode            string                `json:"mode"`
	Status          string                `json:"status"`
	Health          string                `json:"health,omitempty"`
	SuccessRate     float64               `json:"success_rate"`
	TotalCalls      int                   `json:"total_calls"`
	SuccessfulCalls *int                  `json:"successful_calls,omitempty"`
	FailedCalls     *int                  `json:"failed_calls,omitempty"`
	ExpectedCalls   int                   `json:"expected_calls"`
	IntervalMinutes *float64              `json:"interval_minutes,omitempty"`
	StartAt         *time.Time            `json:"start_at,omitempty"`
	StopAt          *time.Time            `json:"stop_at,omitempty"`
	Results         []ResultView          `json:"results"`
	Samples         []recorder.TickSample `json:"latency_samples,omitempty"`
}

type ExposerService interface {
	// Retrieve loads the health/history view of one configuration. A non-nil
	// sampleRange narrows the latency-sample window in full mode; nil means
	// the whole monitoring window so far.
	Retrieve(ctx context.Context, configID, ownerKey string, mode Mode, sampleRange *pkg.TimeRange) (*RetrievalResult, error)
}

type exposerService struct {
	verifier auth.KeyVerifier
	store    storage.Storer
	metrics  recorder.MetricsRecorder
	logger   *zap.SugaredLogger
}

func NewExposerService(
	verifier auth.KeyVerifier,
	store storage.Storer,
	metrics recorder.MetricsRecorder,
	logger *zap.SugaredLogger,
) ExposerService {
	return &exposerService{
		verifier: verifier,
		store:    store,
		metrics:  metrics,
		logger:   logger,
	}
}

// view is the canonical in-memory projection source. Derived statistics are
// computed exactly once here and reused by every mode.
type view struct {
	cfg           *pkg.Configuration
	results       []*pkg.CallResult
	total         int
	successes     int
	successRate   float64
	status        string
	health        string
	expectedCalls int
}

func (s *exposerService) Retrieve(ctx context.Context, configID, ownerKey string, mode Mode, sampleRange *pkg.TimeRange) (*RetrievalResult, error) {
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

	limit := 0
	switch mode {
	case ModeSummary:
		limit = summaryResultLimit
	case ModeDetails:
		limit = detailsResultLimit
	}

	results, err := s.store.ListCallResults(ctx, cfg.ID, limit)
	if err != nil {
		return nil, err
	}
	total, successes, err := s.store.ResultStats(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	v := buildView(cfg, results, total, successes, time.Now())
	return s.project(ctx, v, mode, sampleRange), nil
}

func buildView(cfg *pkg.Configuration, results []*pkg.CallResult, total, successes int, now time.Time) *view {
	v := &view{
		cfg:       cfg,
		results:   results,
		total:     total,
		successes: successes,
	}

	if total > 0 {
		fraction := float64(successes) / float64(total)
		v.successRate = math.Round(fraction*1000) / 10
		if fraction > 0.8 {
			v.health = "good"
		} else {
			v.health = "degraded"
		}
	} else {
		v.health = "no_data"
	}

	v.status = "inactive"
	if cfg.IsActive && !now.After(cfg.StopAt) {
		v.status = "active"
	}

	if elapsed := now.Sub(cfg.StartAt); elapsed > 0 {
		expected := int(math.Floor(elapsed.Minutes() / cfg.Interval.Minutes()))
		if expected < 1 {
			expected = 1
		}
		v.expectedCalls = expected
	}

	return v
}

// project shapes the canonical view for one mode without recomputing any
// statistic.
func (s *exposerService) project(ctx context.Context, v *view, mode Mode, sampleRange *pkg.TimeRange) *RetrievalResult {
	out := &RetrievalResult{
		Success:       true,
		ConfigID:      v.cfg.ID,
		Name:          v.cfg.Name,
		Mode:          mode.String(),
		Status:        v.status,
		SuccessRate:   v.successRate,
		TotalCalls:    v.total,
		ExpectedCalls: v.expectedCalls,
		Results:       make([]ResultView, 0, len(v.results)),
	}

	for _, r := range v.results {
		rv := ResultView{
			CalledAt:     r.CalledAt,
			IsSuccessful: r.IsSuccessful,
			ErrorMessage: r.ErrorMessage,
		}
		if mode == ModeSummary {
			if r.IsSuccessful {
				rv.ResponsePreview = pkg.TruncatePreview(string(r.ResponseData), previewLimit)
			}
		} else {
			rv.ResponseData = r.ResponseData
		}
		out.Results = append(out.Results, rv)
	}

	switch mode {
	case ModeSummary:
		out.Health = v.health
	case ModeFull:
		out.Health = v.health
		successes := v.successes
		failed := v.total - v.successes
		interval := v.cfg.Interval.Minutes()
		startAt := v.cfg.StartAt
		stopAt := v.cfg.StopAt
		out.SuccessfulCalls = &successes
		out.FailedCalls = &failed
		out.IntervalMinutes = &interval
		out.StartAt = &startAt
		out.StopAt = &stopAt

		window := pkg.TimeRange{Start: v.cfg.StartAt, End: time.Now()}
		if sampleRange != nil {
			window = *sampleRange
		}
		samples, err := s.metrics.QueryTickSamples(ctx, v.cfg.ID, window)
		if err != nil {
			s.logger.Warnf("querying tick samples for configuration %s: %v", v.cfg.ID, err)
		} else {
			out.Samples = samples
		}
	}

	return out
}
