package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/tsdb"
	"github.com/prometheus/prometheus/tsdb/chunkenc"

	"pollwatch/internal/pkg"
)

// TickSample is one metrics point recorded alongside a tick's persisted
// result.
type TickSample struct {
	ConfigID  string    `json:"config_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	LatencyMS float64   `json:"latency_ms"`
}

// MetricsRecorder appends per-tick status and latency samples to local
// time-series storage and reads them back for the full retrieval view.
type MetricsRecorder interface {
	WriteTickSample(ctx context.Context, configID string, statusCode int, latencyMS float64) error
	QueryTickSamples(ctx context.Context, configID string, timeRange pkg.TimeRange) ([]TickSample, error)
}

type metricsRecorder struct {
	db *tsdb.DB
}

func NewMetricsRecorder(db *tsdb.DB) MetricsRecorder {
	return &metricsRecorder{
		db,
	}
}

func (s *metricsRecorder) WriteTickSample(ctx context.Context, configID string, statusCode int, latencyMS float64) error {
	appender := s.db.Appender(ctx)
	defer appender.Rollback()

	ts := time.Now().UnixMilli()

	statusLabels := labels.Labels{
		{Name: "__name__", Value: "call_status"},
		{Name: "config_id", Value: configID},
	}
	if _, err := appender.Append(0, statusLabels, ts, float64(statusCode)); err != nil {
		return fmt.Errorf("error appending status sample: %v", err)
	}

	latencyLabels := labels.Labels{
		{Name: "__name__", Value: "call_latency_ms"},
		{Name: "config_id", Value: configID},
	}
	if _, err := appender.Append(0, latencyLabels, ts, latencyMS); err != nil {
		return fmt.Errorf("error appending latency sample: %v", err)
	}

	if err := appender.Commit(); err != nil {
		return fmt.Errorf("error committing samples: %v", err)
	}
	return nil
}

func (s *metricsRecorder) QueryTickSamples(ctx context.Context, configID string, timeRange pkg.TimeRange) ([]TickSample, error) {
	querier, err := s.db.Querier(
		timeRange.Start.UnixMilli(),
		timeRange.End.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating querier: %v", err)
	}
	defer querier.Close()

	statusMatchers := []*labels.Matcher{
		labels.MustNewMatcher(labels.MatchEqual, "__name__", "call_status"),
		labels.MustNewMatcher(labels.MatchEqual, "config_id", configID),
	}
	latencyMatchers := []*labels.Matcher{
		labels.MustNewMatcher(labels.MatchEqual, "__name__", "call_latency_ms"),
		labels.MustNewMatcher(labels.MatchEqual, "config_id", configID),
	}

	statusSeries := querier.Select(ctx, false, nil, statusMatchers...)
	latencySeries := querier.Select(ctx, false, nil, latencyMatchers...)

	statusResults := make(map[int64]int)
	for statusSeries.Next() {
		iter := statusSeries.At().Iterator(nil)
		for iter.Next() == chunkenc.ValFloat {
			ts, val := iter.At()
			statusResults[ts] = int(val)
		}
	}

	var samples []TickSample
	for latencySeries.Next() {
		iter := latencySeries.At().Iterator(nil)
		for iter.Next() == chunkenc.ValFloat {
			ts, val := iter.At()
			status, exists := statusResults[ts]
			if !exists {
				continue
			}
			samples = append(samples, TickSample{
				ConfigID:  configID,
				Timestamp: time.Unix(0, ts*int64(time.Millisecond)),
				Status:    status,
				LatencyMS: val,
			})
		}
	}

	return samples, nil
}

type noopMetrics struct{}

// NewNoopMetrics returns a recorder that drops samples; used when no
// time-series storage is configured.
func NewNoopMetrics() MetricsRecorder { return noopMetrics{} }

func (noopMetrics) WriteTickSample(context.Context, string, int, float64) error { return nil }

func (noopMetrics) QueryTickSamples(context.Context, string, pkg.TimeRange) ([]TickSample, error) {
	return nil, nil
}
