package pkg

import (
	"strconv"
	"strings"
	"time"
)

// ParseKeyValues parses line-oriented "key: value" input into typed scalars.
// Digit-only values become integers, true/false become booleans, everything
// else stays a string. Lines without a colon and empty keys are skipped.
func ParseKeyValues(input string) map[string]Scalar {
	result := map[string]Scalar{}

	if strings.TrimSpace(input) == "" {
		return result
	}

	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if n, err := strconv.ParseInt(value, 10, 64); err == nil && isDigits(value) {
			result[key] = IntegerScalar(n)
		} else if strings.EqualFold(value, "true") {
			result[key] = BooleanScalar(true)
		} else if strings.EqualFold(value, "false") {
			result[key] = BooleanScalar(false)
		} else {
			result[key] = StringScalar(value)
		}
	}

	return result
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var startTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseStartTime parses a caller-supplied start instant. An empty string
// means "start now".
func ParseStartTime(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return now, nil
	}
	var lastErr error
	for _, layout := range startTimeLayouts {
		t, err := time.ParseInLocation(layout, input, now.Location())
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// TruncatePreview shortens s to at most limit characters, appending an
// ellipsis when anything was cut.
func TruncatePreview(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeRange resolves an optional explicit window or relative duration
// into a concrete range, defaulting to the last hour.
func ParseTimeRange(start string, end string, duration string) (TimeRange, error) {
	now := time.Now()
	defaultRange := TimeRange{
		Start: now.Add(-1 * time.Hour),
		End:   now,
	}

	if duration != "" {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return defaultRange, err
		}
		return TimeRange{
			Start: now.Add(-d),
			End:   now,
		}, nil
	}

	if start != "" && end != "" {
		startTime, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return defaultRange, err
		}
		endTime, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return defaultRange, err
		}
		return TimeRange{Start: startTime, End: endTime}, nil
	}

	return defaultRange, nil
}
