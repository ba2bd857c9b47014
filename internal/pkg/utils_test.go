package pkg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseKeyValuesTypes(t *testing.T) {
	input := "symbol: NVDA\nlimit: 10\nactive: true\ndisabled: false\nlat: 40.7128"

	result := ParseKeyValues(input)

	assert.Equal(t, StringScalar("NVDA"), result["symbol"])
	assert.Equal(t, IntegerScalar(10), result["limit"])
	assert.Equal(t, BooleanScalar(true), result["active"])
	assert.Equal(t, BooleanScalar(false), result["disabled"])
	// decimals stay strings, only pure digit runs become integers
	assert.Equal(t, StringScalar("40.7128"), result["lat"])
}

func TestParseKeyValuesSkipsMalformedLines(t *testing.T) {
	input := "no colon here\n: empty key\nquery: Name~\"popoto\"\n"

	result := ParseKeyValues(input)

	assert.Len(t, result, 1)
	assert.Equal(t, StringScalar(`Name~"popoto"`), result["query"])
}

func TestParseKeyValuesEmpty(t *testing.T) {
	assert.Empty(t, ParseKeyValues(""))
	assert.Empty(t, ParseKeyValues("   \n  "))
}

func TestParseKeyValuesValueWithColon(t *testing.T) {
	result := ParseKeyValues("Authorization: Bearer abc:def")

	assert.Equal(t, StringScalar("Bearer abc:def"), result["Authorization"])
}

func TestParseStartTimeEmptyMeansNow(t *testing.T) {
	now := time.Now()

	parsed, err := ParseStartTime("", now)

	assert.NoError(t, err)
	assert.Equal(t, now, parsed)
}

func TestParseStartTimeLayouts(t *testing.T) {
	now := time.Now()

	for _, input := range []string{
		"2030-06-15T09:00:00Z",
		"2030-06-15 09:00:00",
		"2030-06-15T09:00:00",
		"2030-06-15 09:00",
	} {
		parsed, err := ParseStartTime(input, now)
		assert.NoError(t, err, input)
		assert.Equal(t, 2030, parsed.Year(), input)
	}
}

func TestParseStartTimeInvalid(t *testing.T) {
	_, err := ParseStartTime("next tuesday", time.Now())

	assert.Error(t, err)
}

func TestTruncatePreview(t *testing.T) {
	short := "short body"
	assert.Equal(t, short, TruncatePreview(short, 150))

	long := strings.Repeat("x", 151)
	truncated := TruncatePreview(long, 150)
	assert.Equal(t, strings.Repeat("x", 150)+"...", truncated)
	assert.Len(t, truncated, 153)
}

func TestTruncatePreviewExactLimit(t *testing.T) {
	exact := strings.Repeat("y", 150)

	assert.Equal(t, exact, TruncatePreview(exact, 150))
}

func TestParseTimeRangeDuration(t *testing.T) {
	tr, err := ParseTimeRange("", "", "30m")

	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-30*time.Minute), tr.Start, time.Second)
	assert.WithinDuration(t, time.Now(), tr.End, time.Second)
}

func TestParseTimeRangeExplicitWindow(t *testing.T) {
	tr, err := ParseTimeRange("2026-08-01T00:00:00Z", "2026-08-02T00:00:00Z", "")

	assert.NoError(t, err)
	assert.Equal(t, 24*time.Hour, tr.End.Sub(tr.Start))
}

func TestParseTimeRangeDefaultsToLastHour(t *testing.T) {
	tr, err := ParseTimeRange("", "", "")

	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), tr.Start, time.Second)
}

func TestParseTimeRangeInvalid(t *testing.T) {
	_, err := ParseTimeRange("", "", "soon")
	assert.Error(t, err)

	_, err = ParseTimeRange("yesterday", "2026-08-02T00:00:00Z", "")
	assert.Error(t, err)
}
