// ABOUTME: Tests for schedule expression parsing, building and occurrence generation
// ABOUTME: Includes the fortnightly marker round-trip and alternating-week sequences

package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// aSunday is 2026-08-30, a Sunday.
var aSunday = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want Rule
	}{
		{
			"weekly with weekday set",
			"0 9 * * 1,3,5",
			Rule{Cadence: Weekly, Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}, Hour: 9},
		},
		{
			"weekly every day",
			"15 7 * * *",
			Rule{Cadence: Weekly, Hour: 7, Minute: 15},
		},
		{
			"fortnightly marker",
			"30 17 */14 * 5",
			Rule{Cadence: Fortnightly, Weekdays: []time.Weekday{time.Friday}, Hour: 17, Minute: 30},
		},
		{
			"monthly on a day",
			"0 8 15 * *",
			Rule{Cadence: Monthly, DayOfMonth: 15, Hour: 8},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Errors(t *testing.T) {
	exprs := []string{
		"",
		"0 9 * *",          // four fields
		"0 9 * * 1 extra",  // six fields
		"61 9 * * 1",       // minute out of range
		"0 25 * * 1",       // hour out of range
		"0 9 32 * *",       // day out of range
		"0 9 * 6 1",        // month restricted, not supported
		"0 9 * * 7",        // weekday out of range
		"every morning pls",
	}
	for _, expr := range exprs {
		_, err := Classify(expr)
		assert.Error(t, err, "expr %q", expr)
	}
}

func TestBuild_RoundTripsThroughClassify(t *testing.T) {
	at := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC) // a Tuesday, the 15th

	t.Run("weekly", func(t *testing.T) {
		expr := Build(Weekly, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, at)
		assert.Equal(t, "0 9 * * 1,3,5", expr)

		rule, err := Classify(expr)
		require.NoError(t, err)
		assert.Equal(t, Weekly, rule.Cadence)
		assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, rule.Weekdays)
	})

	t.Run("monthly uses the calendar day", func(t *testing.T) {
		expr := Build(Monthly, nil, at)
		assert.Equal(t, "0 9 15 * *", expr)

		rule, err := Classify(expr)
		require.NoError(t, err)
		assert.Equal(t, Monthly, rule.Cadence)
		assert.Equal(t, 15, rule.DayOfMonth)
	})

	t.Run("fortnightly preserves the marker bit-for-bit", func(t *testing.T) {
		expr := Build(Fortnightly, []time.Weekday{time.Friday}, at)
		assert.Equal(t, "0 9 */14 * 5", expr)

		rule, err := Classify(expr)
		require.NoError(t, err)
		assert.Equal(t, Fortnightly, rule.Cadence)
		assert.Equal(t, []time.Weekday{time.Friday}, rule.Weekdays)
	})

	t.Run("empty weekday set defaults to the given day", func(t *testing.T) {
		expr := Build(Weekly, nil, at)
		assert.Equal(t, "0 9 * * 2", expr, "Tuesday so the rule fires at least once a week")
	})
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Every week on Monday, Wednesday and Friday at 09:00",
		Describe("0 9 * * 1,3,5", aSunday))
	assert.Equal(t, "Every two weeks on Friday at 17:30",
		Describe("30 17 */14 * 5", aSunday))
	assert.Equal(t, "Every month on day 15 at 08:00",
		Describe("0 8 15 * *", aSunday))
	assert.Equal(t, "Every week on every day at 07:15",
		Describe("15 7 * * *", aSunday))
}

func TestDescribe_FailsClosed(t *testing.T) {
	assert.Equal(t, DescribeFallback, Describe("", aSunday))
	assert.Equal(t, DescribeFallback, Describe("whenever", aSunday))
	assert.Equal(t, DescribeFallback, Describe("0 9 * 3 1", aSunday))
}

func TestNextOccurrences_WeeklyScenario(t *testing.T) {
	// Built from {weekly, [Mon Wed Fri], 09:00}, expanded from a Sunday.
	expr := Build(Weekly, []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	got := NextOccurrences(expr, aSunday, nil, 3)
	require.Len(t, got, 3)

	want := []time.Time{
		time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), // Monday
		time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC),  // Wednesday
		time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC),  // Friday
	}
	for i := range want {
		assert.True(t, got[i].Equal(want[i]), "occurrence %d: got %v want %v", i, got[i], want[i])
	}
}

func TestNextOccurrences_Properties(t *testing.T) {
	until := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	got := NextOccurrences("0 9 * * 1,3,5", aSunday, &until, 8)

	assert.LessOrEqual(t, len(got), 8)
	for i, d := range got {
		assert.True(t, d.After(aSunday), "all strictly after start")
		assert.False(t, d.After(until), "all within the bound")
		if i > 0 {
			assert.True(t, got[i-1].Before(d), "strictly increasing")
		}
	}
}

func TestNextOccurrences_Monthly(t *testing.T) {
	got := NextOccurrences("0 8 15 * *", aSunday, nil, 2)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC), got[0].UTC())
	assert.Equal(t, time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC), got[1].UTC())
}

func TestNextOccurrences_FortnightlySkipsAlternateWeeks(t *testing.T) {
	got := NextOccurrences("0 9 */14 * 1", aSunday, nil, 3)
	require.Len(t, got, 3)

	want := []time.Time{
		time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 9, 28, 9, 0, 0, 0, time.UTC),
	}
	for i := range want {
		assert.True(t, got[i].Equal(want[i]), "occurrence %d: got %v want %v", i, got[i], want[i])
	}
}

func TestNextOccurrences_FortnightlyMultipleWeekdays(t *testing.T) {
	got := NextOccurrences("0 9 */14 * 1,3", aSunday, nil, 4)
	require.Len(t, got, 4)

	// Both weekdays of the anchor week, then both of the week after next.
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), got[0].UTC())
	assert.Equal(t, time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC), got[1].UTC())
	assert.Equal(t, time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC), got[2].UTC())
	assert.Equal(t, time.Date(2026, 9, 16, 9, 0, 0, 0, time.UTC), got[3].UTC())
}

func TestNextOccurrences_EdgeInputs(t *testing.T) {
	assert.Nil(t, NextOccurrences("garbage", aSunday, nil, 3))
	assert.Nil(t, NextOccurrences("0 9 * * 1", aSunday, nil, 0))

	early := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	assert.Empty(t, NextOccurrences("0 9 * * 1", aSunday, &early, 3),
		"bound before the first fire yields nothing")
}

func TestNextOccurrences_Deterministic(t *testing.T) {
	a := NextOccurrences("0 9 */14 * 1,3", aSunday, nil, 6)
	b := NextOccurrences("0 9 */14 * 1,3", aSunday, nil, 6)
	assert.Equal(t, a, b)
}
