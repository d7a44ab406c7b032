// ABOUTME: Parses, builds and describes the legacy journey schedule expressions
// ABOUTME: Computes bounded future occurrence sequences for display and checkout

package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Cadence is the repetition class of a schedule rule.
type Cadence string

const (
	Weekly      Cadence = "weekly"
	Fortnightly Cadence = "fortnightly"
	Monthly     Cadence = "monthly"
)

// FortnightlyMarker is the legacy day-of-month literal that tags an
// expression as fortnightly. It is not valid cron step syntax semantics;
// it must survive Build/Classify round trips unchanged.
const FortnightlyMarker = "*/14"

// DescribeFallback is returned for expressions that do not parse. Callers
// feed Describe output straight into UI copy, so this never errors.
const DescribeFallback = "Custom schedule"

// Rule is the parsed, tagged form of a schedule expression.
type Rule struct {
	Cadence    Cadence
	Weekdays   []time.Weekday // weekly and fortnightly only, sorted, Sunday=0
	DayOfMonth int            // monthly only
	Hour       int
	Minute     int
}

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Classify parses a five-field expression into a Rule.
//
// Field 3 decides the cadence: a plain day number means monthly, the
// fortnightly marker means fortnightly, "*" means weekly with the weekday
// set read from field 5.
func Classify(expr string) (Rule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 5 {
		return Rule{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	minute, err := parseRange(fields[0], 0, 59)
	if err != nil {
		return Rule{}, fmt.Errorf("minute field: %w", err)
	}
	hour, err := parseRange(fields[1], 0, 23)
	if err != nil {
		return Rule{}, fmt.Errorf("hour field: %w", err)
	}
	if fields[3] != "*" {
		return Rule{}, fmt.Errorf("month field must be *, got %q", fields[3])
	}

	rule := Rule{Hour: hour, Minute: minute}

	switch {
	case fields[2] == FortnightlyMarker:
		rule.Cadence = Fortnightly
	case fields[2] != "*":
		day, err := parseRange(fields[2], 1, 31)
		if err != nil {
			return Rule{}, fmt.Errorf("day-of-month field: %w", err)
		}
		rule.Cadence = Monthly
		rule.DayOfMonth = day
		return rule, nil
	default:
		rule.Cadence = Weekly
	}

	days, err := parseWeekdays(fields[4])
	if err != nil {
		return Rule{}, err
	}
	rule.Weekdays = days
	return rule, nil
}

// Build is the inverse of Classify. The time argument supplies the
// time of day, the calendar day for monthly rules, and the fallback
// weekday for weekly and fortnightly rules with an empty weekday set
// (so the rule always fires at least once per period).
func Build(cadence Cadence, weekdays []time.Weekday, at time.Time) string {
	switch cadence {
	case Monthly:
		return fmt.Sprintf("%d %d %d * *", at.Minute(), at.Hour(), at.Day())
	case Fortnightly:
		return fmt.Sprintf("%d %d %s * %s", at.Minute(), at.Hour(), FortnightlyMarker, weekdayField(weekdays, at))
	default:
		return fmt.Sprintf("%d %d * * %s", at.Minute(), at.Hour(), weekdayField(weekdays, at))
	}
}

// Describe renders an expression as a short human sentence, e.g.
// "Every week on Monday and Wednesday at 09:00". The shown time is taken
// from the next occurrence after now so it reflects what will actually
// happen, not just the raw fields. Unparsable input yields DescribeFallback.
func Describe(expr string, now time.Time) string {
	rule, err := Classify(expr)
	if err != nil {
		return DescribeFallback
	}

	clock := fmt.Sprintf("%02d:%02d", rule.Hour, rule.Minute)
	if next := NextOccurrences(expr, now, nil, 1); len(next) == 1 {
		clock = next[0].Format("15:04")
	}

	switch rule.Cadence {
	case Monthly:
		return fmt.Sprintf("Every month on day %d at %s", rule.DayOfMonth, clock)
	case Fortnightly:
		return fmt.Sprintf("Every two weeks on %s at %s", joinWeekdays(rule.Weekdays), clock)
	default:
		return fmt.Sprintf("Every week on %s at %s", joinWeekdays(rule.Weekdays), clock)
	}
}

// NextOccurrences computes up to max fire times strictly after the given
// instant, stopping early once a fire time would pass until (when non-nil).
// The sequence is strictly increasing and deterministic for equal inputs.
// Malformed expressions yield an empty result rather than an error because
// this feeds UI summaries directly.
func NextOccurrences(expr string, after time.Time, until *time.Time, max int) []time.Time {
	rule, err := Classify(expr)
	if err != nil || max <= 0 {
		return nil
	}

	if rule.Cadence == Fortnightly {
		return fortnightlyOccurrences(rule, after, until, max)
	}
	return standardOccurrences(normalize(rule), after, until, max)
}

// normalize rewrites a rule as a standard cron expression that gronx can
// evaluate. Only weekly and monthly rules are representable.
func normalize(rule Rule) string {
	if rule.Cadence == Monthly {
		return fmt.Sprintf("%d %d %d * *", rule.Minute, rule.Hour, rule.DayOfMonth)
	}
	days := "*"
	if len(rule.Weekdays) > 0 {
		days = weekdayField(rule.Weekdays, time.Time{})
	}
	return fmt.Sprintf("%d %d * * %s", rule.Minute, rule.Hour, days)
}

// standardOccurrences walks gronx ticks until max results, until, or a
// parse failure.
func standardOccurrences(cronExpr string, after time.Time, until *time.Time, max int) []time.Time {
	if !gronx.IsValid(cronExpr) {
		return nil
	}
	out := make([]time.Time, 0, max)
	cursor := after
	for len(out) < max {
		next, err := gronx.NextTickAfter(cronExpr, cursor, false)
		if err != nil {
			break
		}
		if until != nil && next.After(*until) {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}

// fortnightlyOccurrences generates the weekly sequence and keeps only the
// hits in every other week. The anchor week is the week of the first hit
// after the start instant, weeks starting on Sunday.
func fortnightlyOccurrences(rule Rule, after time.Time, until *time.Time, max int) []time.Time {
	weekly := Rule{Cadence: Weekly, Weekdays: rule.Weekdays, Hour: rule.Hour, Minute: rule.Minute}
	cronExpr := normalize(weekly)
	if !gronx.IsValid(cronExpr) {
		return nil
	}

	out := make([]time.Time, 0, max)
	cursor := after
	var anchor time.Time
	// Bounded scan: at most two candidate weeks per kept occurrence.
	for scans := 0; len(out) < max && scans < max*16+16; scans++ {
		next, err := gronx.NextTickAfter(cronExpr, cursor, false)
		if err != nil {
			break
		}
		if until != nil && next.After(*until) {
			break
		}
		cursor = next
		if anchor.IsZero() {
			anchor = weekStart(next)
		}
		if daysBetween(anchor, weekStart(next))/7%2 == 0 {
			out = append(out, next)
		}
	}
	return out
}

// weekStart returns midnight of the Sunday beginning t's week.
func weekStart(t time.Time) time.Time {
	y, m, d := t.AddDate(0, 0, -int(t.Weekday())).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring clock drift
// across DST transitions.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func parseRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d,%d]", n, lo, hi)
	}
	return n, nil
}

func parseWeekdays(field string) ([]time.Weekday, error) {
	if field == "*" {
		return nil, nil
	}
	parts := strings.Split(field, ",")
	days := make([]time.Weekday, 0, len(parts))
	seen := make(map[time.Weekday]bool, len(parts))
	for _, p := range parts {
		n, err := parseRange(strings.TrimSpace(p), 0, 6)
		if err != nil {
			return nil, fmt.Errorf("weekday field: %w", err)
		}
		d := time.Weekday(n)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// weekdayField serializes a weekday set, defaulting to at's weekday when the
// set is empty and at is a real time.
func weekdayField(days []time.Weekday, at time.Time) string {
	if len(days) == 0 {
		if at.IsZero() {
			return "*"
		}
		return strconv.Itoa(int(at.Weekday()))
	}
	sorted := append([]time.Weekday(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, d := range sorted {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func joinWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return "every day"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = weekdayNames[int(d)%7]
	}
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
