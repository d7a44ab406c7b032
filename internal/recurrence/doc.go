// Package recurrence turns the legacy five-field schedule expressions carried
// on journeys into a tagged cadence model and bounded occurrence sequences.
//
// The legacy format is cron-shaped but not cron: a literal "*/14" in the
// day-of-month field marks a fortnightly schedule (every other week on the
// listed weekdays), not "every 14th day". That marker is preserved bit-for-bit
// on serialization so existing journeys keep round-tripping.
package recurrence
