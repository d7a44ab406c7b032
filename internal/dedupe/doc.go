// Package dedupe tracks recently seen message ids so the timeline stays
// idempotent-by-id: redelivered frames and double-scheduled read receipts
// are dropped within a bounded window.
package dedupe
