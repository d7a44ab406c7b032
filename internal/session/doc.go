// Package session maintains the ordered, deduplicated message timeline for
// one conversation.
//
// # Overview
//
// A Session sits between the websocket channel and whatever renders the
// conversation. It translates channel events into timeline mutations and
// republishes them as a processed event stream:
//
//	sess := session.New(ch, session.Options{})
//	sess.SetUser("user-1")
//	sess.SetConversation("conv-9")
//	events, _ := sess.Events(ctx)
//	sess.Connect(ctx)
//
// # Timeline rules
//
//   - Every entry has a locally unique id; redelivered frames are dropped.
//   - History batches merge idempotently by id, then the whole timeline is
//     re-sorted by timestamp ascending. History loads at most once per
//     session open, so the full re-sort is cheap in practice.
//   - Live messages append in arrival order.
//   - A locally authored message is appended optimistically with status
//     "sending" and flipped to "sent" in place when the relay echoes it.
//     The echo match is by content, not id - the relay does not round-trip
//     a correlation id, so identical texts sent in quick succession can
//     misassign status. Known tradeoff.
//
// # Side channels
//
// Typing notifications are debounced: the first keystroke sends
// is_typing=true, a quiet period sends is_typing=false, and sending a
// message flushes the false notice immediately. Read receipts are echoed
// about a second after a counterparty message with a relay-assigned id
// arrives.
//
// No failure is retried here. A lost connection surfaces as a disconnected
// event and the caller decides when to redial; nothing is queued.
package session
