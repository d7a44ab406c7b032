// Package amendment authors, renders and reconciles two-party booking
// amendments riding on top of the conversation.
//
// The booking service owns the authoritative record. The coordinator's local
// view is advisory: it is reconstructed from chat history and optimistically
// updated, never subscribed to the record itself. An amendment is finalized
// once both the driver and passenger approval flags are true on the
// last-known payload.
package amendment
